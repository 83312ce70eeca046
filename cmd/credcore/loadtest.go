package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/credcore/attempts"
)

type loadTestOptions struct {
	identifiers int
	concurrency int
	ops         int
	prefix      string
}

// NewLoadTestCmd hammers the shared attempt store from many goroutines and
// then checks that no identifier was over- or under-counted.
func NewLoadTestCmd() *cobra.Command {
	opts := loadTestOptions{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Concurrent lockout load test against redis (or miniredis)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.identifiers <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return errors.New("identifiers, concurrency, and ops must be > 0")
			}
			fc, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := fc.engineConfig()
			if err != nil {
				return err
			}

			client, cleanup, err := loadTestClient(cmd.OutOrStdout(), fc.Redis.Addr)
			if err != nil {
				return err
			}
			defer cleanup()

			policy := attempts.Policy{
				Threshold:       cfg.Lockout.Threshold,
				Window:          cfg.Lockout.Window,
				LockoutDuration: cfg.Lockout.Duration,
			}
			tracker, err := attempts.NewTracker(attempts.NewRedisStore(client, opts.prefix), policy)
			if err != nil {
				return err
			}
			return runLoadTest(cmd.Context(), cmd.OutOrStdout(), tracker, opts)
		},
	}

	cmd.Flags().IntVar(&opts.identifiers, "identifiers", 10000, "number of distinct identifiers")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 256, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 100000, "failures to record in total")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "cca:lt:", "attempt key prefix")
	return cmd
}

// loadTestClient prefers redis.addr, then REDIS_ADDR, then an in-process
// miniredis.
func loadTestClient(w io.Writer, addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Fprintf(w, "using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Fprintf(w, "using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func runLoadTest(ctx context.Context, w io.Writer, tracker *attempts.Tracker, opts loadTestOptions) error {
	ids := make([]string, opts.identifiers)
	for i := range ids {
		ids[i] = fmt.Sprintf("user-%d@loadtest.local", i)
	}
	sent := make([]atomic.Int64, len(ids))

	failStats := runPhase(opts.ops, opts.concurrency, 7919, func(r *rand.Rand) error {
		idx := r.Intn(len(ids))
		sent[idx].Add(1)
		_, err := tracker.RecordFailure(ctx, ids[idx])
		return err
	})
	checkStats := runPhase(opts.ops, opts.concurrency, 6151, func(r *rand.Rand) error {
		_, err := tracker.IsBlocked(ctx, ids[r.Intn(len(ids))])
		return err
	})

	fmt.Fprintln(w, "---- results ----")
	printStats(w, "record_failure", failStats)
	printStats(w, "is_blocked", checkStats)

	threshold := tracker.Policy().Threshold
	var locked, violations int
	for i, id := range ids {
		rec, err := tracker.Inspect(ctx, id)
		if err != nil {
			return err
		}
		want := int(sent[i].Load())
		if want >= threshold {
			want = threshold
			locked++
		}
		if rec.Count != want {
			violations++
			if violations <= 10 {
				fmt.Fprintf(w, "mismatch %s: count=%d want=%d\n", id, rec.Count, want)
			}
		}
	}
	fmt.Fprintf(w, "identifiers=%d locked=%d violations=%d\n", len(ids), locked, violations)
	if violations > 0 {
		return fmt.Errorf("%d identifiers miscounted", violations)
	}
	return nil
}

// runPhase runs op ops times spread over concurrency workers.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}
