package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/token"
)

// NewCheckConfigCmd validates the merged configuration.
func NewCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate configuration and print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := fc.engineConfig()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			printSummary(cmd.OutOrStdout(), fc, cfg)
			return nil
		},
	}
}

// printSummary never prints key material.
func printSummary(w io.Writer, fc fileConfig, cfg credcore.Config) {
	fmt.Fprintf(w, "signing:   %s (issuer=%q audience=%q leeway=%s)\n",
		cfg.Token.SigningMethod, cfg.Token.Issuer, cfg.Token.Audience, cfg.Token.Leeway)

	purposes := make([]string, 0, len(token.Purposes))
	for _, p := range token.Purposes {
		purposes = append(purposes, string(p))
	}
	sort.Strings(purposes)
	for _, name := range purposes {
		p := token.Purpose(name)
		ttl, ok := cfg.Token.TTLs[p]
		if !ok {
			ttl = p.DefaultTTL()
		}
		fmt.Fprintf(w, "ttl:       %-18s %s\n", name, ttl)
	}

	fmt.Fprintf(w, "password:  argon2id m=%d t=%d p=%d min_length=%d legacy=%t\n",
		cfg.Password.Memory, cfg.Password.Time, cfg.Password.Parallelism,
		cfg.Account.MinPasswordLength, cfg.Password.AllowLegacyPlaintext)
	fmt.Fprintf(w, "lockout:   threshold=%d window=%s duration=%s\n",
		cfg.Lockout.Threshold, cfg.Lockout.Window, cfg.Lockout.Duration)
	fmt.Fprintf(w, "session:   lifetime=%s\n", cfg.Session.Lifetime)

	backend := "memory"
	if fc.Redis.Addr != "" {
		backend = "redis " + fc.Redis.Addr
	}
	fmt.Fprintf(w, "state:     %s\n", backend)
	users := "memory"
	if fc.Postgres.DSN != "" {
		users = "postgres"
	}
	fmt.Fprintf(w, "users:     %s\n", users)
}
