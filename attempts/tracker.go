package attempts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrStoreUnavailable indicates the attempt store could not be reached.
	ErrStoreUnavailable = errors.New("attempt store unavailable")
	// ErrEmptyIdentifier is returned for blank identifiers.
	ErrEmptyIdentifier = errors.New("attempt identifier is empty")
)

// Policy holds the lockout thresholds.
type Policy struct {
	// Threshold is the number of failures within Window that locks the
	// identifier.
	Threshold int
	// Window is the rolling period over which failures are counted.
	Window time.Duration
	// LockoutDuration is how long a locked identifier stays locked.
	LockoutDuration time.Duration
}

// DefaultPolicy returns five failures per fifteen minutes, locked for fifteen
// minutes.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:       5,
		Window:          15 * time.Minute,
		LockoutDuration: 15 * time.Minute,
	}
}

// Validate reports an invalid policy.
func (p Policy) Validate() error {
	if p.Threshold <= 0 {
		return errors.New("attempt threshold must be > 0")
	}
	if p.Window <= 0 {
		return errors.New("attempt window must be > 0")
	}
	if p.LockoutDuration <= 0 {
		return errors.New("lockout duration must be > 0")
	}
	return nil
}

// State is the lockout state of one identifier.
type State uint8

const (
	StateClean State = iota
	StateAccumulating
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateLocked:
		return "locked"
	default:
		return "clean"
	}
}

// Record is the stored attempt state. The zero value is Clean.
type Record struct {
	Count       int
	WindowStart time.Time
	UnblockAt   time.Time
}

// State classifies r at now. A lock whose unblock time has passed reads as
// Clean.
func (r Record) State(now time.Time) State {
	switch {
	case !r.UnblockAt.IsZero() && now.Before(r.UnblockAt):
		return StateLocked
	case !r.UnblockAt.IsZero():
		return StateClean
	case r.Count > 0:
		return StateAccumulating
	default:
		return StateClean
	}
}

// expired reports whether r no longer carries any state at now: its lock has
// run out, or it is still counting but its window has passed.
func (r Record) expired(now time.Time, p Policy) bool {
	if !r.UnblockAt.IsZero() {
		return !now.Before(r.UnblockAt)
	}
	return r.Count == 0 || now.Sub(r.WindowStart) >= p.Window
}

// fail applies one failure to r. Both stores run exactly this transition,
// the memory store under its mutex and the redis store inside a script.
func (r Record) fail(now time.Time, p Policy) Record {
	switch r.State(now) {
	case StateLocked:
		return r
	case StateClean:
		r = Record{}
	}
	if r.Count == 0 || now.Sub(r.WindowStart) >= p.Window {
		r = Record{WindowStart: now}
	}
	r.Count++
	if r.Count >= p.Threshold {
		r.UnblockAt = now.Add(p.LockoutDuration)
	}
	return r
}

// Store persists attempt records. Implementations must apply Fail atomically
// per key.
type Store interface {
	// Fail records one failure for key and returns the resulting record.
	Fail(ctx context.Context, key string, now time.Time, p Policy) (Record, error)
	// Get returns the record for key, deleting it first if it has expired
	// under p.
	Get(ctx context.Context, key string, now time.Time, p Policy) (Record, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracker counts failed attempts per identifier and locks identifiers that
// cross the policy threshold.
type Tracker struct {
	store  Store
	policy Policy
	now    func() time.Time
	gate   *keyGate
}

// NewTracker returns a Tracker over store. A nil store selects a fresh
// MemoryStore.
func NewTracker(store Store, policy Policy, opts ...Option) (*Tracker, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = NewMemoryStore()
	}
	t := &Tracker{store: store, policy: policy, now: time.Now, gate: newKeyGate()}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Policy returns the configured policy.
func (t *Tracker) Policy() Policy { return t.policy }

// Key normalizes an identifier the same way for every operation.
func Key(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Hold serializes attempts for identifier within this process. A caller that
// checks IsBlocked, verifies a password and then records the outcome while
// holding it cannot be overtaken by a parallel attempt, so at most Threshold
// password checks run before the lock. The returned release is idempotent.
func (t *Tracker) Hold(identifier string) (release func()) {
	return t.gate.lock(Key(identifier))
}

// RecordFailure applies one failure. A locked identifier is left unchanged.
func (t *Tracker) RecordFailure(ctx context.Context, identifier string) (Record, error) {
	key := Key(identifier)
	if key == "" {
		return Record{}, ErrEmptyIdentifier
	}
	rec, err := t.store.Fail(ctx, key, t.now(), t.policy)
	if err != nil {
		return Record{}, wrapStore(err)
	}
	return rec, nil
}

// RecordSuccess clears all state for identifier.
func (t *Tracker) RecordSuccess(ctx context.Context, identifier string) error {
	key := Key(identifier)
	if key == "" {
		return nil
	}
	return wrapStore(t.store.Delete(ctx, key))
}

// IsBlocked reports whether identifier is currently locked. An expired lock
// is removed as a side effect.
func (t *Tracker) IsBlocked(ctx context.Context, identifier string) (bool, error) {
	rec, err := t.lookup(ctx, identifier)
	if err != nil {
		return false, err
	}
	return rec.State(t.now()) == StateLocked, nil
}

// RemainingLockMinutes rounds the remaining lock time up to whole minutes. It
// is 0 when the identifier is not locked.
func (t *Tracker) RemainingLockMinutes(ctx context.Context, identifier string) (int, error) {
	rec, err := t.lookup(ctx, identifier)
	if err != nil {
		return 0, err
	}
	now := t.now()
	if rec.State(now) != StateLocked {
		return 0, nil
	}
	return int(math.Ceil(rec.UnblockAt.Sub(now).Minutes())), nil
}

// Inspect returns the current record without changing it beyond lazy expiry.
func (t *Tracker) Inspect(ctx context.Context, identifier string) (Record, error) {
	return t.lookup(ctx, identifier)
}

func (t *Tracker) lookup(ctx context.Context, identifier string) (Record, error) {
	key := Key(identifier)
	if key == "" {
		return Record{}, nil
	}
	rec, err := t.store.Get(ctx, key, t.now(), t.policy)
	if err != nil {
		return Record{}, wrapStore(err)
	}
	return rec, nil
}

func wrapStore(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
