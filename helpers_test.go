package credcore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrEthical07/credcore/account"
	"github.com/MrEthical07/credcore/notify"
	"github.com/MrEthical07/credcore/session"
	"github.com/MrEthical07/credcore/stores/memory"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingStore wraps a memory store and can be switched into failure mode.
type countingStore struct {
	*memory.Store
	lookups atomic.Int64
	fail    atomic.Bool
}

var errStoreDown = errors.New("connection refused")

func (s *countingStore) FindByEmail(ctx context.Context, email string) (*account.Record, error) {
	s.lookups.Add(1)
	if s.fail.Load() {
		return nil, errStoreDown
	}
	return s.Store.FindByEmail(ctx, email)
}

func (s *countingStore) FindByID(ctx context.Context, id string) (*account.Record, error) {
	s.lookups.Add(1)
	if s.fail.Load() {
		return nil, errStoreDown
	}
	return s.Store.FindByID(ctx, id)
}

func (s *countingStore) Insert(ctx context.Context, r account.Record) (string, error) {
	if s.fail.Load() {
		return "", errStoreDown
	}
	return s.Store.Insert(ctx, r)
}

func (s *countingStore) Update(ctx context.Context, id string, u account.Update) error {
	if s.fail.Load() {
		return errStoreDown
	}
	return s.Store.Update(ctx, id, u)
}

type testEnv struct {
	engine *Engine
	users  *countingStore
	outbox *notify.Outbox
	clock   *fakeClock
	reg     *prometheus.Registry
	storage *session.MemoryStorage
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.PrivateKey = testSigningKey
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	env := &testEnv{
		users:  &countingStore{Store: memory.New()},
		outbox: notify.NewOutbox(),
		clock:  newFakeClock(),
		reg:     prometheus.NewRegistry(),
		storage: session.NewMemoryStorage(),
	}
	engine, err := New().
		WithConfig(cfg).
		WithUserStore(env.users).
		WithNotifier(env.outbox).
		WithMetricsRegisterer(env.reg).
		WithSessionStorage(env.storage).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// signUpConfirmed registers an end user and confirms the address.
func (env *testEnv) signUpConfirmed(t *testing.T, email, pw string) Identity {
	t.Helper()
	ctx := context.Background()

	res, err := env.engine.SignUp(ctx, SignUpRequest{
		Email:      email,
		Password:   pw,
		Role:       RoleEndUser,
		NationalID: "NID-" + email,
	})
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	msg, ok := env.outbox.Last(notify.KindEmailConfirmation, res.Identity.Email)
	if !ok {
		t.Fatalf("no confirmation sent to %s", email)
	}
	if _, err := env.engine.ConfirmEmail(ctx, msg.Token); err != nil {
		t.Fatalf("confirm %s: %v", email, err)
	}
	return res.Identity
}

// seedAccount inserts a record directly, bypassing sign-up.
func (env *testEnv) seedAccount(t *testing.T, rec account.Record) string {
	t.Helper()
	id, err := env.users.Store.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return id
}

func requireReason(t *testing.T, err error, want Reason) {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError(%s), got %v", want, err)
	}
	if ve.Reason != want {
		t.Fatalf("expected reason %s, got %s (%v)", want, ve.Reason, err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ValidationError does not match ErrValidation")
	}
}
