package credcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MrEthical07/credcore/account"
	"github.com/MrEthical07/credcore/internal/audit"
	"github.com/MrEthical07/credcore/password"
	"github.com/MrEthical07/credcore/stores/memory"
)

func TestSignInLockoutThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUpConfirmed(t, "alice@example.com", "Passw0rd!")

	for i := 0; i < 5; i++ {
		_, err := env.engine.SignIn(ctx, "alice@example.com", "wrong-password")
		requireReason(t, err, ReasonInvalidCredentials)
	}

	blocked, err := env.engine.attempts.IsBlocked(ctx, "alice@example.com")
	if err != nil || !blocked {
		t.Fatalf("expected blocked after 5 failures, blocked=%v err=%v", blocked, err)
	}

	// The sixth attempt never reaches the store, so it never reaches the hasher.
	before := env.users.lookups.Load()
	_, err = env.engine.SignIn(ctx, "alice@example.com", "Passw0rd!")
	requireReason(t, err, ReasonAccountLocked)
	if got := env.users.lookups.Load(); got != before {
		t.Fatalf("locked sign-in performed %d lookups", got-before)
	}
	var ve *ValidationError
	errors.As(err, &ve)
	if ve.RetryAfterMinutes != 15 {
		t.Fatalf("retry after = %d, want 15", ve.RetryAfterMinutes)
	}
	if got := testutil.ToFloat64(env.engine.metrics.lockouts); got != 1 {
		t.Fatalf("lockouts metric = %v", got)
	}

	env.clock.Advance(15 * time.Minute)

	blocked, err = env.engine.attempts.IsBlocked(ctx, "alice@example.com")
	if err != nil || blocked {
		t.Fatalf("expected unblocked after lockout, blocked=%v err=%v", blocked, err)
	}
	if _, err := env.engine.SignIn(ctx, "alice@example.com", "Passw0rd!"); err != nil {
		t.Fatalf("sign in after lockout: %v", err)
	}
}

func TestSignInLockoutMessageRoundsUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = env.engine.SignIn(ctx, "ghost@example.com", "whatever")
	}
	env.clock.Advance(13*time.Minute + 30*time.Second)

	_, err := env.engine.SignIn(ctx, "ghost@example.com", "whatever")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Reason != ReasonAccountLocked {
		t.Fatalf("expected lock, got %v", err)
	}
	if ve.RetryAfterMinutes != 2 {
		t.Fatalf("retry after = %d, want 2", ve.RetryAfterMinutes)
	}
	if !strings.Contains(ve.Error(), "2 minutes") {
		t.Fatalf("message = %q", ve.Error())
	}
}

func TestSignInUnknownEmailMatchesWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUpConfirmed(t, "alice@example.com", "Passw0rd!")

	_, unknown := env.engine.SignIn(ctx, "nobody@example.com", "Passw0rd!")
	_, wrong := env.engine.SignIn(ctx, "alice@example.com", "not-it")
	requireReason(t, unknown, ReasonInvalidCredentials)
	requireReason(t, wrong, ReasonInvalidCredentials)
	if unknown.Error() != wrong.Error() {
		t.Fatalf("messages differ: %q vs %q", unknown.Error(), wrong.Error())
	}

	rec, err := env.engine.attempts.Inspect(ctx, "nobody@example.com")
	if err != nil || rec.Count != 1 {
		t.Fatalf("unknown email failure not counted: %+v %v", rec, err)
	}
}

func TestSignInSuccessResetsFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUpConfirmed(t, "alice@example.com", "Passw0rd!")

	for i := 0; i < 4; i++ {
		_, _ = env.engine.SignIn(ctx, "alice@example.com", "wrong")
	}
	if _, err := env.engine.SignIn(ctx, "ALICE@example.com ", "Passw0rd!"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	rec, err := env.engine.attempts.Inspect(ctx, "alice@example.com")
	if err != nil || rec.Count != 0 {
		t.Fatalf("attempt record not cleared: %+v %v", rec, err)
	}
}

func TestSignInRejectedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	digest, err := env.engine.hasher.Hash("Passw0rd!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	env.seedAccount(t, account.Record{
		Email:        "rejected@example.com",
		PasswordHash: digest,
		Role:         RoleOrganization,
		Status:       StatusRejected,
	})

	_, err = env.engine.SignIn(ctx, "rejected@example.com", "Passw0rd!")
	requireReason(t, err, ReasonAccountRejected)

	// A wrong password still reads as a credential failure.
	_, err = env.engine.SignIn(ctx, "rejected@example.com", "nope-nope")
	requireReason(t, err, ReasonInvalidCredentials)
}

func TestSignInRequireValidatedEmail(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Account.RequireValidatedEmail = true })
	ctx := context.Background()

	if _, err := env.engine.SignUp(ctx, SignUpRequest{
		Email: "pending@example.com", Password: "Passw0rd!", Role: RoleEndUser, NationalID: "P-1",
	}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	_, err := env.engine.SignIn(ctx, "pending@example.com", "Passw0rd!")
	requireReason(t, err, ReasonAccountUnverified)
}

func TestSignInPendingAllowedByDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.SignUp(ctx, SignUpRequest{
		Email: "pending@example.com", Password: "Passw0rd!", Role: RoleEndUser, NationalID: "P-1",
	}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := env.engine.SignIn(ctx, "pending@example.com", "Passw0rd!"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
}

func TestSignInUpgradesLegacyPlaintext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.seedAccount(t, account.Record{
		Email:        "legacy@example.com",
		PasswordHash: "secret-legacy",
		Role:         RoleEndUser,
		Status:       StatusValidated,
	})

	_, err := env.engine.SignIn(ctx, "legacy@example.com", "wrong-legacy")
	requireReason(t, err, ReasonInvalidCredentials)

	if _, err := env.engine.SignIn(ctx, "legacy@example.com", "secret-legacy"); err != nil {
		t.Fatalf("legacy sign in: %v", err)
	}
	rec, _ := env.users.Store.FindByID(ctx, id)
	if password.Parse(rec.PasswordHash).Format != password.FormatArgon2id {
		t.Fatalf("record not upgraded: %q", rec.PasswordHash)
	}
	if got := testutil.ToFloat64(env.engine.metrics.hashUpgrades); got != 1 {
		t.Fatalf("upgrade metric = %v", got)
	}

	if _, err := env.engine.SignIn(ctx, "legacy@example.com", "secret-legacy"); err != nil {
		t.Fatalf("sign in after upgrade: %v", err)
	}
	if got := testutil.ToFloat64(env.engine.metrics.legacyVerified); got != 1 {
		t.Fatalf("legacy verification metric = %v, want 1", got)
	}
}

func TestSignInLegacyDisabledRejects(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Password.AllowLegacyPlaintext = false })
	env.seedAccount(t, account.Record{
		Email:        "legacy@example.com",
		PasswordHash: "secret-legacy",
		Role:         RoleEndUser,
		Status:       StatusValidated,
	})

	_, err := env.engine.SignIn(context.Background(), "legacy@example.com", "secret-legacy")
	requireReason(t, err, ReasonInvalidCredentials)
}

func TestSignInStoreFailureIsServiceError(t *testing.T) {
	env := newTestEnv(t)
	env.users.fail.Store(true)

	_, err := env.engine.SignIn(context.Background(), "alice@example.com", "Passw0rd!")
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("ServiceError does not match ErrServiceUnavailable")
	}
	if strings.Contains(err.Error(), errStoreDown.Error()) {
		t.Fatalf("internal cause leaked: %q", err.Error())
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("service error matched validation category")
	}
}

func TestSignInEmitsAuditEvents(t *testing.T) {
	sink := audit.NewChannelSink(16)
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	cfg.Audit.Enabled = true
	clock := newFakeClock()

	hasher, err := password.NewHasher(cfg.passwordConfig(), nil)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	digest, err := hasher.Hash("Passw0rd!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := memory.New()
	if _, err := users.Insert(context.Background(), account.Record{
		Email:        "seeded@example.com",
		PasswordHash: digest,
		Role:         RoleEndUser,
		Status:       StatusValidated,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	engine, err := New().
		WithConfig(cfg).
		WithUserStore(users).
		WithAuditSink(sink).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.7"), "test-agent")
	_, _ = engine.SignIn(ctx, "seeded@example.com", "bad-password")

	select {
	case ev := <-sink.Events():
		if ev.Type != auditEventSignInFailure || ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.IP != "203.0.113.7" || ev.UserAgent != "test-agent" {
			t.Fatalf("request metadata missing: %+v", ev)
		}
		if ev.Reason != string(ReasonInvalidCredentials) || ev.Metadata["cause"] != "password_mismatch" {
			t.Fatalf("unexpected reason %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no audit event")
	}
}

func TestSignInExternal(t *testing.T) {
	ext := ExternalIdentity{Provider: "google", Subject: "1093", Email: "Carol@Example.com"}

	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.engine.SignInExternal(context.Background(), ext)
		requireReason(t, err, ReasonForbidden)
	})

	t.Run("unknown account", func(t *testing.T) {
		env := newTestEnv(t, func(c *Config) { c.Account.AllowExternalSignIn = true })
		_, err := env.engine.SignInExternal(context.Background(), ext)
		requireReason(t, err, ReasonAccountNotFound)
	})

	t.Run("missing provider", func(t *testing.T) {
		env := newTestEnv(t, func(c *Config) { c.Account.AllowExternalSignIn = true })
		_, err := env.engine.SignInExternal(context.Background(), ExternalIdentity{Subject: "1", Email: "carol@example.com"})
		requireReason(t, err, ReasonInvalidInput)
	})

	t.Run("rejected account", func(t *testing.T) {
		env := newTestEnv(t, func(c *Config) { c.Account.AllowExternalSignIn = true })
		env.seedAccount(t, account.Record{
			Email:        "carol@example.com",
			PasswordHash: "unused",
			Role:         RoleEndUser,
			Status:       StatusRejected,
			NationalID:   "C-1",
		})
		_, err := env.engine.SignInExternal(context.Background(), ext)
		requireReason(t, err, ReasonAccountRejected)
	})

	t.Run("existing account", func(t *testing.T) {
		env := newTestEnv(t, func(c *Config) { c.Account.AllowExternalSignIn = true })
		carol := env.signUpConfirmed(t, "carol@example.com", "carol-password")
		ctx := context.Background()

		res, err := env.engine.SignInExternal(ctx, ext)
		if err != nil {
			t.Fatalf("external sign in: %v", err)
		}
		if res.Identity.UserID != carol.UserID || res.Session.AccessToken == "" {
			t.Fatalf("unexpected result %+v", res)
		}
		if id, ok := env.engine.CurrentIdentity(ctx); !ok || id.Email != "carol@example.com" {
			t.Fatalf("current identity = %+v ok=%v", id, ok)
		}
	})
}

func TestParallelSignInsCheckAtMostThresholdPasswords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUpConfirmed(t, "target@example.com", "target-password")

	before := env.users.lookups.Load()
	const attempts = 40
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.SignIn(ctx, "target@example.com", "wrong-password")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var invalid, locked int
	for err := range results {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			invalid++
		case errors.Is(err, ErrAccountLocked):
			locked++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if invalid != 5 || locked != attempts-5 {
		t.Fatalf("invalid=%d locked=%d, want 5 and %d", invalid, locked, attempts-5)
	}
	if checks := env.users.lookups.Load() - before; checks != 5 {
		t.Fatalf("password checks = %d, want 5", checks)
	}
}
