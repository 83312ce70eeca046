package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/credcore/token"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var alice = Identity{UserID: "u-alice", Email: "alice@example.com", Role: "end_user"}

type fixture struct {
	clock   *testClock
	tokens  *token.Manager
	manager *Manager
	storage Storage
}

func newFixture(t *testing.T, storage Storage, accessTTL time.Duration) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	tokens, err := token.NewManager(token.Config{
		SigningMethod: token.MethodHS256,
		PrivateKey:    []byte("session-test-secret-session-test"),
		TTLs:          map[token.Purpose]time.Duration{token.PurposeAccess: accessTTL},
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("token.NewManager error: %v", err)
	}
	m, err := NewManager(Config{Lifetime: 24 * time.Hour, Now: clock.Now}, tokens, storage)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return &fixture{clock: clock, tokens: tokens, manager: m, storage: storage}
}

func (f *fixture) issuePair(t *testing.T, id Identity) (string, string) {
	t.Helper()
	access, err := f.tokens.Issue(token.AccessClaims{Subject: id.UserID, Email: id.Email, Role: id.Role}, 0)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	refresh, err := f.tokens.Issue(token.RefreshClaims{Subject: id.UserID}, 0)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	return access, refresh
}

func TestCreateAndCurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewMemoryStorage(), time.Hour)
	access, refresh := f.issuePair(t, alice)

	s, err := f.manager.Create(ctx, alice, access, refresh)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !s.ExpiresAt.Equal(f.clock.now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", s.ExpiresAt)
	}

	got, err := f.manager.Current(ctx)
	if err != nil {
		t.Fatalf("Current error: %v", err)
	}
	if got != alice {
		t.Fatalf("Current = %+v, want %+v", got, alice)
	}
}

func TestValidateRejectsExpiredAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewMemoryStorage(), time.Hour)
	access, refresh := f.issuePair(t, alice)
	s, _ := f.manager.Create(ctx, alice, access, refresh)

	f.clock.Advance(2 * time.Hour)
	if _, ok := f.manager.Validate(s); ok {
		t.Fatal("expected session with expired access token to be rejected")
	}

	if _, err := f.manager.Current(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := f.storage.Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatal("expected failed validation to clear storage")
	}
}

func TestValidateRejectsExpiredSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewMemoryStorage(), 48*time.Hour)
	access, refresh := f.issuePair(t, alice)
	s, _ := f.manager.Create(ctx, alice, access, refresh)

	f.clock.Advance(25 * time.Hour)
	if _, err := f.tokens.Verify(access); err != nil {
		t.Fatalf("access token should still verify: %v", err)
	}
	if _, ok := f.manager.Validate(s); ok {
		t.Fatal("expected expired session to be rejected")
	}
}

func TestValidateRejectsWrongPurposeToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewMemoryStorage(), time.Hour)
	_, refresh := f.issuePair(t, alice)

	s, err := f.manager.Create(ctx, alice, refresh, refresh)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, ok := f.manager.Validate(s); ok {
		t.Fatal("expected refresh token in the access slot to be rejected")
	}
}

func TestValidateRejectsSubjectMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewMemoryStorage(), time.Hour)
	access, refresh := f.issuePair(t, Identity{UserID: "u-mallory", Role: "administrator"})

	s, _ := f.manager.Create(ctx, alice, access, refresh)
	if _, ok := f.manager.Validate(s); ok {
		t.Fatal("expected token for another subject to be rejected")
	}
	if _, ok := f.manager.Validate(nil); ok {
		t.Fatal("expected nil session to be rejected")
	}
}

func TestValidateRejectsIdentityMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewMemoryStorage(), time.Hour)
	access, refresh := f.issuePair(t, alice)

	tampered := []Identity{
		{UserID: alice.UserID, Email: alice.Email, Role: "administrator"},
		{UserID: alice.UserID, Email: "someone-else@example.com", Role: alice.Role},
	}
	for _, id := range tampered {
		blob, err := Encode(&Session{
			Identity:     id,
			AccessToken:  access,
			RefreshToken: refresh,
			CreatedAt:    f.clock.Now(),
			ExpiresAt:    f.clock.Now().Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("Encode error: %v", err)
		}
		if err := f.storage.Save(ctx, blob, time.Hour); err != nil {
			t.Fatalf("Save error: %v", err)
		}

		got, err := f.manager.Current(ctx)
		if !errors.Is(err, ErrNoSession) {
			t.Fatalf("stored identity %+v accepted as %+v", id, got)
		}
		if _, err := f.storage.Load(ctx); !errors.Is(err, ErrNoSession) {
			t.Fatal("expected tampered session to be cleared")
		}
	}
}

func TestValidateReturnsSignedIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewMemoryStorage(), time.Hour)
	access, refresh := f.issuePair(t, alice)
	if _, err := f.manager.Create(ctx, alice, access, refresh); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	id, err := f.manager.Current(ctx)
	if err != nil {
		t.Fatalf("Current error: %v", err)
	}
	if id != alice {
		t.Fatalf("Current = %+v, want %+v", id, alice)
	}
}

func TestCurrentClearsCorruptBlob(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	f := newFixture(t, storage, time.Hour)
	_ = storage.Save(ctx, []byte{0x7f, 0x01}, time.Hour)

	if _, err := f.manager.Current(ctx); !errors.Is(err, ErrNoSession) || !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrNoSession wrapping ErrCorrupt, got %v", err)
	}
	if _, err := storage.Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatal("expected corrupt blob to be cleared")
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewMemoryStorage(), time.Hour)

	if err := f.manager.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate on empty storage error: %v", err)
	}
	access, refresh := f.issuePair(t, alice)
	_, _ = f.manager.Create(ctx, alice, access, refresh)
	for i := 0; i < 2; i++ {
		if err := f.manager.Invalidate(ctx); err != nil {
			t.Fatalf("Invalidate #%d error: %v", i, err)
		}
	}
	if _, err := f.manager.Current(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after invalidate, got %v", err)
	}
}

func TestRotateKeepsAbsoluteExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewMemoryStorage(), time.Hour)
	access, refresh := f.issuePair(t, alice)
	s, _ := f.manager.Create(ctx, alice, access, refresh)

	f.clock.Advance(90 * time.Minute)
	access2, refresh2 := f.issuePair(t, alice)
	rotated, err := f.manager.Rotate(ctx, s, access2, refresh2)
	if err != nil {
		t.Fatalf("Rotate error: %v", err)
	}
	if !rotated.ExpiresAt.Equal(s.ExpiresAt) {
		t.Fatalf("rotate changed expiry: %v -> %v", s.ExpiresAt, rotated.ExpiresAt)
	}
	if _, err := f.manager.Current(ctx); err != nil {
		t.Fatalf("Current after rotate error: %v", err)
	}
}

func TestRotateTakesIdentityFromAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, NewMemoryStorage(), time.Hour)
	access, refresh := f.issuePair(t, alice)
	s, _ := f.manager.Create(ctx, alice, access, refresh)

	promoted := alice
	promoted.Role = "organization"
	access2, refresh2 := f.issuePair(t, promoted)
	rotated, err := f.manager.Rotate(ctx, s, access2, refresh2)
	if err != nil {
		t.Fatalf("Rotate error: %v", err)
	}
	if rotated.Identity != promoted {
		t.Fatalf("rotated identity = %+v", rotated.Identity)
	}
	if id, err := f.manager.Current(ctx); err != nil || id != promoted {
		t.Fatalf("Current after rotate = %+v, %v", id, err)
	}

	other, otherRefresh := f.issuePair(t, Identity{UserID: "u-mallory", Role: "end_user"})
	if _, err := f.manager.Rotate(ctx, rotated, other, otherRefresh); err == nil {
		t.Fatal("expected rotate to refuse a token for another subject")
	}
}

func TestRedisStoragePerClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	storage := NewRedisStorage(client, "")
	f := newFixture(t, storage, time.Hour)
	access, refresh := f.issuePair(t, alice)

	ctxA := WithClientID(context.Background(), "client-a")
	ctxB := WithClientID(context.Background(), "client-b")

	if _, err := f.manager.Create(ctxA, alice, access, refresh); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if ttl := mr.TTL("ccs:client-a"); ttl != 24*time.Hour {
		t.Fatalf("TTL = %v, want 24h", ttl)
	}
	if _, err := f.manager.Current(ctxA); err != nil {
		t.Fatalf("Current(client-a) error: %v", err)
	}
	if _, err := f.manager.Current(ctxB); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected client-b to have no session, got %v", err)
	}

	if _, err := f.manager.Create(context.Background(), alice, access, refresh); !errors.Is(err, ErrNoClientID) {
		t.Fatalf("expected ErrNoClientID, got %v", err)
	}
	if err := f.manager.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate without client id error: %v", err)
	}
	if err := f.manager.Invalidate(ctxA); err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}
	if mr.Exists("ccs:client-a") {
		t.Fatal("expected redis key to be deleted")
	}
}
