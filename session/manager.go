package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credcore/token"
)

// AccessVerifier checks an access token. *token.Manager satisfies it.
type AccessVerifier interface {
	Verify(raw string) (token.Claims, error)
}

// Config configures a Manager.
type Config struct {
	// Lifetime is the absolute session lifetime, default 24h.
	Lifetime time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager creates, validates and clears the stored session. It is the only
// writer of Storage.
type Manager struct {
	verifier AccessVerifier
	storage  Storage
	lifetime time.Duration
	now      func() time.Time
}

// NewManager wires a Manager. A nil storage selects a MemoryStorage.
func NewManager(cfg Config, verifier AccessVerifier, storage Storage) (*Manager, error) {
	if verifier == nil {
		return nil, errors.New("session manager requires an access verifier")
	}
	if cfg.Lifetime < 0 {
		return nil, errors.New("session lifetime must not be negative")
	}
	if cfg.Lifetime == 0 {
		cfg.Lifetime = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &Manager{verifier: verifier, storage: storage, lifetime: cfg.Lifetime, now: cfg.Now}, nil
}

// Create stamps the absolute expiry and persists the session, replacing any
// previous one.
func (m *Manager) Create(ctx context.Context, id Identity, access, refresh string) (*Session, error) {
	if id.UserID == "" || access == "" || refresh == "" {
		return nil, errors.New("session requires identity and both tokens")
	}

	now := m.now()
	s := &Session{
		Identity:     id,
		AccessToken:  access,
		RefreshToken: refresh,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.lifetime),
	}
	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Rotate swaps the tokens of s and persists it with its original expiry.
func (m *Manager) Rotate(ctx context.Context, s *Session, access, refresh string) (*Session, error) {
	if s == nil || access == "" || refresh == "" {
		return nil, errors.New("rotate requires a session and both tokens")
	}
	id, ok := m.accessIdentity(access)
	if !ok || id.UserID != s.Identity.UserID {
		return nil, errors.New("rotate requires an access token for the session subject")
	}
	next := *s
	next.Identity = id
	next.AccessToken = access
	next.RefreshToken = refresh
	if err := m.persist(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (m *Manager) persist(ctx context.Context, s *Session) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	ttl := s.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	return m.storage.Save(ctx, data, ttl)
}

// Validate returns the identity signed into the session's access token. The
// session must not have expired and its stored identity must match the
// signed claims field for field.
func (m *Manager) Validate(s *Session) (Identity, bool) {
	if s == nil || s.Identity.UserID == "" {
		return Identity{}, false
	}
	if !m.now().Before(s.ExpiresAt) {
		return Identity{}, false
	}

	id, ok := m.accessIdentity(s.AccessToken)
	if !ok || id != s.Identity {
		return Identity{}, false
	}
	return id, true
}

func (m *Manager) accessIdentity(raw string) (Identity, bool) {
	claims, err := m.verifier.Verify(raw)
	if err != nil {
		return Identity{}, false
	}
	access, ok := claims.(token.AccessClaims)
	if !ok || access.Subject == "" {
		return Identity{}, false
	}
	return Identity{UserID: access.Subject, Email: access.Email, Role: access.Role}, true
}

// Load returns the stored session without validating it.
func (m *Manager) Load(ctx context.Context) (*Session, error) {
	data, err := m.storage.Load(ctx)
	if err != nil {
		return nil, err
	}
	s, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Current loads and validates the stored session. Anything short of a valid
// session clears storage and returns ErrNoSession. Storage failures are
// returned wrapped in ErrNoSession so callers still fail closed.
func (m *Manager) Current(ctx context.Context) (Identity, error) {
	s, err := m.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSession):
		return Identity{}, ErrNoSession
	case errors.Is(err, ErrCorrupt):
		return Identity{}, m.discard(ctx, err)
	case err != nil:
		return Identity{}, fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	id, ok := m.Validate(s)
	if !ok {
		return Identity{}, m.discard(ctx, nil)
	}
	return id, nil
}

func (m *Manager) discard(ctx context.Context, cause error) error {
	if err := m.storage.Clear(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if cause != nil {
		return fmt.Errorf("%w: %w", ErrNoSession, cause)
	}
	return ErrNoSession
}

// Invalidate clears the stored session. Clearing an empty slot is a no-op.
func (m *Manager) Invalidate(ctx context.Context) error {
	return m.storage.Clear(ctx)
}
