package password

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrEmptyPassword is returned by Hash for a zero-length password.
	ErrEmptyPassword = errors.New("password is empty")
	// ErrHashingFailed signals that a digest could not be produced.
	ErrHashingFailed = errors.New("password hashing failed")
	// ErrMalformedHash signals a stored digest that cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrLegacyDisabled is returned when a plaintext record is verified after
	// legacy support has been switched off.
	ErrLegacyDisabled = errors.New("legacy plaintext credentials are disabled")
)

// Config holds argon2id costs and the legacy migration switch.
type Config struct {
	Params

	// AllowLegacyPlaintext keeps verification of unhashed records working
	// while they are being migrated.
	AllowLegacyPlaintext bool
}

// DefaultConfig returns production costs with legacy support on.
func DefaultConfig() Config {
	return Config{
		Params: Params{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		AllowLegacyPlaintext: true,
	}
}

// Hasher is the credential hasher used by the orchestrator. It is safe for
// concurrent use.
type Hasher struct {
	argon  *Argon2
	legacy bool
	logger *slog.Logger
}

// NewHasher builds a Hasher. A nil logger falls back to slog.Default.
func NewHasher(cfg Config, logger *slog.Logger) (*Hasher, error) {
	a, err := NewArgon2(cfg.Params)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hasher{argon: a, legacy: cfg.AllowLegacyPlaintext, logger: logger}, nil
}

// Hash returns an argon2id PHC string for password.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	return h.argon.Hash(password)
}

// Verify checks password against a stored credential of either format.
func (h *Hasher) Verify(password, stored string) (bool, error) {
	s := Parse(stored)

	switch s.Format {
	case FormatArgon2id:
		return h.argon.Verify(password, s.Value)
	case FormatLegacyPlaintext:
		return h.verifyLegacy(password, s.Value)
	default:
		return false, fmt.Errorf("%w: unknown format", ErrMalformedHash)
	}
}

func (h *Hasher) verifyLegacy(password, stored string) (bool, error) {
	if !h.legacy {
		return false, ErrLegacyDisabled
	}
	h.logger.Warn("legacy plaintext credential verified; record pending migration",
		slog.String("format", FormatLegacyPlaintext.String()))

	if stored == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1, nil
}

// NeedsUpgrade reports whether stored should be rehashed after a successful
// verification.
func (h *Hasher) NeedsUpgrade(stored string) bool {
	s := Parse(stored)

	switch s.Format {
	case FormatLegacyPlaintext:
		return true
	case FormatArgon2id:
		weaker, err := h.argon.Weaker(s.Value)
		return err == nil && weaker
	default:
		return false
	}
}
