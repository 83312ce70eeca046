package credcore

import (
	"errors"
	"maps"
	"time"

	"github.com/MrEthical07/credcore/password"
	"github.com/MrEthical07/credcore/token"
)

// Config is the full engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Token         TokenConfig
	Password      PasswordConfig
	Lockout       LockoutConfig
	Session       SessionConfig
	Account       AccountConfig
	PasswordReset PasswordResetConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures signing for every token purpose.
type TokenConfig struct {
	SigningMethod token.SigningMethod // hs256 (default) or ed25519
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// TTLs overrides the per-purpose defaults (access 24h, refresh 7d,
	// email_confirmation 24h, password_reset 1h, email_change 24h).
	TTLs map[token.Purpose]time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id costs and the legacy migration switches.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// UpgradeOnLogin rehashes legacy or weaker records after a successful
	// sign-in.
	UpgradeOnLogin bool
	// AllowLegacyPlaintext keeps unhashed records verifiable during migration.
	AllowLegacyPlaintext bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig sets the failed sign-in policy.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
	Duration  time.Duration
	// RedisPrefix namespaces attempt records when a Redis client is wired.
	RedisPrefix string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig sets the absolute session lifetime.
type SessionConfig struct {
	Lifetime time.Duration
	// RedisPrefix namespaces session slots when a Redis client is wired.
	RedisPrefix string
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig holds sign-up and sign-in account rules.
type AccountConfig struct {
	// MinPasswordLength is the shortest accepted new password, in bytes.
	MinPasswordLength int
	// RequireValidatedEmail blocks sign-in for pending accounts.
	RequireValidatedEmail bool
	// AllowExternalSignIn enables SignInExternal.
	AllowExternalSignIn bool
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig scopes acceptance of reset tokens minted before
// purpose tagging.
type PasswordResetConfig struct {
	AcceptLegacyTokens bool
	// LegacyCutover is required when AcceptLegacyTokens is set; only tokens
	// issued strictly before it are accepted.
	LegacyCutover time.Time
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls Prometheus counters.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// DefaultConfig returns the production defaults. Signing keys are left
// empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Token: TokenConfig{
			SigningMethod: token.MethodHS256,
			Issuer:        "credcore",
		},
		Password: PasswordConfig{
			Memory:               pw.Memory,
			Time:                 pw.Time,
			Parallelism:          pw.Parallelism,
			SaltLength:           pw.SaltLength,
			KeyLength:            pw.KeyLength,
			UpgradeOnLogin:       true,
			AllowLegacyPlaintext: true,
		},
		Lockout: LockoutConfig{
			Threshold:   5,
			Window:      15 * time.Minute,
			Duration:    15 * time.Minute,
			RedisPrefix: "cca:",
		},
		Session: SessionConfig{
			Lifetime:    24 * time.Hour,
			RedisPrefix: "ccs:",
		},
		Account: AccountConfig{
			MinPasswordLength: 8,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "credcore",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	if cfg.Token.VerifyKeys != nil {
		out.Token.VerifyKeys = make(map[string][]byte, len(cfg.Token.VerifyKeys))
		for kid, key := range cfg.Token.VerifyKeys {
			out.Token.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.Token.TTLs = maps.Clone(cfg.Token.TTLs)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Validate reports the first invalid setting. Component constructors repeat
// their own checks; this catches cross-field mistakes early.
func (c *Config) Validate() error {
	// Token
	switch c.Token.SigningMethod {
	case token.MethodHS256:
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("Token PrivateKey is required for hs256")
		}
		if len(c.Token.PrivateKey) < 32 {
			return errors.New("Token PrivateKey must be at least 32 bytes for hs256")
		}
	case token.MethodEd25519:
		if len(c.Token.PublicKey) == 0 && len(c.Token.VerifyKeys) == 0 {
			return errors.New("Token PublicKey or VerifyKeys is required for ed25519")
		}
	default:
		return errors.New("unsupported Token SigningMethod")
	}

	// Account
	if c.Account.MinPasswordLength < 1 {
		return errors.New("Account MinPasswordLength must be >= 1")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Session
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}

	// Password reset
	if c.PasswordReset.AcceptLegacyTokens && c.PasswordReset.LegacyCutover.IsZero() {
		return errors.New("PasswordReset LegacyCutover is required when AcceptLegacyTokens is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Params: password.Params{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		AllowLegacyPlaintext: c.Password.AllowLegacyPlaintext,
	}
}
