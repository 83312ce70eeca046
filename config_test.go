package credcore

import (
	"testing"
	"time"

	"github.com/MrEthical07/credcore/token"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test defaults valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "missing hs256 key",
			mutate: func(c *Config) {
				c.Token.PrivateKey = nil
			},
			wantValid: false,
		},
		{
			name: "short hs256 key",
			mutate: func(c *Config) {
				c.Token.PrivateKey = []byte("too-short")
			},
			wantValid: false,
		},
		{
			name: "ed25519 without public key",
			mutate: func(c *Config) {
				c.Token.SigningMethod = token.MethodEd25519
			},
			wantValid: false,
		},
		{
			name: "unsupported signing method",
			mutate: func(c *Config) {
				c.Token.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "zero lockout threshold",
			mutate: func(c *Config) {
				c.Lockout.Threshold = 0
			},
			wantValid: false,
		},
		{
			name: "negative lockout window",
			mutate: func(c *Config) {
				c.Lockout.Window = -time.Minute
			},
			wantValid: false,
		},
		{
			name: "zero session lifetime",
			mutate: func(c *Config) {
				c.Session.Lifetime = 0
			},
			wantValid: false,
		},
		{
			name: "zero min password length",
			mutate: func(c *Config) {
				c.Account.MinPasswordLength = 0
			},
			wantValid: false,
		},
		{
			name: "legacy reset with cutover",
			mutate: func(c *Config) {
				c.PasswordReset.AcceptLegacyTokens = true
				c.PasswordReset.LegacyCutover = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			},
			wantValid: true,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDefaultConfigNeedsKey(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("default config validated without a signing key")
	}
}

func TestWithConfigClonesKeyMaterial(t *testing.T) {
	cfg := testConfig()
	cfg.Token.PrivateKey = append([]byte(nil), testSigningKey...)
	cfg.Token.TTLs = map[token.Purpose]time.Duration{token.PurposeAccess: time.Minute}

	b := New().WithConfig(cfg)
	cfg.Token.PrivateKey[0] = 'X'
	cfg.Token.TTLs[token.PurposeAccess] = time.Hour

	if b.config.Token.PrivateKey[0] == 'X' {
		t.Fatalf("private key aliased")
	}
	if b.config.Token.TTLs[token.PurposeAccess] != time.Minute {
		t.Fatalf("ttl map aliased")
	}
}
