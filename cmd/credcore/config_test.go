package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/MrEthical07/credcore/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credcore.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(secretEnv, "")

	fc, err := loadConfig("", newFlags(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Lockout.Threshold != 5 || fc.Lockout.Window != 15*time.Minute {
		t.Fatalf("unexpected lockout defaults %+v", fc.Lockout)
	}
	if fc.Session.Lifetime != 24*time.Hour {
		t.Fatalf("session lifetime = %s", fc.Session.Lifetime)
	}
	if _, err := fc.engineConfig(); err == nil {
		t.Fatalf("expected missing secret to fail validation")
	}
}

func TestLoadConfigFileThenFlags(t *testing.T) {
	t.Setenv(secretEnv, "")
	path := writeConfig(t, `
log:
  level: debug
token:
  secret: `+testSecret+`
  issuer: accounts.example
  ttl:
    password_reset: 30m
lockout:
  threshold: 7
  window: 10m
password:
  memory_kb: 8192
  time: 1
  parallelism: 1
password_reset:
  accept_legacy_tokens: true
  legacy_cutover: "2026-01-01T00:00:00Z"
`)

	fc, err := loadConfig(path, newFlags(t, "--lockout.threshold=3"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Log.Level != "debug" {
		t.Fatalf("log level = %q", fc.Log.Level)
	}
	if fc.Lockout.Threshold != 3 {
		t.Fatalf("flag did not override file: threshold=%d", fc.Lockout.Threshold)
	}
	if fc.Lockout.Window != 10*time.Minute {
		t.Fatalf("window = %s", fc.Lockout.Window)
	}

	cfg, err := fc.engineConfig()
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if cfg.Token.Issuer != "accounts.example" {
		t.Fatalf("issuer = %q", cfg.Token.Issuer)
	}
	if cfg.Token.TTLs[token.PurposePasswordReset] != 30*time.Minute {
		t.Fatalf("reset ttl = %s", cfg.Token.TTLs[token.PurposePasswordReset])
	}
	if cfg.Password.Memory != 8192 || cfg.Password.Time != 1 {
		t.Fatalf("password params = %+v", cfg.Password)
	}
	if !cfg.PasswordReset.LegacyCutover.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("cutover = %s", cfg.PasswordReset.LegacyCutover)
	}
}

func TestLoadConfigSecretFromEnv(t *testing.T) {
	t.Setenv(secretEnv, testSecret)

	fc, err := loadConfig("", newFlags(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Token.Secret != testSecret {
		t.Fatalf("secret not taken from env")
	}
	if _, err := fc.engineConfig(); err != nil {
		t.Fatalf("engine config: %v", err)
	}
}

func TestEngineConfigRejectsUnknownPurpose(t *testing.T) {
	t.Setenv(secretEnv, testSecret)
	path := writeConfig(t, "token:\n  ttl:\n    session: 1h\n")

	fc, err := loadConfig(path, newFlags(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := fc.engineConfig(); err == nil {
		t.Fatalf("expected unknown purpose error")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
