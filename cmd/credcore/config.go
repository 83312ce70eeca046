package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/token"
)

// secretEnv supplies the signing secret when neither the file nor the flags
// set one.
const secretEnv = "CREDCORE_TOKEN_SECRET"

type fileConfig struct {
	Log           logConfig           `koanf:"log"`
	Redis         redisConfig         `koanf:"redis"`
	Postgres      postgresConfig      `koanf:"postgres"`
	Token         tokenConfig         `koanf:"token"`
	Password      passwordConfig      `koanf:"password"`
	Lockout       lockoutConfig       `koanf:"lockout"`
	Session       sessionConfig       `koanf:"session"`
	Account       accountConfig       `koanf:"account"`
	PasswordReset passwordResetConfig `koanf:"password_reset"`
	Audit         auditConfig         `koanf:"audit"`
	Metrics       metricsConfig       `koanf:"metrics"`
}

type logConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type redisConfig struct {
	Addr string `koanf:"addr"`
}

type postgresConfig struct {
	DSN string `koanf:"dsn"`
}

type tokenConfig struct {
	Secret   string                   `koanf:"secret"`
	Issuer   string                   `koanf:"issuer"`
	Audience string                   `koanf:"audience"`
	Leeway   time.Duration            `koanf:"leeway"`
	TTL      map[string]time.Duration `koanf:"ttl"`
}

type passwordConfig struct {
	MemoryKB             uint32 `koanf:"memory_kb"`
	Time                 uint32 `koanf:"time"`
	Parallelism          uint8  `koanf:"parallelism"`
	UpgradeOnLogin       bool   `koanf:"upgrade_on_login"`
	AllowLegacyPlaintext bool   `koanf:"allow_legacy_plaintext"`
}

type lockoutConfig struct {
	Threshold int           `koanf:"threshold"`
	Window    time.Duration `koanf:"window"`
	Duration  time.Duration `koanf:"duration"`
}

type sessionConfig struct {
	Lifetime time.Duration `koanf:"lifetime"`
}

type accountConfig struct {
	MinPasswordLength     int  `koanf:"min_password_length"`
	RequireValidatedEmail bool `koanf:"require_validated_email"`
	AllowExternalSignIn   bool `koanf:"allow_external_sign_in"`
}

type passwordResetConfig struct {
	AcceptLegacyTokens bool   `koanf:"accept_legacy_tokens"`
	LegacyCutover      string `koanf:"legacy_cutover"`
}

type auditConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
}

type metricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}

func defaultFileConfig() fileConfig {
	d := credcore.DefaultConfig()
	return fileConfig{
		Log: logConfig{Level: "info", Format: "text"},
		Token: tokenConfig{
			Issuer: d.Token.Issuer,
		},
		Password: passwordConfig{
			MemoryKB:             d.Password.Memory,
			Time:                 d.Password.Time,
			Parallelism:          d.Password.Parallelism,
			UpgradeOnLogin:       d.Password.UpgradeOnLogin,
			AllowLegacyPlaintext: d.Password.AllowLegacyPlaintext,
		},
		Lockout: lockoutConfig{
			Threshold: d.Lockout.Threshold,
			Window:    d.Lockout.Window,
			Duration:  d.Lockout.Duration,
		},
		Session: sessionConfig{Lifetime: d.Session.Lifetime},
		Account: accountConfig{MinPasswordLength: d.Account.MinPasswordLength},
		Audit:   auditConfig{BufferSize: d.Audit.BufferSize},
		Metrics: metricsConfig{Namespace: d.Metrics.Namespace},
	}
}

// addConfigFlags registers one flag per overridable key. Flag names are the
// dotted koanf keys so posflag can merge them over the file.
func addConfigFlags(fs *pflag.FlagSet) {
	d := defaultFileConfig()

	fs.String("log.level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("log.format", d.Log.Format, "log format: text or json")
	fs.String("redis.addr", d.Redis.Addr, "redis address; empty uses in-process state")
	fs.String("postgres.dsn", d.Postgres.DSN, "postgres connection string; empty uses the in-memory user store")
	fs.String("token.secret", "", "hs256 signing secret (prefer "+secretEnv+")")
	fs.String("token.issuer", d.Token.Issuer, "token issuer")
	fs.String("token.audience", d.Token.Audience, "token audience")
	fs.Uint32("password.memory_kb", d.Password.MemoryKB, "argon2id memory in KiB")
	fs.Uint32("password.time", d.Password.Time, "argon2id iterations")
	fs.Uint8("password.parallelism", d.Password.Parallelism, "argon2id lanes")
	fs.Int("lockout.threshold", d.Lockout.Threshold, "failures before lockout")
	fs.Duration("lockout.window", d.Lockout.Window, "failure counting window")
	fs.Duration("lockout.duration", d.Lockout.Duration, "lockout duration")
	fs.Duration("session.lifetime", d.Session.Lifetime, "absolute session lifetime")
	fs.Int("account.min_password_length", d.Account.MinPasswordLength, "minimum password length")
}

// loadConfig layers defaults, the optional YAML file and changed flags.
func loadConfig(path string, fs *pflag.FlagSet) (fileConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fileConfig{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return fileConfig{}, fmt.Errorf("load flags: %w", err)
		}
	}

	fc := defaultFileConfig()
	if err := k.UnmarshalWithConf("", &fc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fileConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if fc.Token.Secret == "" {
		fc.Token.Secret = os.Getenv(secretEnv)
	}
	return fc, nil
}

// engineConfig maps the file layout onto credcore.Config.
func (fc fileConfig) engineConfig() (credcore.Config, error) {
	cfg := credcore.DefaultConfig()

	cfg.Token.PrivateKey = []byte(fc.Token.Secret)
	cfg.Token.Issuer = fc.Token.Issuer
	cfg.Token.Audience = fc.Token.Audience
	cfg.Token.Leeway = fc.Token.Leeway
	if len(fc.Token.TTL) > 0 {
		cfg.Token.TTLs = make(map[token.Purpose]time.Duration, len(fc.Token.TTL))
		for name, ttl := range fc.Token.TTL {
			p := token.Purpose(strings.TrimSpace(name))
			if p.DefaultTTL() == 0 {
				return credcore.Config{}, fmt.Errorf("token.ttl: unknown purpose %q", name)
			}
			cfg.Token.TTLs[p] = ttl
		}
	}

	cfg.Password.Memory = fc.Password.MemoryKB
	cfg.Password.Time = fc.Password.Time
	cfg.Password.Parallelism = fc.Password.Parallelism
	cfg.Password.UpgradeOnLogin = fc.Password.UpgradeOnLogin
	cfg.Password.AllowLegacyPlaintext = fc.Password.AllowLegacyPlaintext

	cfg.Lockout.Threshold = fc.Lockout.Threshold
	cfg.Lockout.Window = fc.Lockout.Window
	cfg.Lockout.Duration = fc.Lockout.Duration
	cfg.Session.Lifetime = fc.Session.Lifetime

	cfg.Account.MinPasswordLength = fc.Account.MinPasswordLength
	cfg.Account.RequireValidatedEmail = fc.Account.RequireValidatedEmail
	cfg.Account.AllowExternalSignIn = fc.Account.AllowExternalSignIn

	cfg.PasswordReset.AcceptLegacyTokens = fc.PasswordReset.AcceptLegacyTokens
	if fc.PasswordReset.LegacyCutover != "" {
		cutover, err := time.Parse(time.RFC3339, fc.PasswordReset.LegacyCutover)
		if err != nil {
			return credcore.Config{}, fmt.Errorf("password_reset.legacy_cutover: %w", err)
		}
		cfg.PasswordReset.LegacyCutover = cutover
	}

	cfg.Audit.Enabled = fc.Audit.Enabled
	cfg.Audit.BufferSize = fc.Audit.BufferSize
	cfg.Metrics.Enabled = fc.Metrics.Enabled
	cfg.Metrics.Namespace = fc.Metrics.Namespace

	if err := cfg.Validate(); err != nil {
		return credcore.Config{}, err
	}
	return cfg, nil
}
