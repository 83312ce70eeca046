package credcore

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/credcore/account"
	"github.com/MrEthical07/credcore/attempts"
	"github.com/MrEthical07/credcore/internal/audit"
	"github.com/MrEthical07/credcore/notify"
	"github.com/MrEthical07/credcore/password"
	"github.com/MrEthical07/credcore/session"
	"github.com/MrEthical07/credcore/token"
)

const tracerName = "github.com/MrEthical07/credcore"

// dummyPassword is hashed once at build time so that sign-in for an unknown
// email costs the same as a real verification.
const dummyPassword = "credcore:no-such-account"

// Builder collects configuration and collaborators for an Engine.
//
// A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users          account.Store
	notifier       notify.Notifier
	attemptStore   attempts.Store
	sessionStorage session.Storage
	logger         *slog.Logger
	auditSink      audit.Sink
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	now            func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithUserStore sets the user record store. It is required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithNotifier sets the notification dispatcher. Without one, messages are
// only logged.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithRedis shares attempt records and session slots through client. An
// explicit WithAttemptStore or WithSessionStorage takes precedence.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAttemptStore overrides the attempt tracker backend.
func (b *Builder) WithAttemptStore(store attempts.Store) *Builder {
	b.attemptStore = store
	return b
}

// WithSessionStorage overrides the client-side session slot.
func (b *Builder) WithSessionStorage(storage session.Storage) *Builder {
	b.sessionStorage = storage
	return b
}

// WithLogger sets the engine logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when Config.Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsRegisterer sets the Prometheus registerer used when
// Config.Metrics is enabled.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithClock replaces time.Now for every component. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the components.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.users == nil {
		return nil, fmt.Errorf("%w: user store required", ErrEngineNotReady)
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = notify.LogNotifier{Logger: logger}
	}

	// -------- CREDENTIAL HASHER --------
	hasher, err := password.NewHasher(cfg.passwordConfig(), logger)
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	tokens, err := token.NewManager(token.Config{
		SigningMethod: cfg.Token.SigningMethod,
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		KeyID:         cfg.Token.KeyID,
		VerifyKeys:    cfg.Token.VerifyKeys,
		TTLs:          cfg.Token.TTLs,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	// -------- ATTEMPT TRACKER --------
	attemptStore := b.attemptStore
	switch {
	case attemptStore != nil:
	case b.redis != nil:
		attemptStore = attempts.NewRedisStore(b.redis, cfg.Lockout.RedisPrefix)
	default:
		attemptStore = attempts.NewMemoryStore()
	}
	tracker, err := attempts.NewTracker(attemptStore, attempts.Policy{
		Threshold:       cfg.Lockout.Threshold,
		Window:          cfg.Lockout.Window,
		LockoutDuration: cfg.Lockout.Duration,
	}, attempts.WithClock(now))
	if err != nil {
		return nil, err
	}

	// -------- SESSIONS --------
	storage := b.sessionStorage
	if storage == nil && b.redis != nil {
		storage = session.NewRedisStorage(b.redis, cfg.Session.RedisPrefix)
	}
	sessions, err := session.NewManager(session.Config{
		Lifetime: cfg.Session.Lifetime,
		Now:      now,
	}, tokens, storage)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		users:     b.users,
		notifier:  notifier,
		hasher:    hasher,
		tokens:    tokens,
		attempts:  tracker,
		sessions:  sessions,
		logger:    logger,
		validate:  newValidator(),
		now:       now,
		dummyHash: dummy,
	}

	// -------- OBSERVABILITY --------
	if cfg.Metrics.Enabled {
		m, err := NewMetrics(cfg.Metrics.Namespace, b.registerer)
		if err != nil {
			return nil, err
		}
		engine.metrics = m
	}
	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	engine.tracer = tp.Tracer(tracerName)

	sink := b.auditSink
	if sink == nil {
		sink = audit.SlogSink{Logger: logger}
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop:     func(ev audit.Event) { engine.metrics.auditDropped(ev.Type) },
	}, sink)

	b.built = true

	return engine, nil
}
