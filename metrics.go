package credcore

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Flow names used as the "flow" label.
const (
	flowSignUp               = "sign_up"
	flowSignIn               = "sign_in"
	flowSignInExternal       = "sign_in_external"
	flowSignOut              = "sign_out"
	flowRefresh              = "refresh"
	flowPasswordResetRequest = "password_reset_request"
	flowPasswordReset        = "password_reset"
	flowConfirmEmail         = "confirm_email"
	flowResendConfirmation   = "resend_confirmation"
	flowEmailChangeRequest   = "email_change_request"
	flowEmailChange          = "email_change"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	flows          *prometheus.CounterVec
	lockouts       prometheus.Counter
	hashUpgrades   prometheus.Counter
	legacyVerified prometheus.Counter
	notifyFailures *prometheus.CounterVec
	sessions       *prometheus.CounterVec
	auditDrops     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// selects prometheus.DefaultRegisterer. Collectors already registered by an
// earlier engine are reused.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_total",
			Help:      "Orchestrator flow outcomes by flow and result.",
		}, []string{"flow", "result"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lockouts_total",
			Help:      "Sign-in attempts rejected because the identifier was locked.",
		}),
		hashUpgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_hash_upgrades_total",
			Help:      "Stored credentials rehashed after a successful sign-in.",
		}),
		legacyVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "legacy_verifications_total",
			Help:      "Successful sign-ins against a legacy plaintext record.",
		}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notification dispatch failures by kind.",
		}, []string{"kind"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events.",
		}, []string{"event"}),
		auditDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Audit events discarded because the dispatcher buffer was full.",
		}, []string{"event"}),
	}

	var err error
	if m.flows, err = register(reg, m.flows); err != nil {
		return nil, err
	}
	if m.lockouts, err = register(reg, m.lockouts); err != nil {
		return nil, err
	}
	if m.hashUpgrades, err = register(reg, m.hashUpgrades); err != nil {
		return nil, err
	}
	if m.legacyVerified, err = register(reg, m.legacyVerified); err != nil {
		return nil, err
	}
	if m.notifyFailures, err = register(reg, m.notifyFailures); err != nil {
		return nil, err
	}
	if m.sessions, err = register(reg, m.sessions); err != nil {
		return nil, err
	}
	if m.auditDrops, err = register(reg, m.auditDrops); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) flow(name string, err error) {
	if m == nil {
		return
	}
	m.flows.WithLabelValues(name, resultLabel(err)).Inc()
}

func (m *Metrics) lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Metrics) hashUpgraded() {
	if m == nil {
		return
	}
	m.hashUpgrades.Inc()
}

// legacyVerification counts plaintext records still in use. Once it stays at
// zero, Password.AllowLegacyPlaintext can be turned off.
func (m *Metrics) legacyVerification() {
	if m == nil {
		return
	}
	m.legacyVerified.Inc()
}

func (m *Metrics) notifyFailed(kind string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) session(event string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(event).Inc()
}

func (m *Metrics) auditDropped(event string) {
	if m == nil {
		return
	}
	m.auditDrops.WithLabelValues(event).Inc()
}

// resultLabel collapses err into a bounded label set: "ok", "unavailable",
// or the validation reason.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return string(ve.Reason)
	}
	return "unavailable"
}
