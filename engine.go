package credcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/credcore/account"
	"github.com/MrEthical07/credcore/attempts"
	"github.com/MrEthical07/credcore/internal/audit"
	"github.com/MrEthical07/credcore/internal/logging"
	"github.com/MrEthical07/credcore/notify"
	"github.com/MrEthical07/credcore/password"
	"github.com/MrEthical07/credcore/session"
	"github.com/MrEthical07/credcore/token"
)

// oops codes attached to infrastructure failures before they are logged.
const (
	codeStoreUnavailable     = "STORE_UNAVAILABLE"
	codeHashFailed           = "HASH_FAILED"
	codeTokenIssueFailed     = "TOKEN_ISSUE_FAILED"
	codeSessionPersistFailed = "SESSION_PERSIST_FAILED"
	codeAttemptsUnavailable  = "ATTEMPTS_UNAVAILABLE"
)

// Engine orchestrates the credential flows. Build one with New().Build().
//
// Engine instances are safe for concurrent use. All mutable state lives in
// the attempt store, the session storage and the user store.
type Engine struct {
	config    Config
	users     account.Store
	notifier  notify.Notifier
	hasher    *password.Hasher
	tokens    *token.Manager
	attempts  *attempts.Tracker
	sessions  *session.Manager
	audit     *audit.Dispatcher
	metrics   *Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
	dummyHash string
}

// Close flushes pending audit events. The engine must not be used after
// Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks AuditDropped down by event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil {
		return nil
	}
	return e.audit.DroppedByType()
}

// CurrentIdentity reads and validates the stored session. Any failure,
// including a storage error, yields false and leaves the slot cleared.
func (e *Engine) CurrentIdentity(ctx context.Context) (Identity, bool) {
	id, err := e.sessions.Current(ctx)
	if err != nil {
		// A bare ErrNoSession is the ordinary signed-out case.
		if err != session.ErrNoSession { //nolint:errorlint
			e.logger.DebugContext(ctx, "stored session rejected", "error", err)
		}
		return Identity{}, false
	}
	return id, true
}

// SignOut clears the stored session. It succeeds when no session exists.
func (e *Engine) SignOut(ctx context.Context) (err error) {
	ctx, span := e.startSpan(ctx, flowSignOut)
	defer func() { e.finish(span, flowSignOut, err) }()

	var userID, email string
	if s, loadErr := e.sessions.Load(ctx); loadErr == nil {
		userID, email = s.Identity.UserID, s.Identity.Email
	}

	if err := e.sessions.Invalidate(ctx); err != nil {
		return e.serviceFailure(ctx, flowSignOut, codeSessionPersistFailed, err)
	}
	if userID != "" {
		e.metrics.session("invalidated")
		e.emitAudit(ctx, auditEventSignOut, userID, email, nil, nil)
	}
	return nil
}

// VerifyAccessToken checks a bearer token without touching session storage.
// Only access tokens are accepted.
func (e *Engine) VerifyAccessToken(ctx context.Context, raw string) (Identity, error) {
	claims, err := e.tokens.Verify(raw)
	if err != nil {
		e.logger.DebugContext(ctx, "access token rejected", "error", err)
		return Identity{}, tokenFailure(err)
	}
	access, ok := claims.(token.AccessClaims)
	if !ok {
		return Identity{}, validationError(ReasonTokenWrongPurpose)
	}
	return Identity{UserID: access.Subject, Email: access.Email, Role: access.Role}, nil
}

// RefreshSession exchanges the stored refresh token for a new token pair.
// The session keeps its absolute expiry; an expired session is cleared and
// the caller must sign in again.
func (e *Engine) RefreshSession(ctx context.Context) (id Identity, err error) {
	ctx, span := e.startSpan(ctx, flowRefresh)
	defer func() { e.finish(span, flowRefresh, err) }()

	s, err := e.sessions.Load(ctx)
	switch {
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrCorrupt):
		return Identity{}, e.expireSession(ctx)
	case err != nil:
		return Identity{}, e.serviceFailure(ctx, flowRefresh, codeSessionPersistFailed, err)
	}
	if !e.now().Before(s.ExpiresAt) {
		return Identity{}, e.expireSession(ctx)
	}

	claims, err := e.tokens.Verify(s.RefreshToken)
	if err != nil {
		return Identity{}, e.expireSession(ctx)
	}
	refresh, ok := claims.(token.RefreshClaims)
	if !ok || refresh.Subject != s.Identity.UserID {
		return Identity{}, e.expireSession(ctx)
	}

	rec, err := e.users.FindByID(ctx, refresh.Subject)
	switch {
	case errors.Is(err, account.ErrNotFound):
		return Identity{}, e.expireSession(ctx)
	case err != nil:
		return Identity{}, e.serviceFailure(ctx, flowRefresh, codeStoreUnavailable, err)
	}
	if rec.Status == account.StatusRejected {
		_ = e.sessions.Invalidate(ctx)
		return Identity{}, validationError(ReasonAccountRejected)
	}

	id = identityOf(rec)
	accessToken, refreshToken, err := e.issueTokenPair(id)
	if err != nil {
		return Identity{}, e.serviceFailure(ctx, flowRefresh, codeTokenIssueFailed, err)
	}
	s.Identity = id
	if _, err := e.sessions.Rotate(ctx, s, accessToken, refreshToken); err != nil {
		return Identity{}, e.serviceFailure(ctx, flowRefresh, codeSessionPersistFailed, err)
	}

	e.metrics.session("rotated")
	e.emitAudit(ctx, auditEventSessionRefresh, id.UserID, id.Email, nil, nil)
	return id, nil
}

func (e *Engine) expireSession(ctx context.Context) error {
	if err := e.sessions.Invalidate(ctx); err != nil {
		e.logger.WarnContext(ctx, "clearing expired session failed", "error", err)
	}
	return validationError(ReasonSessionExpired)
}

// startSession issues a token pair for rec and stores it as the client's
// only session.
func (e *Engine) startSession(ctx context.Context, op string, rec *account.Record) (*SignInResult, error) {
	id := identityOf(rec)
	accessToken, refreshToken, err := e.issueTokenPair(id)
	if err != nil {
		return nil, e.serviceFailure(ctx, op, codeTokenIssueFailed, err)
	}
	s, err := e.sessions.Create(ctx, id, accessToken, refreshToken)
	if err != nil {
		return nil, e.serviceFailure(ctx, op, codeSessionPersistFailed, err)
	}
	e.metrics.session("created")
	return &SignInResult{Identity: id, Session: s}, nil
}

func (e *Engine) issueTokenPair(id Identity) (string, string, error) {
	accessToken, err := e.tokens.Issue(token.AccessClaims{
		Subject: id.UserID,
		Email:   id.Email,
		Role:    id.Role,
	}, 0)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := e.tokens.Issue(token.RefreshClaims{Subject: id.UserID}, 0)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// dispatch hands msg to the notifier. Delivery failures are logged and never
// undo the change that triggered the message.
func (e *Engine) dispatch(ctx context.Context, msg notify.Message, userID string) {
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.metrics.notifyFailed(string(msg.Kind))
		logging.LogError(ctx, e.logger, "notification dispatch failed",
			oops.Code("NOTIFY_FAILED").With("kind", string(msg.Kind)).With("user_id", userID).Wrap(err))
		e.emitAudit(ctx, auditEventNotificationUndelivered, userID, msg.Recipient, err, func() map[string]string {
			return map[string]string{"kind": string(msg.Kind)}
		})
	}
}

// serviceFailure logs err with its code and returns the generic error shown
// to callers.
func (e *Engine) serviceFailure(ctx context.Context, op, code string, err error) error {
	wrapped := oops.
		Code(code).
		In("credcore").
		With("operation", op).
		Wrap(err)
	logging.LogError(ctx, e.logger, "credential flow failed", wrapped)
	trace.SpanFromContext(ctx).RecordError(wrapped)
	return &ServiceError{Op: op}
}

// tokenFailure maps a verification error to the reason shown to the user.
func tokenFailure(err error) error {
	if errors.Is(err, token.ErrExpired) {
		return validationError(ReasonTokenExpired)
	}
	return validationError(ReasonTokenInvalid)
}

func (e *Engine) startSpan(ctx context.Context, flow string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "credcore."+flow)
}

func (e *Engine) finish(span trace.Span, flow string, err error) {
	result := resultLabel(err)
	span.SetAttributes(attribute.String("credcore.result", result))
	if errors.Is(err, ErrServiceUnavailable) {
		span.SetStatus(codes.Error, result)
	}
	span.End()
	e.metrics.flow(flow, err)
}

func identityOf(rec *account.Record) Identity {
	return Identity{UserID: rec.ID, Email: rec.Email, Role: string(rec.Role)}
}
