package credcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/credcore/account"
	"github.com/MrEthical07/credcore/notify"
	"github.com/MrEthical07/credcore/token"
)

// RequestPasswordReset sends a password reset token when email belongs to an
// account. The result does not reveal whether it does; only store failures
// are reported.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (err error) {
	ctx, span := e.startSpan(ctx, flowPasswordResetRequest)
	defer func() { e.finish(span, flowPasswordResetRequest, err) }()

	email = account.NormalizeEmail(email)
	if email == "" {
		return nil
	}

	rec, err := e.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, account.ErrNotFound):
		e.emitAudit(ctx, auditEventPasswordResetRequest, "", email, nil, func() map[string]string {
			return map[string]string{"delivered": "false"}
		})
		return nil
	case err != nil:
		return e.serviceFailure(ctx, flowPasswordResetRequest, codeStoreUnavailable, err)
	}
	if rec.Status == account.StatusRejected {
		return nil
	}

	raw, err := e.tokens.Issue(token.PasswordResetClaims{Subject: rec.ID, Email: rec.Email}, 0)
	if err != nil {
		return e.serviceFailure(ctx, flowPasswordResetRequest, codeTokenIssueFailed, err)
	}
	e.dispatch(ctx, notify.Message{
		Kind:        notify.KindPasswordReset,
		Recipient:   rec.Email,
		Token:       raw,
		DisplayName: rec.DisplayName,
	}, rec.ID)

	e.emitAudit(ctx, auditEventPasswordResetRequest, rec.ID, rec.Email, nil, nil)
	return nil
}

// CompletePasswordReset sets a new password using a password_reset token.
//
// Reset tokens minted before purpose tagging are accepted only while
// PasswordReset.AcceptLegacyTokens is set and only if they were issued before
// PasswordReset.LegacyCutover. The token's email must still be the account's
// email.
func (e *Engine) CompletePasswordReset(ctx context.Context, raw, newPassword string) (err error) {
	ctx, span := e.startSpan(ctx, flowPasswordReset)
	defer func() { e.finish(span, flowPasswordReset, err) }()

	claims, err := e.tokens.Verify(raw)
	if err != nil {
		e.logger.DebugContext(ctx, "password reset token rejected", "error", err)
		return tokenFailure(err)
	}

	var subject, email string
	legacy := false
	switch c := claims.(type) {
	case token.PasswordResetClaims:
		subject, email = c.Subject, c.Email
	case token.LegacyResetClaims:
		if !e.acceptLegacyReset(c) {
			return validationError(ReasonTokenWrongPurpose)
		}
		subject, email, legacy = c.Subject, c.Email, true
	default:
		return validationError(ReasonTokenWrongPurpose)
	}

	rec, err := e.users.FindByID(ctx, subject)
	switch {
	case errors.Is(err, account.ErrNotFound):
		return validationError(ReasonTokenInvalid)
	case err != nil:
		return e.serviceFailure(ctx, flowPasswordReset, codeStoreUnavailable, err)
	}
	if rec.Email != account.NormalizeEmail(email) {
		return validationError(ReasonTokenInvalid)
	}

	if len(newPassword) < e.config.Account.MinPasswordLength {
		return weakPassword(e.config.Account.MinPasswordLength)
	}
	digest, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.serviceFailure(ctx, flowPasswordReset, codeHashFailed, err)
	}

	err = e.users.Update(ctx, rec.ID, account.Update{PasswordHash: &digest})
	switch {
	case errors.Is(err, account.ErrNotFound):
		return validationError(ReasonTokenInvalid)
	case err != nil:
		return e.serviceFailure(ctx, flowPasswordReset, codeStoreUnavailable, err)
	}

	// A successful reset also lifts any lockout on the account.
	if err := e.attempts.RecordSuccess(ctx, rec.Email); err != nil {
		e.logger.WarnContext(ctx, "clearing attempt record failed", "error", err)
	}

	eventType := auditEventPasswordResetConfirm
	if legacy {
		eventType = auditEventPasswordResetLegacy
		e.logger.WarnContext(ctx, "password reset completed with legacy token", "user_id", rec.ID)
	}
	e.emitAudit(ctx, eventType, rec.ID, rec.Email, nil, nil)
	return nil
}

func (e *Engine) acceptLegacyReset(c token.LegacyResetClaims) bool {
	cfg := e.config.PasswordReset
	if !cfg.AcceptLegacyTokens {
		return false
	}
	issued := token.Timestamps(c).IssuedAt
	return !issued.IsZero() && issued.Before(cfg.LegacyCutover)
}
