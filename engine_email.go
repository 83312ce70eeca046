package credcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/credcore/account"
	"github.com/MrEthical07/credcore/notify"
	"github.com/MrEthical07/credcore/token"
)

// ConfirmEmail marks the account named by an email_confirmation token as
// validated. Confirming twice is not an error.
func (e *Engine) ConfirmEmail(ctx context.Context, raw string) (id Identity, err error) {
	ctx, span := e.startSpan(ctx, flowConfirmEmail)
	defer func() { e.finish(span, flowConfirmEmail, err) }()

	claims, err := e.tokens.Verify(raw)
	if err != nil {
		return Identity{}, tokenFailure(err)
	}
	c, ok := claims.(token.EmailConfirmationClaims)
	if !ok {
		return Identity{}, validationError(ReasonTokenWrongPurpose)
	}

	rec, err := e.users.FindByID(ctx, c.Subject)
	switch {
	case errors.Is(err, account.ErrNotFound):
		return Identity{}, validationError(ReasonTokenInvalid)
	case err != nil:
		return Identity{}, e.serviceFailure(ctx, flowConfirmEmail, codeStoreUnavailable, err)
	}
	// The address changed after this token was sent.
	if rec.Email != account.NormalizeEmail(c.Email) {
		return Identity{}, validationError(ReasonTokenInvalid)
	}

	switch rec.Status {
	case account.StatusRejected:
		return Identity{}, validationError(ReasonAccountRejected)
	case account.StatusPending:
		validated := account.StatusValidated
		if err := e.users.Update(ctx, rec.ID, account.Update{Status: &validated}); err != nil {
			return Identity{}, e.serviceFailure(ctx, flowConfirmEmail, codeStoreUnavailable, err)
		}
	}

	e.emitAudit(ctx, auditEventEmailConfirm, rec.ID, rec.Email, nil, nil)
	return identityOf(rec), nil
}

// RequestEmailChange sends an email_change token to newEmail. The caller
// must be signed in as the owner of currentEmail.
func (e *Engine) RequestEmailChange(ctx context.Context, currentEmail, newEmail string) (err error) {
	ctx, span := e.startSpan(ctx, flowEmailChangeRequest)
	defer func() { e.finish(span, flowEmailChangeRequest, err) }()

	current := account.NormalizeEmail(currentEmail)
	next := account.NormalizeEmail(newEmail)
	if err := e.validateEmail("new_email", next); err != nil {
		return err
	}
	if current == next {
		return validationError(ReasonEmailUnchanged)
	}

	caller, ok := e.CurrentIdentity(ctx)
	if !ok || caller.Email != current {
		return validationError(ReasonForbidden)
	}

	rec, err := e.users.FindByEmail(ctx, current)
	switch {
	case errors.Is(err, account.ErrNotFound):
		return validationError(ReasonAccountNotFound)
	case err != nil:
		return e.serviceFailure(ctx, flowEmailChangeRequest, codeStoreUnavailable, err)
	}

	_, err = e.users.FindByEmail(ctx, next)
	switch {
	case err == nil:
		return validationError(ReasonEmailTaken)
	case !errors.Is(err, account.ErrNotFound):
		return e.serviceFailure(ctx, flowEmailChangeRequest, codeStoreUnavailable, err)
	}

	raw, err := e.tokens.Issue(token.EmailChangeClaims{
		Subject:  rec.ID,
		OldEmail: rec.Email,
		NewEmail: next,
	}, 0)
	if err != nil {
		return e.serviceFailure(ctx, flowEmailChangeRequest, codeTokenIssueFailed, err)
	}
	e.dispatch(ctx, notify.Message{
		Kind:        notify.KindEmailChange,
		Recipient:   next,
		Token:       raw,
		DisplayName: rec.DisplayName,
	}, rec.ID)

	e.emitAudit(ctx, auditEventEmailChangeRequest, rec.ID, rec.Email, nil, func() map[string]string {
		return map[string]string{"new_email": next}
	})
	return nil
}

// ConfirmEmailChange applies the change carried by an email_change token.
// The new address is checked for uniqueness again, and the caller's session
// is cleared when it belongs to the changed account.
func (e *Engine) ConfirmEmailChange(ctx context.Context, raw string) (id Identity, err error) {
	ctx, span := e.startSpan(ctx, flowEmailChange)
	defer func() { e.finish(span, flowEmailChange, err) }()

	claims, err := e.tokens.Verify(raw)
	if err != nil {
		return Identity{}, tokenFailure(err)
	}
	c, ok := claims.(token.EmailChangeClaims)
	if !ok {
		return Identity{}, validationError(ReasonTokenWrongPurpose)
	}
	oldEmail := account.NormalizeEmail(c.OldEmail)
	newEmail := account.NormalizeEmail(c.NewEmail)

	rec, err := e.users.FindByID(ctx, c.Subject)
	switch {
	case errors.Is(err, account.ErrNotFound):
		return Identity{}, validationError(ReasonTokenInvalid)
	case err != nil:
		return Identity{}, e.serviceFailure(ctx, flowEmailChange, codeStoreUnavailable, err)
	}
	// Already applied, or superseded by another change.
	if rec.Email != oldEmail {
		return Identity{}, validationError(ReasonTokenInvalid)
	}

	other, err := e.users.FindByEmail(ctx, newEmail)
	switch {
	case err == nil && other.ID != rec.ID:
		return Identity{}, validationError(ReasonEmailTaken)
	case err != nil && !errors.Is(err, account.ErrNotFound):
		return Identity{}, e.serviceFailure(ctx, flowEmailChange, codeStoreUnavailable, err)
	}

	err = e.users.Update(ctx, rec.ID, account.Update{Email: &newEmail})
	switch {
	case errors.Is(err, account.ErrDuplicate):
		return Identity{}, validationError(ReasonEmailTaken)
	case errors.Is(err, account.ErrNotFound):
		return Identity{}, validationError(ReasonTokenInvalid)
	case err != nil:
		return Identity{}, e.serviceFailure(ctx, flowEmailChange, codeStoreUnavailable, err)
	}

	// The stored access token still carries the old address.
	if s, loadErr := e.sessions.Load(ctx); loadErr == nil && s.Identity.UserID == rec.ID {
		if err := e.sessions.Invalidate(ctx); err != nil {
			e.logger.WarnContext(ctx, "clearing session after email change failed", "error", err)
		} else {
			e.metrics.session("invalidated")
		}
	}
	if err := e.attempts.RecordSuccess(ctx, oldEmail); err != nil {
		e.logger.WarnContext(ctx, "clearing attempt record failed", "error", err)
	}

	rec.Email = newEmail
	e.emitAudit(ctx, auditEventEmailChangeConfirm, rec.ID, newEmail, nil, func() map[string]string {
		return map[string]string{"old_email": oldEmail}
	})
	return identityOf(rec), nil
}
