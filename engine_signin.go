package credcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/credcore/account"
	"github.com/MrEthical07/credcore/password"
)

// SignIn verifies email and password and stores a new session, replacing
// any previous one.
//
// A locked identifier is rejected before the store or the hasher is
// touched. Unknown emails and wrong passwords fail identically with
// ReasonInvalidCredentials and both count toward the lockout.
func (e *Engine) SignIn(ctx context.Context, email, pw string) (res *SignInResult, err error) {
	ctx, span := e.startSpan(ctx, flowSignIn)
	defer func() { e.finish(span, flowSignIn, err) }()

	email = account.NormalizeEmail(email)
	if email == "" {
		return nil, invalidField("email", "email is required")
	}

	release := e.attempts.Hold(email)
	defer release()

	blocked, err := e.attempts.IsBlocked(ctx, email)
	if err != nil {
		return nil, e.serviceFailure(ctx, flowSignIn, codeAttemptsUnavailable, err)
	}
	if blocked {
		minutes, err := e.attempts.RemainingLockMinutes(ctx, email)
		if err != nil {
			return nil, e.serviceFailure(ctx, flowSignIn, codeAttemptsUnavailable, err)
		}
		locked := lockedError(minutes)
		e.metrics.lockout()
		e.emitAudit(ctx, auditEventSignInLocked, "", email, locked, nil)
		return nil, locked
	}

	if pw == "" {
		return nil, e.rejectSignIn(ctx, email, "", "empty_password")
	}

	rec, err := e.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, account.ErrNotFound):
		// Burn the same hashing cost as a real record.
		_, _ = e.hasher.Verify(pw, e.dummyHash)
		return nil, e.rejectSignIn(ctx, email, "", "unknown_email")
	case err != nil:
		return nil, e.serviceFailure(ctx, flowSignIn, codeStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(pw, rec.PasswordHash)
	switch {
	case errors.Is(err, password.ErrMalformedHash), errors.Is(err, password.ErrLegacyDisabled):
		e.logger.WarnContext(ctx, "stored credential cannot be verified",
			"user_id", rec.ID, "error", err)
		return nil, e.rejectSignIn(ctx, email, rec.ID, "unusable_credential")
	case err != nil:
		return nil, e.serviceFailure(ctx, flowSignIn, codeHashFailed, err)
	case !ok:
		return nil, e.rejectSignIn(ctx, email, rec.ID, "password_mismatch")
	}

	if rec.Status == account.StatusRejected {
		rejected := validationError(ReasonAccountRejected)
		e.emitAudit(ctx, auditEventSignInFailure, rec.ID, email, rejected, nil)
		return nil, rejected
	}
	if rec.Status != account.StatusValidated && e.config.Account.RequireValidatedEmail {
		unverified := validationError(ReasonAccountUnverified)
		e.emitAudit(ctx, auditEventSignInFailure, rec.ID, email, unverified, nil)
		return nil, unverified
	}

	if err := e.attempts.RecordSuccess(ctx, email); err != nil {
		e.logger.WarnContext(ctx, "clearing attempt record failed", "error", err)
	}
	if password.Parse(rec.PasswordHash).Format == password.FormatLegacyPlaintext {
		e.metrics.legacyVerification()
	}
	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsUpgrade(rec.PasswordHash) {
		e.upgradeHash(ctx, rec, pw)
	}

	res, err = e.startSession(ctx, flowSignIn, rec)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, auditEventSignInSuccess, rec.ID, email, nil, nil)
	return res, nil
}

// rejectSignIn counts a failed attempt and returns the generic credential
// error. cause is recorded on the audit event only.
func (e *Engine) rejectSignIn(ctx context.Context, email, userID, cause string) error {
	rec, err := e.attempts.RecordFailure(ctx, email)
	if err != nil {
		return e.serviceFailure(ctx, flowSignIn, codeAttemptsUnavailable, err)
	}

	invalid := validationError(ReasonInvalidCredentials)
	e.emitAudit(ctx, auditEventSignInFailure, userID, email, invalid, func() map[string]string {
		return map[string]string{
			"cause": cause,
			"state": rec.State(e.now()).String(),
		}
	})
	return invalid
}

// upgradeHash replaces a legacy or under-cost digest. Failures only leave
// the old digest in place.
func (e *Engine) upgradeHash(ctx context.Context, rec *account.Record, pw string) {
	digest, err := e.hasher.Hash(pw)
	if err != nil {
		e.logger.WarnContext(ctx, "password rehash failed", "user_id", rec.ID, "error", err)
		return
	}
	if err := e.users.Update(ctx, rec.ID, account.Update{PasswordHash: &digest}); err != nil {
		e.logger.WarnContext(ctx, "storing upgraded password hash failed", "user_id", rec.ID, "error", err)
		return
	}
	e.metrics.hashUpgraded()
	e.emitAudit(ctx, auditEventPasswordUpgraded, rec.ID, rec.Email, nil, func() map[string]string {
		return map[string]string{"from": password.Parse(rec.PasswordHash).Format.String()}
	})
}

// SignInExternal starts a session for an identity already verified by an
// external provider. The account must exist and must not be rejected.
func (e *Engine) SignInExternal(ctx context.Context, ext ExternalIdentity) (res *SignInResult, err error) {
	ctx, span := e.startSpan(ctx, flowSignInExternal)
	defer func() { e.finish(span, flowSignInExternal, err) }()

	if !e.config.Account.AllowExternalSignIn {
		return nil, validationError(ReasonForbidden)
	}
	ext.Email = account.NormalizeEmail(ext.Email)
	if err := e.validateStruct(ext); err != nil {
		return nil, err
	}

	rec, err := e.users.FindByEmail(ctx, ext.Email)
	switch {
	case errors.Is(err, account.ErrNotFound):
		return nil, validationError(ReasonAccountNotFound)
	case err != nil:
		return nil, e.serviceFailure(ctx, flowSignInExternal, codeStoreUnavailable, err)
	}
	switch {
	case rec.Status == account.StatusRejected:
		return nil, validationError(ReasonAccountRejected)
	case rec.Status != account.StatusValidated && e.config.Account.RequireValidatedEmail:
		return nil, validationError(ReasonAccountUnverified)
	}

	res, err = e.startSession(ctx, flowSignInExternal, rec)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, auditEventSignInExternal, rec.ID, rec.Email, nil, func() map[string]string {
		return map[string]string{"provider": ext.Provider}
	})
	return res, nil
}
