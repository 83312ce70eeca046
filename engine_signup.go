package credcore

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/credcore/account"
	"github.com/MrEthical07/credcore/notify"
	"github.com/MrEthical07/credcore/token"
)

// SignUp creates a credential record and sends an email confirmation token.
//
// Administrator accounts can only be created by a caller whose current
// session belongs to an administrator; they start validated and receive no
// confirmation. A failed notification does not undo the sign-up.
func (e *Engine) SignUp(ctx context.Context, req SignUpRequest) (res *SignUpResult, err error) {
	ctx, span := e.startSpan(ctx, flowSignUp)
	defer func() { e.finish(span, flowSignUp, err) }()

	if req.Role == RoleAdministrator {
		caller, ok := e.CurrentIdentity(ctx)
		if !ok || caller.Role != string(RoleAdministrator) {
			forbidden := validationError(ReasonForbidden)
			e.emitAudit(ctx, auditEventSignUpFailure, caller.UserID, req.Email, forbidden, nil)
			return nil, forbidden
		}
	}

	req.Email = account.NormalizeEmail(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.NationalID = strings.TrimSpace(req.NationalID)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := e.validateStruct(req); err != nil {
		return nil, err
	}
	if len(req.Password) < e.config.Account.MinPasswordLength {
		return nil, weakPassword(e.config.Account.MinPasswordLength)
	}

	if err := e.checkUnique(ctx, req); err != nil {
		if errors.Is(err, ErrValidation) {
			e.emitAudit(ctx, auditEventSignUpFailure, "", req.Email, err, nil)
		}
		return nil, err
	}

	digest, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, e.serviceFailure(ctx, flowSignUp, codeHashFailed, err)
	}

	status := account.StatusPending
	if req.Role == RoleAdministrator {
		status = account.StatusValidated
	}
	now := e.now().UTC()
	rec := account.Record{
		Email:        req.Email,
		PasswordHash: digest,
		Role:         req.Role,
		Status:       status,
		DisplayName:  req.DisplayName,
		NationalID:   req.NationalID,
		Phone:        req.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	id, err := e.users.Insert(ctx, rec)
	switch {
	case errors.Is(err, account.ErrDuplicate):
		// Lost a race with a concurrent sign-up for the same identifiers.
		taken := validationError(ReasonEmailTaken)
		e.emitAudit(ctx, auditEventSignUpFailure, "", req.Email, taken, nil)
		return nil, taken
	case err != nil:
		return nil, e.serviceFailure(ctx, flowSignUp, codeStoreUnavailable, err)
	}
	rec.ID = id

	if status == account.StatusPending {
		e.sendConfirmation(ctx, &rec)
	}

	e.emitAudit(ctx, auditEventSignUpSuccess, rec.ID, rec.Email, nil, func() map[string]string {
		return map[string]string{"role": string(rec.Role), "status": string(rec.Status)}
	})
	return &SignUpResult{Identity: identityOf(&rec), Status: status}, nil
}

// checkUnique looks up every identifier the request claims. The store's own
// duplicate error still backs this up at insert time.
func (e *Engine) checkUnique(ctx context.Context, req SignUpRequest) error {
	checks := []struct {
		value  string
		find   func(context.Context, string) (*account.Record, error)
		reason Reason
	}{
		{req.Email, e.users.FindByEmail, ReasonEmailTaken},
		{req.NationalID, e.users.FindByNationalID, ReasonNationalIDTaken},
		{req.Phone, e.users.FindByPhone, ReasonPhoneTaken},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		_, err := c.find(ctx, c.value)
		switch {
		case err == nil:
			return validationError(c.reason)
		case errors.Is(err, account.ErrNotFound):
		default:
			return e.serviceFailure(ctx, flowSignUp, codeStoreUnavailable, err)
		}
	}
	return nil
}

// ResendConfirmation issues a fresh confirmation token for a pending
// account. Like RequestPasswordReset it reports success for unknown or
// already confirmed addresses.
func (e *Engine) ResendConfirmation(ctx context.Context, email string) (err error) {
	ctx, span := e.startSpan(ctx, flowResendConfirmation)
	defer func() { e.finish(span, flowResendConfirmation, err) }()

	email = account.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	rec, err := e.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, account.ErrNotFound):
		e.emitAudit(ctx, auditEventEmailConfirmResend, "", email, nil, func() map[string]string {
			return map[string]string{"delivered": "false"}
		})
		return nil
	case err != nil:
		return e.serviceFailure(ctx, flowResendConfirmation, codeStoreUnavailable, err)
	}
	if rec.Status != account.StatusPending {
		return nil
	}

	e.sendConfirmation(ctx, rec)
	e.emitAudit(ctx, auditEventEmailConfirmResend, rec.ID, rec.Email, nil, nil)
	return nil
}

func (e *Engine) sendConfirmation(ctx context.Context, rec *account.Record) {
	raw, err := e.tokens.Issue(token.EmailConfirmationClaims{Subject: rec.ID, Email: rec.Email}, 0)
	if err != nil {
		// The account exists either way; a resend can still confirm it.
		_ = e.serviceFailure(ctx, flowSignUp, codeTokenIssueFailed, err)
		return
	}
	e.dispatch(ctx, notify.Message{
		Kind:        notify.KindEmailConfirmation,
		Recipient:   rec.Email,
		Token:       raw,
		DisplayName: rec.DisplayName,
	}, rec.ID)
}
