package credcore

import (
	"context"
	"errors"
	"maps"
)

const (
	auditEventSignUpSuccess           = "sign_up_success"
	auditEventSignUpFailure           = "sign_up_failure"
	auditEventSignInSuccess           = "sign_in_success"
	auditEventSignInFailure           = "sign_in_failure"
	auditEventSignInLocked            = "sign_in_locked"
	auditEventSignInExternal          = "sign_in_external"
	auditEventSignOut                 = "sign_out"
	auditEventSessionRefresh          = "session_refresh"
	auditEventPasswordUpgraded        = "password_hash_upgraded"
	auditEventPasswordResetRequest    = "password_reset_request"
	auditEventPasswordResetConfirm    = "password_reset_confirm"
	auditEventPasswordResetLegacy     = "password_reset_legacy_token"
	auditEventEmailConfirm            = "email_confirm"
	auditEventEmailConfirmResend      = "email_confirm_resend"
	auditEventEmailChangeRequest      = "email_change_request"
	auditEventEmailChangeConfirm      = "email_change_confirm"
	auditEventNotificationUndelivered = "notification_undelivered"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	userID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = maps.Clone(metadataBuilder())
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		Type:      eventType,
		UserID:    userID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   err == nil,
		Reason:    auditReason(err),
		Metadata:  metadata,
	}
	e.audit.Emit(ctx, event)
}

// auditReason reuses the user-facing reason codes; infrastructure failures
// share one code so causes never leave the process through the audit trail.
func auditReason(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return string(ve.Reason)
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	default:
		return "internal_error"
	}
}
