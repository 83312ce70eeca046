package credcore

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrServiceUnavailable matches every *ServiceError.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrEngineNotReady is returned by Build when a required collaborator is
	// missing.
	ErrEngineNotReady = errors.New("engine not ready")
)

// Reason is the user-facing cause of a ValidationError.
type Reason string

const (
	ReasonInvalidInput       Reason = "invalid_input"
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonAccountLocked      Reason = "account_locked"
	ReasonAccountRejected    Reason = "account_rejected"
	ReasonAccountUnverified  Reason = "account_unverified"
	ReasonEmailTaken         Reason = "email_taken"
	ReasonNationalIDTaken    Reason = "national_id_taken"
	ReasonPhoneTaken         Reason = "phone_taken"
	ReasonWeakPassword       Reason = "weak_password"
	ReasonForbidden          Reason = "forbidden"
	ReasonTokenExpired       Reason = "token_expired"
	ReasonTokenInvalid       Reason = "token_invalid"
	ReasonTokenWrongPurpose  Reason = "token_wrong_purpose"
	ReasonAccountNotFound    Reason = "account_not_found"
	ReasonEmailUnchanged     Reason = "email_unchanged"
	ReasonSessionExpired     Reason = "session_expired"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountRejected    = errors.New("account rejected")
	ErrAccountUnverified  = errors.New("account unverified")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNationalIDTaken    = errors.New("national id already registered")
	ErrPhoneTaken         = errors.New("phone already registered")
	ErrWeakPassword       = errors.New("password too weak")
	ErrForbidden          = errors.New("forbidden")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenWrongPurpose  = errors.New("token used for the wrong purpose")
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailUnchanged     = errors.New("email unchanged")
	ErrSessionExpired     = errors.New("session expired")
)

var reasonSentinels = map[Reason]error{
	ReasonInvalidInput:       ErrInvalidInput,
	ReasonInvalidCredentials: ErrInvalidCredentials,
	ReasonAccountLocked:      ErrAccountLocked,
	ReasonAccountRejected:    ErrAccountRejected,
	ReasonAccountUnverified:  ErrAccountUnverified,
	ReasonEmailTaken:         ErrEmailTaken,
	ReasonNationalIDTaken:    ErrNationalIDTaken,
	ReasonPhoneTaken:         ErrPhoneTaken,
	ReasonWeakPassword:       ErrWeakPassword,
	ReasonForbidden:          ErrForbidden,
	ReasonTokenExpired:       ErrTokenExpired,
	ReasonTokenInvalid:       ErrTokenInvalid,
	ReasonTokenWrongPurpose:  ErrTokenWrongPurpose,
	ReasonAccountNotFound:    ErrAccountNotFound,
	ReasonEmailUnchanged:     ErrEmailUnchanged,
	ReasonSessionExpired:     ErrSessionExpired,
}

var reasonMessages = map[Reason]string{
	ReasonInvalidInput:       "some of the submitted information is invalid",
	ReasonInvalidCredentials: "invalid email or password",
	ReasonAccountLocked:      "too many failed attempts, try again later",
	ReasonAccountRejected:    "this account has been rejected",
	ReasonAccountUnverified:  "please confirm your email address before signing in",
	ReasonEmailTaken:         "this email address is already registered",
	ReasonNationalIDTaken:    "this national id is already registered",
	ReasonPhoneTaken:         "this phone number is already registered",
	ReasonWeakPassword:       "password is too weak",
	ReasonForbidden:          "you are not allowed to perform this action",
	ReasonTokenExpired:       "this link has expired, please request a new one",
	ReasonTokenInvalid:       "this link is invalid",
	ReasonTokenWrongPurpose:  "this link is invalid",
	ReasonAccountNotFound:    "no matching account",
	ReasonEmailUnchanged:     "the new email address is the same as the current one",
	ReasonSessionExpired:     "your session has expired, please sign in again",
}

// ValidationError is a business-rule failure whose message is safe to show
// to the end user.
type ValidationError struct {
	Reason Reason
	// Field names the offending input for ReasonInvalidInput.
	Field string
	// RetryAfterMinutes is set for ReasonAccountLocked.
	RetryAfterMinutes int

	message string
}

func (e *ValidationError) Error() string {
	if e.message != "" {
		return e.message
	}
	return reasonMessages[e.Reason]
}

// Unwrap exposes both the category and the reason sentinel to errors.Is.
func (e *ValidationError) Unwrap() []error {
	if s, ok := reasonSentinels[e.Reason]; ok {
		return []error{ErrValidation, s}
	}
	return []error{ErrValidation}
}

func validationError(r Reason) *ValidationError {
	return &ValidationError{Reason: r}
}

func invalidField(field, message string) *ValidationError {
	return &ValidationError{Reason: ReasonInvalidInput, Field: field, message: message}
}

func weakPassword(min int) *ValidationError {
	return &ValidationError{
		Reason:  ReasonWeakPassword,
		Field:   "password",
		message: fmt.Sprintf("password must be at least %d characters", min),
	}
}

func lockedError(minutes int) *ValidationError {
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return &ValidationError{
		Reason:            ReasonAccountLocked,
		RetryAfterMinutes: minutes,
		message:           fmt.Sprintf("too many failed attempts, try again in %d %s", minutes, unit),
	}
}

// ServiceError hides an infrastructure failure behind a generic retry
// message. The cause is logged, never returned.
type ServiceError struct {
	Op string
}

func (e *ServiceError) Error() string {
	return "the service is temporarily unavailable, please try again later"
}

func (e *ServiceError) Unwrap() error { return ErrServiceUnavailable }
