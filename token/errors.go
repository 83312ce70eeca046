package token

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a verification failure.
type ErrorKind uint8

const (
	KindMalformed ErrorKind = iota + 1
	KindSignatureInvalid
	KindExpired
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindSignatureInvalid:
		return "signature_invalid"
	case KindExpired:
		return "expired"
	default:
		return "unknown"
	}
}

var (
	// ErrMalformed matches verification errors of KindMalformed.
	ErrMalformed = errors.New("token malformed")
	// ErrSignatureInvalid matches verification errors of KindSignatureInvalid.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrExpired matches verification errors of KindExpired.
	ErrExpired = errors.New("token expired")
)

// VerificationError is returned by Manager.Verify.
type VerificationError struct {
	Kind ErrorKind
	Err  error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("token verification failed: %s", e.Kind)
	}
	return fmt.Sprintf("token verification failed: %s: %v", e.Kind, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Is lets errors.Is match a kind sentinel.
func (e *VerificationError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrSignatureInvalid:
		return e.Kind == KindSignatureInvalid
	case ErrExpired:
		return e.Kind == KindExpired
	}
	return false
}

func verificationError(kind ErrorKind, err error) *VerificationError {
	return &VerificationError{Kind: kind, Err: err}
}
