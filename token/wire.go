package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// wireClaims is the signed JSON payload shared by every purpose. Fields not
// used by a purpose are omitted.
type wireClaims struct {
	Purpose  Purpose `json:"purpose,omitempty"`
	Email    string  `json:"email,omitempty"`
	Role     string  `json:"role,omitempty"`
	OldEmail string  `json:"old_email,omitempty"`
	NewEmail string  `json:"new_email,omitempty"`
	jwt.RegisteredClaims
}

var errUnsupportedVariant = errors.New("claims variant cannot be issued")

func toWire(c Claims) (wireClaims, error) {
	var w wireClaims
	switch v := c.(type) {
	case AccessClaims:
		w.Subject, w.Email, w.Role = v.Subject, v.Email, v.Role
	case RefreshClaims:
		w.Subject = v.Subject
	case EmailConfirmationClaims:
		w.Subject, w.Email = v.Subject, v.Email
	case PasswordResetClaims:
		w.Subject, w.Email = v.Subject, v.Email
	case EmailChangeClaims:
		w.Subject, w.OldEmail, w.NewEmail = v.Subject, v.OldEmail, v.NewEmail
	default:
		return w, fmt.Errorf("%w: %T", errUnsupportedVariant, c)
	}
	if w.Subject == "" {
		return w, errors.New("claims subject is required")
	}
	w.Purpose = c.Purpose()
	return w, nil
}

// fromWire rebuilds the variant named by the purpose tag. A payload missing
// a field its purpose requires is malformed.
func fromWire(w *wireClaims) (Claims, error) {
	meta := Meta{ID: w.ID}
	if w.IssuedAt != nil {
		meta.IssuedAt = w.IssuedAt.Time
	}
	if w.ExpiresAt != nil {
		meta.ExpiresAt = w.ExpiresAt.Time
	}
	if w.Subject == "" {
		return nil, errors.New("missing subject")
	}

	switch w.Purpose {
	case PurposeAccess:
		return AccessClaims{Meta: meta, Subject: w.Subject, Email: w.Email, Role: w.Role}, nil
	case PurposeRefresh:
		return RefreshClaims{Meta: meta, Subject: w.Subject}, nil
	case PurposeEmailConfirmation:
		if w.Email == "" {
			return nil, errors.New("missing email")
		}
		return EmailConfirmationClaims{Meta: meta, Subject: w.Subject, Email: w.Email}, nil
	case PurposePasswordReset:
		if w.Email == "" {
			return nil, errors.New("missing email")
		}
		return PasswordResetClaims{Meta: meta, Subject: w.Subject, Email: w.Email}, nil
	case PurposeEmailChange:
		if w.OldEmail == "" || w.NewEmail == "" {
			return nil, errors.New("missing email change addresses")
		}
		return EmailChangeClaims{Meta: meta, Subject: w.Subject, OldEmail: w.OldEmail, NewEmail: w.NewEmail}, nil
	case PurposeUnspecified:
		if w.Email == "" || w.Role != "" || w.OldEmail != "" || w.NewEmail != "" {
			return nil, errors.New("untagged token does not match the legacy reset shape")
		}
		return LegacyResetClaims{Meta: meta, Subject: w.Subject, Email: w.Email}, nil
	default:
		return nil, fmt.Errorf("unknown purpose %q", w.Purpose)
	}
}

func numericDate(t time.Time) *jwt.NumericDate {
	return jwt.NewNumericDate(t)
}
