package token

import "time"

// Purpose is the signed intended use of a token.
type Purpose string

const (
	PurposeAccess            Purpose = "access"
	PurposeRefresh           Purpose = "refresh"
	PurposeEmailConfirmation Purpose = "email_confirmation"
	PurposePasswordReset     Purpose = "password_reset"
	PurposeEmailChange       Purpose = "email_change"

	// PurposeUnspecified marks reset tokens minted before purpose tagging.
	PurposeUnspecified Purpose = ""
)

// Purposes lists every purpose that can be issued.
var Purposes = []Purpose{
	PurposeAccess,
	PurposeRefresh,
	PurposeEmailConfirmation,
	PurposePasswordReset,
	PurposeEmailChange,
}

// DefaultTTL is the lifetime used when neither the caller nor Config.TTLs
// override it.
func (p Purpose) DefaultTTL() time.Duration {
	switch p {
	case PurposeAccess:
		return 24 * time.Hour
	case PurposeRefresh:
		return 7 * 24 * time.Hour
	case PurposeEmailConfirmation:
		return 24 * time.Hour
	case PurposePasswordReset:
		return time.Hour
	case PurposeEmailChange:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Meta is stamped by Manager.Issue and filled in by Manager.Verify.
type Meta struct {
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (m Meta) meta() Meta { return m }

// Claims is the decoded payload of a verified token. The concrete type is one
// of the variants below; callers type-switch on the variant they require.
type Claims interface {
	Purpose() Purpose
	Sub() string
	meta() Meta
}

// Timestamps returns the issuance metadata of c.
func Timestamps(c Claims) Meta { return c.meta() }

// AccessClaims authorizes API calls for a signed-in identity.
type AccessClaims struct {
	Meta
	Subject string
	Email   string
	Role    string
}

// RefreshClaims lets a session obtain a new access token.
type RefreshClaims struct {
	Meta
	Subject string
}

// EmailConfirmationClaims proves ownership of the address on sign-up.
type EmailConfirmationClaims struct {
	Meta
	Subject string
	Email   string
}

// PasswordResetClaims authorizes one password change.
type PasswordResetClaims struct {
	Meta
	Subject string
	Email   string
}

// EmailChangeClaims carries both addresses of a pending email change.
type EmailChangeClaims struct {
	Meta
	Subject  string
	OldEmail string
	NewEmail string
}

// LegacyResetClaims is a password reset token without a purpose tag. It can
// be verified but never issued; accepting it is a caller decision.
type LegacyResetClaims struct {
	Meta
	Subject string
	Email   string
}

func (AccessClaims) Purpose() Purpose            { return PurposeAccess }
func (RefreshClaims) Purpose() Purpose           { return PurposeRefresh }
func (EmailConfirmationClaims) Purpose() Purpose { return PurposeEmailConfirmation }
func (PasswordResetClaims) Purpose() Purpose     { return PurposePasswordReset }
func (EmailChangeClaims) Purpose() Purpose       { return PurposeEmailChange }
func (LegacyResetClaims) Purpose() Purpose       { return PurposeUnspecified }

func (c AccessClaims) Sub() string            { return c.Subject }
func (c RefreshClaims) Sub() string           { return c.Subject }
func (c EmailConfirmationClaims) Sub() string { return c.Subject }
func (c PasswordResetClaims) Sub() string     { return c.Subject }
func (c EmailChangeClaims) Sub() string       { return c.Subject }
func (c LegacyResetClaims) Sub() string       { return c.Subject }
