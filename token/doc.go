// Package token issues and verifies signed, purpose-tagged tokens.
//
// Every token carries a purpose (access, refresh, email_confirmation,
// password_reset, email_change) inside the signed payload. [Manager.Verify]
// returns one [Claims] variant per purpose and never checks the purpose
// itself: call sites type-switch on the variant they require, so a token
// minted for one flow cannot be replayed in another.
//
// Verification failures are [*VerificationError] values with a distinct
// [ErrorKind] so callers can tell an expired link from a forged one.
//
// # Signing
//
// HS256 with a shared secret, or Ed25519 with raw or PEM keys. Key rotation
// uses KeyID on the issuing side and VerifyKeys on the verifying side.
package token
