// Package middleware adapts Engine access-token verification to net/http.
//
// # Guards
//
//   - [Guard] rejects requests without a valid access token.
//   - [Optional] attaches the identity when present, never rejects.
//   - [RequireRole] restricts a route to some roles; chain it after Guard.
//
// Only access-purpose tokens pass. Refresh, reset, confirmation and email
// change tokens are refused even though they carry a valid signature.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Read or write the stored session.
package middleware
