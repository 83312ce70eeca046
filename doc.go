// Package credcore is the credential and session core of an account system:
// sign-up, sign-in, sign-out, password reset, email confirmation and email
// change, built on purpose-tagged signed tokens.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// credcore is the public surface. It exposes [Engine], [Builder], [Config]
// and the request/result types. The components it orchestrates live in
// their own packages: password (hashing), token (issue/verify), attempts
// (lockout), session (the stored client session). User records and
// notification delivery are collaborators supplied by the caller through
// [UserStore] and [Notifier].
//
// # Errors
//
// Every Engine method returns either a [*ValidationError], whose message is
// safe to show to the end user, or a [*ServiceError] carrying only a generic
// retry message. Internal causes are logged, never returned. Use errors.Is
// with [ErrValidation], [ErrServiceUnavailable] or a reason sentinel such as
// [ErrInvalidCredentials].
//
// # What this package must NOT do
//
//   - Return storage, hashing or signing errors to callers unmodified.
//   - Log passwords, tokens or signing keys.
//   - Retry anything on its own.
package credcore
