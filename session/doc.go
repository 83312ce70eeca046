// Package session manages the single client-held session.
//
// # Validation
//
// [Manager.Validate] fails closed: a session is accepted only while its own
// absolute expiry is in the future and its access token independently
// verifies as an access token for the same subject. [Manager.Current]
// clears storage on any failure.
//
// # Binary encoding
//
// Sessions are persisted in a compact versioned binary format ([Encode],
// [Decode]) through a [Storage] slot: [MemoryStorage] for a single client or
// [RedisStorage] keyed by the client id carried in the context.
//
// # What this package must NOT do
//
//   - Issue tokens or look up credential records.
//   - Make network calls during validation.
package session
