// Package password hashes and verifies credentials.
//
// # Output format
//
// New digests are argon2id in PHC string form:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # Legacy records
//
// Stored values are classified by [Parse] into one of two [Format] variants.
// Records without the PHC marker are [FormatLegacyPlaintext] and are compared
// directly (constant time) with a warning log line. [Hasher.NeedsUpgrade]
// reports them so callers can rehash on the next successful sign-in.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other credcore package.
//   - Log plaintext passwords or digests.
package password
