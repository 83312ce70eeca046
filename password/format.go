package password

import "strings"

// Format identifies how a stored credential was produced.
type Format uint8

const (
	// FormatLegacyPlaintext is a credential stored without hashing.
	//
	// Deprecated: legacy plaintext records exist only until every account has
	// signed in once with UpgradeOnLogin enabled. Once the
	// legacy_verifications counter stays at zero, set
	// Config.AllowLegacyPlaintext to false and this branch stops matching.
	FormatLegacyPlaintext Format = iota + 1
	// FormatArgon2id is a PHC-encoded argon2id digest.
	FormatArgon2id
)

func (f Format) String() string {
	switch f {
	case FormatLegacyPlaintext:
		return "legacy_plaintext"
	case FormatArgon2id:
		return "argon2id"
	default:
		return "unknown"
	}
}

// Stored is a persisted credential tagged with its format.
type Stored struct {
	Format Format
	Value  string
}

// Parse classifies a persisted credential. Anything carrying the argon2id PHC
// marker is treated as a digest, even if the rest of it turns out to be
// corrupt, so a damaged digest can never be compared as plaintext.
func Parse(stored string) Stored {
	if strings.HasPrefix(stored, phcMarker) {
		return Stored{Format: FormatArgon2id, Value: stored}
	}
	return Stored{Format: FormatLegacyPlaintext, Value: stored}
}
