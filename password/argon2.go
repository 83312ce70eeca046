package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
	phcMarker             = "$" + algorithmID + "$"
)

// Argon2 produces and checks argon2id digests in PHC string form.
//
// Argon2 instances are intended to be configured during initialization and then treated as immutable.
type Argon2 struct {
	params Params
}

// Params are the argon2id cost parameters.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type phcDigest struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	sum         []byte
}

// NewArgon2 validates params against the package floors.
func NewArgon2(p Params) (*Argon2, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Argon2{params: p}, nil
}

func (a *Argon2) hash(password string, entropy io.Reader) (string, error) {
	salt := make([]byte, a.params.SaltLength)
	if _, err := io.ReadFull(entropy, salt); err != nil {
		return "", fmt.Errorf("%w: salt: %v", ErrHashingFailed, err)
	}

	sum := argon2.IDKey([]byte(password), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.params.Memory,
		a.params.Time,
		a.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Hash digests password with a fresh random salt.
func (a *Argon2) Hash(password string) (string, error) {
	return a.hash(password, rand.Reader)
}

// Verify recomputes the digest with the parameters embedded in encoded and
// compares in constant time. A malformed encoding is an error, not a mismatch.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	d, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	sum := argon2.IDKey([]byte(password), d.salt, d.time, d.memory, d.parallelism, uint32(len(d.sum)))
	return subtle.ConstantTimeCompare(sum, d.sum) == 1, nil
}

// Weaker reports whether encoded was produced with lower costs than a's
// current parameters, or with a different key length.
func (a *Argon2) Weaker(encoded string) (bool, error) {
	d, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	switch {
	case d.memory < a.params.Memory,
		d.time < a.params.Time,
		d.parallelism < a.params.Parallelism,
		uint32(len(d.sum)) != a.params.KeyLength:
		return true, nil
	}
	return false, nil
}

func parsePHC(encoded string) (*phcDigest, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: expected 6 segments", ErrMalformedHash)
	}
	if parts[1] != algorithmID {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedHash, parts[1])
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, fmt.Errorf("%w: bad version segment", ErrMalformedHash)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	d := &phcDigest{}
	if err := d.parseParams(parts[3]); err != nil {
		return nil, err
	}

	// Accept padded digests too; older writers used StdEncoding.
	d.salt, err = decodeSegment(parts[4])
	if err != nil || len(d.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	d.sum, err = decodeSegment(parts[5])
	if err != nil || len(d.sum) == 0 {
		return nil, fmt.Errorf("%w: bad digest", ErrMalformedHash)
	}

	return d, nil
}

func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func (d *phcDigest) parseParams(segment string) error {
	var seen int
	for _, pair := range strings.Split(segment, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: bad parameter %q", ErrMalformedHash, pair)
		}

		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return fmt.Errorf("%w: bad memory cost", ErrMalformedHash)
			}
			d.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return fmt.Errorf("%w: bad time cost", ErrMalformedHash)
			}
			d.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return fmt.Errorf("%w: bad parallelism", ErrMalformedHash)
			}
			d.parallelism = uint8(v)
		default:
			return fmt.Errorf("%w: unsupported parameter %q", ErrMalformedHash, key)
		}
		seen++
	}

	if seen != 3 || d.memory == 0 || d.time == 0 || d.parallelism == 0 {
		return fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	return nil
}

func (p Params) validate() error {
	switch {
	case p.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case p.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case p.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case p.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	}
	return nil
}
