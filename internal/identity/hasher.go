package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/text/secure/precis"
)

// Hasher turns a plaintext secret into a storable digest and verifies
// secrets against digests. Implementations must be one-way and must
// compare in constant time.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) (bool, error)
}

// Argon2Params holds the argon2id cost parameters.
type Argon2Params struct {
	Time        uint32
	MemoryKB    uint32
	Parallelism uint8
}

// DefaultArgon2Params is the RFC 9106 low-memory profile.
var DefaultArgon2Params = Argon2Params{Time: 1, MemoryKB: 64 * 1024, Parallelism: 4}

const (
	argonSaltLen = 16
	argonKeyLen  = 32
)

// Argon2Hasher derives salted argon2id digests in the PHC string format.
// The cost parameters travel inside each digest, so verification always
// re-derives under the parameters the digest was created with.
type Argon2Hasher struct {
	params Argon2Params
}

// NewArgon2Hasher constructs a hasher with the given cost parameters,
// falling back to defaults for zero values.
func NewArgon2Hasher(params Argon2Params) *Argon2Hasher {
	if params.Time == 0 {
		params.Time = DefaultArgon2Params.Time
	}
	if params.MemoryKB == 0 {
		params.MemoryKB = DefaultArgon2Params.MemoryKB
	}
	if params.Parallelism == 0 {
		params.Parallelism = DefaultArgon2Params.Parallelism
	}
	return &Argon2Hasher{params: params}
}

// Hash derives a digest from secret with a fresh random salt.
func (h *Argon2Hasher) Hash(secret string) (string, error) {
	normalized, err := precis.OpaqueString.String(secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("identity: generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(normalized), salt, h.params.Time, h.params.MemoryKB, h.params.Parallelism, argonKeyLen)

	digest := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKB, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return digest, nil
}

// Verify reports whether secret matches digest. The comparison runs in
// constant time over the derived key.
func (h *Argon2Hasher) Verify(secret, digest string) (bool, error) {
	normalized, err := precis.OpaqueString.String(secret)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	params, salt, key, err := decodeDigest(digest)
	if err != nil {
		return false, err
	}

	derived := argon2.IDKey([]byte(normalized), salt, params.Time, params.MemoryKB, params.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1, nil
}

func decodeDigest(digest string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: not an argon2id digest", ErrEncoding)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: unsupported argon2 version", ErrEncoding)
	}

	var params Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.MemoryKB, &params.Time, &params.Parallelism); err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: malformed cost parameters", ErrEncoding)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: malformed salt", ErrEncoding)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: malformed key", ErrEncoding)
	}

	return params, salt, key, nil
}

var _ Hasher = (*Argon2Hasher)(nil)
