package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
	maxInputBytes        = 1024
)

var (
	// ErrMalformedHash is returned when a stored hash is not a valid argon2id PHC string.
	ErrMalformedHash = errors.New("password: malformed hash")
	// ErrTooLong guards the KDF against oversized input.
	ErrTooLong = errors.New("password: input too long")
)

// Hasher is the one-way password hashing contract used by the identity flows.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

// Params are the Argon2id cost parameters.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams follows the OWASP baseline for argon2id.
func DefaultParams() Params {
	return Params{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

// Argon2 implements Hasher with PHC-encoded argon2id hashes. Comparison is
// constant time.
type Argon2 struct {
	params Params

	dummyOnce sync.Once
	dummy     string
}

// NewArgon2 validates p and returns a ready hasher.
func NewArgon2(p Params) (*Argon2, error) {
	switch {
	case p.Memory < minMemoryKB:
		return nil, fmt.Errorf("password: memory must be >= %d KiB", minMemoryKB)
	case p.Time < 1:
		return nil, errors.New("password: time must be >= 1")
	case p.Parallelism < 1:
		return nil, errors.New("password: parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return nil, fmt.Errorf("password: salt length must be >= %d", minSaltLength)
	case p.KeyLength < minKeyLength:
		return nil, fmt.Errorf("password: key length must be >= %d", minKeyLength)
	}
	return &Argon2{params: p}, nil
}

// Hash derives a new salted hash. The plaintext is used byte-for-byte.
func (a *Argon2) Hash(plain string) (string, error) {
	if len(plain) > maxInputBytes {
		return "", ErrTooLong
	}
	salt := make([]byte, a.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLength)
	return encode(a.params, salt, key), nil
}

// Verify recomputes the key with the parameters embedded in encoded.
func (a *Argon2) Verify(plain, encoded string) (bool, error) {
	if len(plain) > maxInputBytes {
		return false, nil
	}
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1, nil
}

// VerifyDummy burns the same CPU as a real verification. Login calls it for
// unknown accounts so response timing does not reveal whether an email exists.
func (a *Argon2) VerifyDummy(plain string) {
	a.dummyOnce.Do(func() {
		a.dummy, _ = a.Hash("dummy-password-for-timing")
	})
	if a.dummy != "" {
		_, _ = a.Verify(plain, a.dummy)
	}
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the current ones.
func (a *Argon2) NeedsRehash(encoded string) bool {
	p, _, key, err := decode(encoded)
	if err != nil {
		return true
	}
	return p.Memory < a.params.Memory ||
		p.Time < a.params.Time ||
		p.Parallelism < a.params.Parallelism ||
		uint32(len(key)) != a.params.KeyLength
}

func encode(p Params, salt, key []byte) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

func decode(encoded string) (Params, []byte, []byte, error) {
	var p Params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return p, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, ErrMalformedHash
	}
	var par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &par); err != nil {
		return p, nil, nil, ErrMalformedHash
	}
	if p.Memory < minMemoryKB || p.Time < 1 || par < 1 || par > 255 {
		return p, nil, nil, ErrMalformedHash
	}
	p.Parallelism = uint8(par)

	salt, err := decodeSegment(parts[4])
	if err != nil || uint32(len(salt)) < minSaltLength {
		return p, nil, nil, ErrMalformedHash
	}
	key, err := decodeSegment(parts[5])
	if err != nil || uint32(len(key)) < minKeyLength {
		return p, nil, nil, ErrMalformedHash
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}

// decodeSegment accepts both the PHC raw encoding and padded standard base64.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
