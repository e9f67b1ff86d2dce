package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	idSize     = 16
	secretSize = 32
	rawSize    = idSize + secretSize
)

// ErrMalformed is returned for any value that is not a well-formed refresh token.
var ErrMalformed = errors.New("refresh: malformed token")

// Token is a decoded refresh token.
type Token struct {
	ID     uuid.UUID
	secret [secretSize]byte
}

// New creates a token with a random id and secret.
func New() (Token, error) {
	var t Token
	id, err := uuid.NewRandom()
	if err != nil {
		return t, err
	}
	t.ID = id
	if _, err := rand.Read(t.secret[:]); err != nil {
		return t, err
	}
	return t, nil
}

// String encodes the token for the client.
func (t Token) String() string {
	var raw [rawSize]byte
	copy(raw[:idSize], t.ID[:])
	copy(raw[idSize:], t.secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// Hash is the digest persisted server side.
func (t Token) Hash() [32]byte {
	return sha256.Sum256(t.secret[:])
}

// Matches compares the token secret against a stored digest in constant time.
func (t Token) Matches(stored []byte) bool {
	h := t.Hash()
	return subtle.ConstantTimeCompare(h[:], stored) == 1
}

// Parse decodes a client supplied token.
func Parse(s string) (Token, error) {
	var t Token
	if len(s) != base64.RawURLEncoding.EncodedLen(rawSize) {
		return t, ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) != rawSize {
		return t, ErrMalformed
	}
	copy(t.ID[:], raw[:idSize])
	copy(t.secret[:], raw[idSize:])
	if t.ID == uuid.Nil {
		return Token{}, ErrMalformed
	}
	return t, nil
}
