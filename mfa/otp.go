package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// NewNumericCode returns a uniformly random decimal code of the given length.
func NewNumericCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("mfa: otp digits must be within [6, 10]")
	}
	return randomString("0123456789", digits)
}

// NewOpaqueToken returns a URL-safe token carrying size random bytes.
func NewOpaqueToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashOTP binds a one-time secret to its owner and purpose before storage.
func HashOTP(userID, purpose, code string) [32]byte {
	var b strings.Builder
	b.Grow(len(userID) + len(purpose) + len(code) + 2)
	b.WriteString(userID)
	b.WriteByte(0)
	b.WriteString(purpose)
	b.WriteByte(0)
	b.WriteString(strings.TrimSpace(code))
	return sha256.Sum256([]byte(b.String()))
}
