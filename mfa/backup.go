package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"strings"
)

// BackupCodeAlphabet excludes look-alike characters (0/O, 1/I).
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// BackupCodeLength is the number of alphabet characters per code before formatting.
const BackupCodeLength = 8

// GeneratedCode pairs the cleartext shown once to the user with the hash stored at rest.
type GeneratedCode struct {
	Display string
	Hash    [32]byte
}

// GenerateBackupCodes returns n fresh codes bound to userID.
func GenerateBackupCodes(userID string, n int) ([]GeneratedCode, error) {
	codes := make([]GeneratedCode, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		raw, err := randomString(BackupCodeAlphabet, BackupCodeLength)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		codes = append(codes, GeneratedCode{
			Display: FormatBackupCode(raw),
			Hash:    BackupCodeHash(userID, raw),
		})
	}
	return codes, nil
}

// FormatBackupCode renders an 8 character code as XXXX-XXXX.
func FormatBackupCode(code string) string {
	if len(code) < 8 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalizeBackupCode strips separators and whitespace and upper-cases input.
func CanonicalizeBackupCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '-' || r == ' ' || r == '\t':
			return -1
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		}
		return r
	}, code)
}

// BackupCodeHash binds the code to its owner so identical codes for two users
// never share a hash.
func BackupCodeHash(userID, canonical string) [32]byte {
	data := make([]byte, 0, len(userID)+1+len(canonical))
	data = append(data, userID...)
	data = append(data, 0)
	data = append(data, canonical...)
	return sha256.Sum256(data)
}

func randomString(alphabet string, n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}
