package mfa

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const secretSize = 20

// TOTPConfig are the RFC 6238 parameters shared by enrollment and verification.
type TOTPConfig struct {
	Issuer    string
	Period    uint
	Digits    int
	Skew      uint
	Algorithm string
}

// Enrollment is the material handed to a user when a TOTP secret is created.
type Enrollment struct {
	Secret          string
	URI             string
	FormattedSecret string
}

// TOTP generates and verifies time-based codes.
type TOTP struct {
	cfg  TOTPConfig
	opts totp.ValidateOpts
}

// NewTOTP validates cfg, filling the standard defaults (30s, 6 digits, SHA1, skew 1).
func NewTOTP(cfg TOTPConfig) (*TOTP, error) {
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("mfa: totp issuer is required")
	}

	digits, err := toDigits(cfg.Digits)
	if err != nil {
		return nil, err
	}
	alg, err := toAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	return &TOTP{
		cfg:  cfg,
		opts: totp.ValidateOpts{Period: cfg.Period, Digits: digits, Algorithm: alg},
	}, nil
}

// Config returns the effective parameters.
func (t *TOTP) Config() TOTPConfig { return t.cfg }

// Enroll creates a fresh 160-bit secret and its otpauth:// provisioning URI.
func (t *TOTP) Enroll(account string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.cfg.Issuer,
		AccountName: account,
		Period:      t.cfg.Period,
		SecretSize:  secretSize,
		Digits:      t.opts.Digits,
		Algorithm:   t.opts.Algorithm,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("mfa: generate totp key: %w", err)
	}
	return Enrollment{
		Secret:          key.Secret(),
		URI:             key.URL(),
		FormattedSecret: FormatSecret(key.Secret()),
	}, nil
}

// Code returns the code for secret at instant at.
func (t *TOTP) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, t.opts)
}

// Verify checks code against the steps within ±Skew of now. On a match it
// returns the matched time step so callers can refuse replays of the same
// step.
func (t *TOTP) Verify(secret, code string, now time.Time) (bool, int64, error) {
	code = strings.TrimSpace(code)
	if len(code) != t.cfg.Digits || !isDigits(code) {
		return false, 0, nil
	}
	if secret == "" {
		return false, 0, errors.New("mfa: empty totp secret")
	}

	period := time.Duration(t.cfg.Period) * time.Second
	skew := int64(t.cfg.Skew)
	for offset := -skew; offset <= skew; offset++ {
		at := now.Add(time.Duration(offset) * period)
		if at.Unix() < 0 {
			continue
		}
		expected, err := totp.GenerateCodeCustom(secret, at, t.opts)
		if err != nil {
			return false, 0, fmt.Errorf("mfa: totp code: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true, at.Unix() / int64(t.cfg.Period), nil
		}
	}
	return false, 0, nil
}

// FormatSecret splits a base32 secret into space separated groups of four for
// manual entry.
func FormatSecret(secret string) string {
	var b strings.Builder
	for i, r := range secret {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toDigits(n int) (otp.Digits, error) {
	switch n {
	case 6:
		return otp.DigitsSix, nil
	case 8:
		return otp.DigitsEight, nil
	default:
		return 0, fmt.Errorf("mfa: unsupported totp digits %d", n)
	}
}

func toAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(name) {
	case "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("mfa: unsupported totp algorithm %q", name)
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
