package goIdentity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every engine setting. Build it with DefaultConfig and treat it
// as immutable once handed to the Builder.
type Config struct {
	JWT            JWTConfig
	Refresh        RefreshConfig
	Password       PasswordConfig
	Lockout        LockoutConfig
	TOTP           TOTPConfig
	BackupCodes    BackupCodeConfig
	EmailOTP       EmailOTPConfig
	PasswordReset  PasswordResetConfig
	Registration   RegistrationConfig
	MFAVerify      MFAVerifyConfig
	Pipeline       PipelineConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	ProductionMode bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

// JWTConfig controls access tokens. SigningMethod is "hs256" or "ed25519".
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// RefreshConfig controls opaque refresh tokens.
type RefreshConfig struct {
	TTL time.Duration
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters. Memory is in KiB.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// LockoutConfig locks an account for Duration after Threshold consecutive
// bad passwords. A zero Threshold disables lockout.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// RegistrationConfig controls sign-up.
type RegistrationConfig struct {
	RequireEmailConfirmation bool
	ConfirmationTTL          time.Duration
	DefaultRole              string
	MaxAttempts              int
	Cooldown                 time.Duration
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
}

// PasswordResetConfig controls forgot/reset password. ResetURL, when set,
// is mailed with the token as a query parameter.
type PasswordResetConfig struct {
	TokenTTL         time.Duration
	TokenBytes       int
	MaxRequests      int
	Window           time.Duration
	EnableIPThrottle bool
	ResetURL         string
}

/*
====================================
MFA CONFIG
====================================
*/

// TOTPConfig controls authenticator-app codes. SealKey is the 32-byte
// AES key protecting stored secrets.
type TOTPConfig struct {
	Issuer       string
	Digits       int
	Period       int
	Algorithm    string
	Skew         int
	SealKey      []byte
	ChallengeTTL time.Duration
}

type BackupCodeConfig struct {
	Count int
}

// EmailOTPConfig controls emailed login codes and how often they may be sent.
type EmailOTPConfig struct {
	Digits   int
	TTL      time.Duration
	MaxSends int
	Window   time.Duration
}

// MFAVerifyConfig caps verification attempts per user across every method.
type MFAVerifyConfig struct {
	MaxAttempts int
	Window      time.Duration
}

/*
====================================
RUNTIME CONFIG
====================================
*/

// PipelineConfig controls the request pipeline. Requests slower than
// SlowThreshold are logged at warn level.
type PipelineConfig struct {
	SlowThreshold time.Duration
}

// AuditConfig controls audit delivery. When Enabled, events are dispatched
// asynchronously through a buffer of BufferSize; otherwise they are written
// synchronously.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns development-friendly defaults. Keys are left empty
// and must be supplied before Build.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "goIdentity",
		},
		Refresh: RefreshConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:       "goIdentity",
			Digits:       6,
			Period:       30,
			Algorithm:    "SHA1",
			Skew:         1,
			ChallengeTTL: 5 * time.Minute,
		},
		BackupCodes: BackupCodeConfig{
			Count: 10,
		},
		EmailOTP: EmailOTPConfig{
			Digits:   6,
			TTL:      10 * time.Minute,
			MaxSends: 3,
			Window:   10 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:         15 * time.Minute,
			TokenBytes:       32,
			MaxRequests:      3,
			Window:           15 * time.Minute,
			EnableIPThrottle: true,
		},
		Registration: RegistrationConfig{
			RequireEmailConfirmation: false,
			ConfirmationTTL:          24 * time.Hour,
			DefaultRole:              "User",
			MaxAttempts:              5,
			Cooldown:                 time.Hour,
			EnableIdentifierThrottle: true,
			EnableIPThrottle:         true,
		},
		MFAVerify: MFAVerifyConfig{
			MaxAttempts: 5,
			Window:      5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			SlowThreshold: 500 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// HighSecurityConfig tightens DefaultConfig for production: short access
// tokens, Ed25519 signing, mandatory email confirmation and no dropped
// audit events. Keys must still be supplied.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()
	cfg.ProductionMode = true
	cfg.JWT.AccessTTL = 5 * time.Minute
	cfg.JWT.SigningMethod = "ed25519"
	cfg.Refresh.TTL = 24 * time.Hour
	cfg.Lockout.Threshold = 5
	cfg.Lockout.Duration = 30 * time.Minute
	cfg.Registration.RequireEmailConfirmation = true
	cfg.Audit.DropIfFull = false
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.TOTP.SealKey = cloneBytes(cfg.TOTP.SealKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with. It checks
// ranges only; Lint reports legal but risky choices.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 5*time.Minute {
		return errors.New("JWT Leeway must be within [0, 5m]")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Lockout
	if c.Lockout.Threshold < 0 {
		return errors.New("Lockout Threshold must be >= 0")
	}
	if c.Lockout.Threshold > 0 && c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0 when lockout is enabled")
	}

	// TOTP
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}
	if len(c.TOTP.SealKey) != 32 {
		return fmt.Errorf("TOTP SealKey must be 32 bytes, got %d", len(c.TOTP.SealKey))
	}
	if c.TOTP.ChallengeTTL <= 0 {
		return errors.New("TOTP ChallengeTTL must be > 0")
	}

	// Backup codes and email OTP
	if c.BackupCodes.Count <= 0 {
		return errors.New("BackupCodes Count must be > 0")
	}
	if c.EmailOTP.Digits < 6 || c.EmailOTP.Digits > 10 {
		return errors.New("EmailOTP Digits must be between 6 and 10")
	}
	if c.EmailOTP.TTL <= 0 {
		return errors.New("EmailOTP TTL must be > 0")
	}
	if c.EmailOTP.MaxSends <= 0 || c.EmailOTP.Window <= 0 {
		return errors.New("EmailOTP MaxSends and Window must be > 0")
	}
	if c.MFAVerify.MaxAttempts <= 0 || c.MFAVerify.Window <= 0 {
		return errors.New("MFAVerify MaxAttempts and Window must be > 0")
	}

	// Password reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.TokenBytes < 16 {
		return errors.New("PasswordReset TokenBytes must be >= 16")
	}
	if c.PasswordReset.MaxRequests <= 0 || c.PasswordReset.Window <= 0 {
		return errors.New("PasswordReset MaxRequests and Window must be > 0")
	}

	// Registration
	if strings.TrimSpace(c.Registration.DefaultRole) == "" {
		return errors.New("Registration DefaultRole is required")
	}
	if c.Registration.RequireEmailConfirmation && c.Registration.ConfirmationTTL <= 0 {
		return errors.New("Registration ConfirmationTTL must be > 0 when confirmation is required")
	}
	if c.Registration.MaxAttempts <= 0 || c.Registration.Cooldown <= 0 {
		return errors.New("Registration MaxAttempts and Cooldown must be > 0")
	}

	// Pipeline and audit
	if c.Pipeline.SlowThreshold <= 0 {
		return errors.New("Pipeline SlowThreshold must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.ProductionMode {
		if c.JWT.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT AccessTTL <= 15m")
		}
		if c.Refresh.TTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires Refresh TTL <= 30d")
		}
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires Password KeyLength >= 32")
		}
		if c.Lockout.Threshold == 0 {
			return errors.New("ProductionMode requires account lockout")
		}
		if c.TOTP.Skew > 2 {
			return errors.New("ProductionMode requires TOTP Skew <= 2")
		}
		if c.BackupCodes.Count < 8 {
			return errors.New("ProductionMode requires BackupCodes Count >= 8")
		}
		if c.MFAVerify.MaxAttempts > 10 {
			return errors.New("ProductionMode requires MFAVerify MaxAttempts <= 10")
		}
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a legal but risky configuration choice.
type LintWarning struct {
	Code    string
	Message string
}

type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Code
	}
	return out
}

// Lint reports settings that pass Validate but weaken the deployment.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", "JWT leeway above 1m widens the replay window of expired tokens")
	}
	if c.JWT.AccessTTL > 10*time.Minute {
		add("access_ttl_long", "access tokens cannot be revoked before expiry; keep AccessTTL short")
	}
	if c.Refresh.TTL > 14*24*time.Hour {
		add("refresh_ttl_long", "refresh tokens live longer than 14 days")
	}
	if c.JWT.SigningMethod == "hs256" {
		add("hs256_signing", "hs256 shares the signing secret with every verifier")
	}
	if c.Lockout.Threshold == 0 {
		add("lockout_disabled", "account lockout is disabled")
	}
	if !c.Registration.EnableIdentifierThrottle && !c.Registration.EnableIPThrottle {
		add("registration_unthrottled", "registration has no throttle")
	}
	if !c.PasswordReset.EnableIPThrottle {
		add("reset_ip_throttle_disabled", "forgot-password is only throttled per email")
	}
	if !c.Registration.RequireEmailConfirmation {
		add("email_confirmation_disabled", "accounts are active before the email address is proven")
	}
	if c.TOTP.Skew > 1 {
		add("totp_skew_wide", "TOTP skew above 1 accepts codes older than a minute")
	}
	if !c.Audit.Enabled {
		add("audit_sync", "audit events are written synchronously on the request path")
	} else if c.Audit.DropIfFull {
		add("audit_drop_if_full", "audit events are dropped when the buffer is full")
	}
	return ws
}
