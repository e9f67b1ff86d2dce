package store

import (
	"time"

	"github.com/google/uuid"
)

// Role names seeded by the initial migration.
const (
	RoleUser  = "User"
	RoleAdmin = "Admin"
)

type User struct {
	ID                uuid.UUID
	Email             string
	PasswordHash      string
	FirstName         string
	LastName          string
	Phone             string
	EmailConfirmed    bool
	IsActive          bool
	FailedAccessCount int
	LockoutEnd        *time.Time
	TwoFactorEnabled  bool
	LastLoginAt       *time.Time
	LastLoginIP       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeactivatedAt     *time.Time
	Roles             []string
}

// IsLockedOut reports whether a lockout is in force at now.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && u.LockoutEnd.After(now)
}

// RevokeReason records why a refresh token stopped being redeemable.
type RevokeReason string

const (
	RevokeRotated        RevokeReason = "rotated"
	RevokeLogout         RevokeReason = "logout"
	RevokeRevoked        RevokeReason = "revoked"
	RevokeReuse          RevokeReason = "reuse"
	RevokePasswordReset  RevokeReason = "password_reset"
	RevokePasswordChange RevokeReason = "password_change"
)

type RefreshToken struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	TokenHash     []byte
	FamilyID      uuid.UUID
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	RevokedReason RevokeReason
	ReplacedBy    *uuid.UUID
	IP            string
	UserAgent     string
}

// Rotated reports whether the token was already redeemed for a successor.
func (t *RefreshToken) Rotated() bool {
	return t.RevokedReason == RevokeRotated || t.ReplacedBy != nil
}

// Live reports whether the token may still be redeemed at now.
func (t *RefreshToken) Live(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

type MfaState string

const (
	MfaDisabled MfaState = "disabled"
	MfaPending  MfaState = "pending"
	MfaEnabled  MfaState = "enabled"
)

// MfaSettings is the single MFA row kept per user.
type MfaSettings struct {
	UserID           uuid.UUID
	SecretCiphertext string
	State            MfaState
	Algorithm        string
	Digits           int
	Period           int
	EnrolledAt       *time.Time
	EnabledAt        *time.Time
	DisabledAt       *time.Time
	LastUsedAt       *time.Time
	LastUsedStep     int64
	UpdatedAt        time.Time
}

type BackupCode struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	CodeHash      []byte
	BatchID       uuid.UUID
	CreatedAt     time.Time
	UsedAt        *time.Time
	InvalidatedAt *time.Time
}

// OtpPurpose scopes an email one-time code.
type OtpPurpose string

const (
	OtpLogin          OtpPurpose = "login"
	OtpRegister       OtpPurpose = "register"
	OtpForgotPassword OtpPurpose = "forgot_password"
	OtpEnable2FA      OtpPurpose = "enable_2fa"
)

type EmailOtp struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Purpose    OtpPurpose
	CodeHash   []byte
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// AuditEntry is one append-only row of the audit log. UserID and ActorID
// may be uuid.Nil for events about unknown accounts.
type AuditEntry struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Action    string
	Method    string
	Success   bool
	ActorID   uuid.UUID
	IP        string
	UserAgent string
	Detail    string
	CreatedAt time.Time
}
