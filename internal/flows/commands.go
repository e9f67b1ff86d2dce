package flows

import (
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/apperr"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/tokens"
)

// MFA verification methods.
const (
	MethodTOTP   = "totp"
	MethodBackup = "backup"
	MethodEmail  = "email"
)

const minPasswordLength = 8

// UserInfo is the public projection of an account.
type UserInfo struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	EmailConfirmed   bool      `json:"emailConfirmed"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	Roles            []string  `json:"roles"`
}

func userInfo(u *store.User) *UserInfo {
	return &UserInfo{
		ID:               u.ID,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		EmailConfirmed:   u.EmailConfirmed,
		TwoFactorEnabled: u.TwoFactorEnabled,
		Roles:            append([]string(nil), u.Roles...),
	}
}

// Ack is returned by commands that have nothing to report but a message.
type Ack struct {
	Message string `json:"message"`
}

type LoginCommand struct {
	Email    string `json:"email" validate:"required,email,max=256"`
	Password string `json:"password" validate:"required,max=1024"`
}

func (LoginCommand) RequestName() string { return "LoginCommand" }

// LoginResult either carries tokens or, when MFA is enabled, a challenge to
// be completed with VerifyMfaCommand.
type LoginResult struct {
	MfaRequired        bool              `json:"mfaRequired"`
	ChallengeID        string            `json:"challengeId,omitempty"`
	ChallengeExpiresAt *time.Time        `json:"challengeExpiresAt,omitempty"`
	Methods            []string          `json:"methods,omitempty"`
	Tokens             *tokens.TokenPair `json:"tokens,omitempty"`
	User               *UserInfo         `json:"user,omitempty"`
}

type RegisterCommand struct {
	Email           string `json:"email" validate:"required,email,max=256"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	FirstName       string `json:"firstName" validate:"required,max=100"`
	LastName        string `json:"lastName" validate:"required,max=100"`
	Phone           string `json:"phone,omitempty" validate:"omitempty,e164"`
}

func (RegisterCommand) RequestName() string { return "RegisterCommand" }

func (c RegisterCommand) Validate(ve *apperr.ValidationError) {
	checkPasswordStrength(ve, "password", c.Password)
	checkPersonName(ve, "firstName", c.FirstName)
	checkPersonName(ve, "lastName", c.LastName)
}

type RegisterResult struct {
	User                      *UserInfo         `json:"user"`
	RequiresEmailConfirmation bool              `json:"requiresEmailConfirmation"`
	Tokens                    *tokens.TokenPair `json:"tokens,omitempty"`
}

type ConfirmEmailCommand struct {
	Email string `json:"email" validate:"required,email,max=256"`
	Code  string `json:"code" validate:"required,numeric,min=6,max=10"`
}

func (ConfirmEmailCommand) RequestName() string { return "ConfirmEmailCommand" }

type RefreshTokenCommand struct {
	RefreshToken string `json:"refreshToken" validate:"required,max=512"`
}

func (RefreshTokenCommand) RequestName() string { return "RefreshTokenCommand" }

type LogoutCommand struct {
	UserID       uuid.UUID `json:"-" validate:"required"`
	RefreshToken string    `json:"refreshToken" validate:"required,max=512"`
}

func (LogoutCommand) RequestName() string { return "LogoutCommand" }

// RevokeTokenCommand revokes one refresh token, or every live one of the
// user when All is set.
type RevokeTokenCommand struct {
	UserID       uuid.UUID `json:"-" validate:"required"`
	RefreshToken string    `json:"refreshToken,omitempty" validate:"max=512"`
	All          bool      `json:"all"`
}

func (RevokeTokenCommand) RequestName() string { return "RevokeTokenCommand" }

func (c RevokeTokenCommand) Validate(ve *apperr.ValidationError) {
	if !c.All && c.RefreshToken == "" {
		ve.Add("refreshToken", "is required unless all is set")
	}
}

type RevokeResult struct {
	Revoked int `json:"revoked"`
}

// GetSessionsQuery lists the live sessions of a user. CurrentSessionID marks
// the caller's own session in the result.
type GetSessionsQuery struct {
	UserID           uuid.UUID `json:"-" validate:"required"`
	CurrentSessionID uuid.UUID `json:"-"`
}

func (GetSessionsQuery) RequestName() string { return "GetSessionsQuery" }

// SessionInfo describes one live refresh token.
type SessionInfo struct {
	ID        uuid.UUID `json:"id"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsCurrent bool      `json:"isCurrent"`
}

type SessionsResult struct {
	Sessions         []SessionInfo `json:"sessions"`
	CurrentSessionID *uuid.UUID    `json:"currentSessionId,omitempty"`
}

// DeleteSessionCommand revokes one session of the user.
type DeleteSessionCommand struct {
	UserID    uuid.UUID `json:"-" validate:"required"`
	SessionID uuid.UUID `json:"-" validate:"required"`
}

func (DeleteSessionCommand) RequestName() string { return "DeleteSessionCommand" }

type GetCurrentUserQuery struct {
	UserID uuid.UUID `json:"-" validate:"required"`
}

func (GetCurrentUserQuery) RequestName() string { return "GetCurrentUserQuery" }

// CurrentUser is the profile of the authenticated user.
type CurrentUser struct {
	UserInfo
	Phone       string     `json:"phone,omitempty"`
	IsActive    bool       `json:"isActive"`
	IsLockedOut bool       `json:"isLockedOut"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	LastLoginIP string     `json:"lastLoginIp,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type ForgotPasswordCommand struct {
	Email string `json:"email" validate:"required,email,max=256"`
}

func (ForgotPasswordCommand) RequestName() string { return "ForgotPasswordCommand" }

type ResetPasswordCommand struct {
	Email           string `json:"email" validate:"required,email,max=256"`
	Token           string `json:"token" validate:"required,max=256"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

func (ResetPasswordCommand) RequestName() string { return "ResetPasswordCommand" }

func (c ResetPasswordCommand) Validate(ve *apperr.ValidationError) {
	checkPasswordStrength(ve, "newPassword", c.NewPassword)
}

// ChangePasswordCommand changes the password of an authenticated user.
// RefreshToken identifies the caller's own session, which survives
// RevokeOtherSessions.
type ChangePasswordCommand struct {
	UserID              uuid.UUID `json:"-" validate:"required"`
	CurrentPassword     string    `json:"currentPassword" validate:"required,max=1024"`
	NewPassword         string    `json:"newPassword" validate:"required,min=8,max=128"`
	ConfirmPassword     string    `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
	RevokeOtherSessions bool      `json:"revokeOtherSessions"`
	RefreshToken        string    `json:"refreshToken,omitempty" validate:"max=512"`
}

func (ChangePasswordCommand) RequestName() string { return "ChangePasswordCommand" }

func (c ChangePasswordCommand) Validate(ve *apperr.ValidationError) {
	checkPasswordStrength(ve, "newPassword", c.NewPassword)
}

type ChangePasswordResult struct {
	RevokedSessions int `json:"revokedSessions"`
}

type SetupMfaCommand struct {
	UserID uuid.UUID `json:"-" validate:"required"`
}

func (SetupMfaCommand) RequestName() string { return "SetupMfaCommand" }

// MfaSetupResult is shown once; the secret is not retrievable later.
type MfaSetupResult struct {
	Secret          string `json:"secret"`
	FormattedSecret string `json:"formattedSecret"`
	ProvisioningURI string `json:"provisioningUri"`
	QRCodePNG       string `json:"qrCodePng"`
	Issuer          string `json:"issuer"`
	Account         string `json:"account"`
	Digits          int    `json:"digits"`
	Period          int    `json:"period"`
	Algorithm       string `json:"algorithm"`
}

type EnableMfaCommand struct {
	UserID uuid.UUID `json:"-" validate:"required"`
	Code   string    `json:"code" validate:"required,numeric,min=6,max=8"`
}

func (EnableMfaCommand) RequestName() string { return "EnableMfaCommand" }

type MfaEnabledResult struct {
	BackupCodes []string  `json:"backupCodes"`
	EnabledAt   time.Time `json:"enabledAt"`
}

// VerifyMfaCommand checks a second factor for an authenticated user or
// completes a login challenge when ChallengeID is set.
type VerifyMfaCommand struct {
	UserID      uuid.UUID `json:"-"`
	ChallengeID string    `json:"challengeId,omitempty" validate:"omitempty,uuid"`
	Code        string    `json:"code" validate:"required,max=32"`
	Type        string    `json:"type" validate:"required,oneof=totp backup email"`
}

func (VerifyMfaCommand) RequestName() string { return "VerifyMfaCommand" }

func (c VerifyMfaCommand) Validate(ve *apperr.ValidationError) {
	if c.UserID == uuid.Nil && c.ChallengeID == "" {
		ve.Add("challengeId", "is required")
	}
}

type VerifyMfaResult struct {
	Verified             bool              `json:"verified"`
	Method               string            `json:"method"`
	Tokens               *tokens.TokenPair `json:"tokens,omitempty"`
	BackupCodesRemaining *int              `json:"backupCodesRemaining,omitempty"`
}

type SendMfaEmailOtpCommand struct {
	UserID      uuid.UUID `json:"-"`
	ChallengeID string    `json:"challengeId,omitempty" validate:"omitempty,uuid"`
}

func (SendMfaEmailOtpCommand) RequestName() string { return "SendMfaEmailOtpCommand" }

func (c SendMfaEmailOtpCommand) Validate(ve *apperr.ValidationError) {
	if c.UserID == uuid.Nil && c.ChallengeID == "" {
		ve.Add("challengeId", "is required")
	}
}

type EmailOtpSentResult struct {
	SentTo    string    `json:"sentTo"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type DisableMfaCommand struct {
	UserID          uuid.UUID `json:"-" validate:"required"`
	CurrentPassword string    `json:"currentPassword" validate:"required,max=1024"`
	Code            string    `json:"code" validate:"required,max=32"`
	Type            string    `json:"type,omitempty" validate:"omitempty,oneof=totp backup"`
}

func (DisableMfaCommand) RequestName() string { return "DisableMfaCommand" }

type RegenerateBackupCodesCommand struct {
	UserID uuid.UUID `json:"-" validate:"required"`
	Code   string    `json:"code" validate:"required,numeric,min=6,max=8"`
}

func (RegenerateBackupCodesCommand) RequestName() string { return "RegenerateBackupCodesCommand" }

type BackupCodesResult struct {
	BackupCodes []string `json:"backupCodes"`
}

type GetMfaStatusQuery struct {
	UserID uuid.UUID `json:"-" validate:"required"`
}

func (GetMfaStatusQuery) RequestName() string { return "GetMfaStatusQuery" }

type MfaStatus struct {
	Enabled              bool       `json:"enabled"`
	State                string     `json:"state"`
	Methods              []string   `json:"methods"`
	BackupCodesRemaining int        `json:"backupCodesRemaining"`
	EnabledAt            *time.Time `json:"enabledAt,omitempty"`
	LastUsedAt           *time.Time `json:"lastUsedAt,omitempty"`
}

// checkPasswordStrength requires one upper-case letter, one lower-case
// letter, one digit and one symbol. Length is covered by tags.
func checkPasswordStrength(ve *apperr.ValidationError, field, pw string) {
	if len(pw) < minPasswordLength {
		return
	}
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || r == ' ':
			special = true
		}
	}
	if !upper {
		ve.Add(field, "must contain an upper-case letter")
	}
	if !lower {
		ve.Add(field, "must contain a lower-case letter")
	}
	if !digit {
		ve.Add(field, "must contain a digit")
	}
	if !special {
		ve.Add(field, "must contain a special character")
	}
}

// checkPersonName allows letters, spaces, hyphens, apostrophes and dots.
func checkPersonName(ve *apperr.ValidationError, field, name string) {
	for _, r := range name {
		if unicode.IsLetter(r) || r == ' ' || r == '-' || r == '\'' || r == '.' {
			continue
		}
		ve.Add(field, "may only contain letters, spaces, hyphens and apostrophes")
		return
	}
}
