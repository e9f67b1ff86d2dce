package goIdentity

import (
	"github.com/MrEthical07/goIdentity/apperr"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/tokens"
)

// Sentinel errors. Every one is an *apperr.Error carrying a Kind and a stable
// code; compare with errors.Is and render with apperr.Translate.
var (
	ErrInvalidCredentials = flows.ErrInvalidCredentials
	ErrAccountLocked      = flows.ErrAccountLocked
	ErrAccountInactive    = flows.ErrAccountInactive
	ErrEmailNotConfirmed  = flows.ErrEmailNotConfirmed
	ErrEmailAlreadyExists = flows.ErrEmailAlreadyExists
	ErrUserNotFound       = flows.ErrUserNotFound

	ErrCurrentPasswordInvalid  = flows.ErrCurrentPasswordInvalid
	ErrPasswordReused          = flows.ErrPasswordReused
	ErrResetTokenInvalid       = flows.ErrResetTokenInvalid
	ErrConfirmationCodeInvalid = flows.ErrConfirmationCodeInvalid
	ErrEmailAlreadyConfirmed   = flows.ErrEmailAlreadyConfirmed

	ErrMfaAlreadyEnabled   = flows.ErrMfaAlreadyEnabled
	ErrMfaNotEnabled       = flows.ErrMfaNotEnabled
	ErrMfaNotPending       = flows.ErrMfaNotPending
	ErrMfaCodeInvalid      = flows.ErrMfaCodeInvalid
	ErrMfaChallengeInvalid = flows.ErrMfaChallengeInvalid

	ErrMfaAttemptsExceeded  = flows.ErrMfaAttemptsExceeded
	ErrEmailOtpLimited      = flows.ErrEmailOtpLimited
	ErrRegistrationLimited  = flows.ErrRegistrationLimited
	ErrPasswordResetLimited = flows.ErrPasswordResetLimited

	ErrRefreshTokenInvalid = tokens.ErrTokenInvalid
	ErrRefreshTokenReused  = tokens.ErrTokenReuseDetected
	ErrAccessTokenInvalid  = tokens.ErrAccessTokenInvalid
	ErrAccessTokenExpired  = tokens.ErrAccessTokenExpired
	ErrSessionNotFound     = tokens.ErrSessionNotFound

	// ErrEngineNotReady is returned by methods of a nil or closed Engine.
	ErrEngineNotReady = apperr.New(apperr.KindUnknown, "ENGINE_NOT_READY", "Service is not available.")
)
