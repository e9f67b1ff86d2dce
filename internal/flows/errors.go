package flows

import "github.com/MrEthical07/goIdentity/apperr"

// Sentinel errors returned by the handlers. Messages are the public wording;
// compare with errors.Is.
var (
	ErrInvalidCredentials = apperr.Unauthorized("INVALID_CREDENTIALS", "Invalid email or password.")
	ErrAccountLocked      = apperr.New(apperr.KindLocked, "ACCOUNT_LOCKED",
		"Account is temporarily locked due to too many failed attempts. Please try again later.")
	ErrAccountInactive   = apperr.New(apperr.KindForbidden, "ACCOUNT_INACTIVE", "Account is not active.")
	ErrEmailNotConfirmed = apperr.New(apperr.KindForbidden, "EMAIL_NOT_CONFIRMED", "Email address has not been confirmed.")

	ErrEmailAlreadyExists = &apperr.Error{Kind: apperr.KindAlreadyExists, Code: "EMAIL_ALREADY_EXISTS",
		Message: "A user with this email already exists."}
	ErrUserNotFound = &apperr.Error{Kind: apperr.KindNotFound, Code: "USER_NOT_FOUND",
		Message: "User was not found."}

	ErrCurrentPasswordInvalid = apperr.BusinessRule("INVALID_CURRENT_PASSWORD", "Current password is incorrect.")
	ErrPasswordReused         = apperr.BusinessRule("PASSWORD_REUSED", "New password must differ from the current password.")
	ErrResetTokenInvalid      = apperr.BusinessRule("INVALID_RESET_TOKEN", "Invalid or expired password reset token.")

	ErrConfirmationCodeInvalid = apperr.BusinessRule("INVALID_CONFIRMATION_CODE", "Invalid or expired confirmation code.")
	ErrEmailAlreadyConfirmed   = apperr.InvalidOperation("EMAIL_ALREADY_CONFIRMED", "Email address is already confirmed.")

	ErrMfaAlreadyEnabled   = apperr.BusinessRule("MFA_ALREADY_ENABLED", "Two-factor authentication is already enabled.")
	ErrMfaNotEnabled       = apperr.BusinessRule("MFA_NOT_ENABLED", "Two-factor authentication is not enabled.")
	ErrMfaNotPending       = apperr.InvalidOperation("MFA_SETUP_REQUIRED", "Start two-factor setup before enabling it.")
	ErrMfaCodeInvalid      = apperr.Unauthorized("INVALID_MFA_CODE", "Invalid verification code.")
	ErrMfaChallengeInvalid = apperr.Unauthorized("INVALID_MFA_CHALLENGE", "Invalid or expired MFA challenge.")
	ErrMfaAttemptsExceeded = apperr.New(apperr.KindRateLimited, "MFA_ATTEMPTS_EXCEEDED",
		"Too many verification attempts. Please try again later.")
	ErrEmailOtpLimited = apperr.New(apperr.KindRateLimited, "EMAIL_OTP_RATE_LIMITED",
		"Too many codes requested. Please try again later.")
	ErrRegistrationLimited = apperr.New(apperr.KindRateLimited, "REGISTRATION_RATE_LIMITED",
		"Too many requests. Please try again later.")
	ErrPasswordResetLimited = apperr.New(apperr.KindRateLimited, "PASSWORD_RESET_RATE_LIMITED",
		"Too many requests. Please try again later.")
)

// emailExists renders the duplicate-email conflict with the address in the
// message while still matching ErrEmailAlreadyExists.
func emailExists(email string) error {
	e := apperr.AlreadyExists("User", "email", email)
	e.Code = ErrEmailAlreadyExists.Code
	return e
}

// userNotFound renders a missing user by id, matching ErrUserNotFound.
func userNotFound(id any) error {
	e := apperr.NotFound("User", id)
	e.Code = ErrUserNotFound.Code
	return e
}
