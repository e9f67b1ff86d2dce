package flows

// Audit actions written by the flows.
const (
	ActionLogin             = "login"
	ActionAccountLocked     = "account_locked"
	ActionRegister          = "register"
	ActionEmailConfirmed    = "email_confirmed"
	ActionLogout            = "logout"
	ActionTokenRevoked      = "token_revoked"
	ActionSessionRevoked    = "session_revoked"
	ActionRefreshReuse      = "refresh_token_reuse"
	ActionPasswordResetSent = "password_reset_requested"
	ActionPasswordReset     = "password_reset"
	ActionPasswordChanged   = "password_changed"
	ActionMfaSetup          = "mfa_setup"
	ActionMfaEnabled        = "mfa_enabled"
	ActionTotpFailed        = "totp_failed"
	ActionMfaVerify         = "mfa_verify"
	ActionMfaDisabled       = "mfa_disabled"
	ActionBackupRegenerated = "backup_codes_regenerated"
	ActionEmailOtpSent      = "email_otp_sent"
)

// MethodPassword tags events authenticated by password alone.
const MethodPassword = "password"
