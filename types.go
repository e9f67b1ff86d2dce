package goIdentity

import (
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/tokens"
)

// Commands and queries accepted by the Engine.
type (
	LoginCommand                 = flows.LoginCommand
	RegisterCommand              = flows.RegisterCommand
	ConfirmEmailCommand          = flows.ConfirmEmailCommand
	RefreshTokenCommand          = flows.RefreshTokenCommand
	LogoutCommand                = flows.LogoutCommand
	RevokeTokenCommand           = flows.RevokeTokenCommand
	GetSessionsQuery             = flows.GetSessionsQuery
	DeleteSessionCommand         = flows.DeleteSessionCommand
	GetCurrentUserQuery          = flows.GetCurrentUserQuery
	ForgotPasswordCommand        = flows.ForgotPasswordCommand
	ResetPasswordCommand         = flows.ResetPasswordCommand
	ChangePasswordCommand        = flows.ChangePasswordCommand
	SetupMfaCommand              = flows.SetupMfaCommand
	EnableMfaCommand             = flows.EnableMfaCommand
	VerifyMfaCommand             = flows.VerifyMfaCommand
	SendMfaEmailOtpCommand       = flows.SendMfaEmailOtpCommand
	DisableMfaCommand            = flows.DisableMfaCommand
	RegenerateBackupCodesCommand = flows.RegenerateBackupCodesCommand
	GetMfaStatusQuery            = flows.GetMfaStatusQuery
)

// Results returned by the Engine.
type (
	TokenPair            = tokens.TokenPair
	UserInfo             = flows.UserInfo
	Ack                  = flows.Ack
	LoginResult          = flows.LoginResult
	RegisterResult       = flows.RegisterResult
	RevokeResult         = flows.RevokeResult
	SessionInfo          = flows.SessionInfo
	SessionsResult       = flows.SessionsResult
	CurrentUser          = flows.CurrentUser
	ChangePasswordResult = flows.ChangePasswordResult
	MfaSetupResult       = flows.MfaSetupResult
	MfaEnabledResult     = flows.MfaEnabledResult
	VerifyMfaResult      = flows.VerifyMfaResult
	EmailOtpSentResult   = flows.EmailOtpSentResult
	BackupCodesResult    = flows.BackupCodesResult
	MfaStatus            = flows.MfaStatus
)

// MFA method names accepted in VerifyMfaCommand.Type.
const (
	MethodTOTP   = flows.MethodTOTP
	MethodBackup = flows.MethodBackup
	MethodEmail  = flows.MethodEmail
)
