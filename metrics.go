package goIdentity

import (
	"github.com/MrEthical07/goIdentity/internal/metrics"
)

// MetricID identifies one engine counter or histogram.
type MetricID = metrics.ID

// MetricsSnapshot is a point-in-time copy of the engine counters.
type MetricsSnapshot = metrics.Snapshot

const (
	MetricLoginSuccess                 = metrics.LoginSuccess
	MetricLoginFailure                 = metrics.LoginFailure
	MetricLoginLockedOut               = metrics.LoginLockedOut
	MetricAccountLocked                = metrics.AccountLocked
	MetricPasswordRehashed             = metrics.PasswordRehashed
	MetricMFAChallengeIssued           = metrics.MFAChallengeIssued
	MetricRefreshSuccess               = metrics.RefreshSuccess
	MetricRefreshFailure               = metrics.RefreshFailure
	MetricRefreshReuseDetected         = metrics.RefreshReuseDetected
	MetricTokenRevoked                 = metrics.TokenRevoked
	MetricLogout                       = metrics.Logout
	MetricRegisterSuccess              = metrics.RegisterSuccess
	MetricRegisterDuplicate            = metrics.RegisterDuplicate
	MetricRegisterRateLimited          = metrics.RegisterRateLimited
	MetricEmailConfirmed               = metrics.EmailConfirmed
	MetricPasswordChangeSuccess        = metrics.PasswordChangeSuccess
	MetricPasswordChangeInvalidCurrent = metrics.PasswordChangeInvalidCurrent
	MetricPasswordChangeReuseRejected  = metrics.PasswordChangeReuseRejected
	MetricPasswordResetRequest         = metrics.PasswordResetRequest
	MetricPasswordResetRateLimited     = metrics.PasswordResetRateLimited
	MetricPasswordResetSuccess         = metrics.PasswordResetSuccess
	MetricPasswordResetFailure         = metrics.PasswordResetFailure
	MetricMFASetup                     = metrics.MFASetup
	MetricMFAEnabled                   = metrics.MFAEnabled
	MetricMFADisabled                  = metrics.MFADisabled
	MetricMFAVerifySuccess             = metrics.MFAVerifySuccess
	MetricMFAVerifyFailure             = metrics.MFAVerifyFailure
	MetricMFAAttemptsExceeded          = metrics.MFAAttemptsExceeded
	MetricTOTPReplay                   = metrics.TOTPReplay
	MetricBackupCodeUsed               = metrics.BackupCodeUsed
	MetricBackupCodesRegenerated       = metrics.BackupCodesRegenerated
	MetricEmailOTPSent                 = metrics.EmailOTPSent
	MetricEmailOTPRateLimited          = metrics.EmailOTPRateLimited
	MetricValidateLatency              = metrics.ValidateLatency
)
