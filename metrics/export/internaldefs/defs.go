package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricLoginSuccess, Name: "identity_login_success_total", Help: "Successful password logins."},
	{ID: goIdentity.MetricLoginFailure, Name: "identity_login_failure_total", Help: "Failed login attempts."},
	{ID: goIdentity.MetricLoginLockedOut, Name: "identity_login_locked_out_total", Help: "Login attempts rejected because the account is locked."},
	{ID: goIdentity.MetricAccountLocked, Name: "identity_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: goIdentity.MetricPasswordRehashed, Name: "identity_password_rehashed_total", Help: "Password hashes upgraded on login."},
	{ID: goIdentity.MetricMFAChallengeIssued, Name: "identity_mfa_challenge_issued_total", Help: "Login MFA challenges issued."},
	{ID: goIdentity.MetricRefreshSuccess, Name: "identity_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goIdentity.MetricRefreshFailure, Name: "identity_refresh_failure_total", Help: "Rejected refresh tokens."},
	{ID: goIdentity.MetricRefreshReuseDetected, Name: "identity_refresh_reuse_detected_total", Help: "Rotated refresh tokens presented again."},
	{ID: goIdentity.MetricTokenRevoked, Name: "identity_token_revoked_total", Help: "Refresh tokens revoked on request."},
	{ID: goIdentity.MetricLogout, Name: "identity_logout_total", Help: "Logouts."},
	{ID: goIdentity.MetricRegisterSuccess, Name: "identity_register_success_total", Help: "Accounts created."},
	{ID: goIdentity.MetricRegisterDuplicate, Name: "identity_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: goIdentity.MetricRegisterRateLimited, Name: "identity_register_rate_limited_total", Help: "Registrations rejected by the throttle."},
	{ID: goIdentity.MetricEmailConfirmed, Name: "identity_email_confirmed_total", Help: "Email addresses confirmed."},
	{ID: goIdentity.MetricPasswordChangeSuccess, Name: "identity_password_change_success_total", Help: "Successful password changes."},
	{ID: goIdentity.MetricPasswordChangeInvalidCurrent, Name: "identity_password_change_invalid_current_total", Help: "Password changes with a wrong current password."},
	{ID: goIdentity.MetricPasswordChangeReuseRejected, Name: "identity_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: goIdentity.MetricPasswordResetRequest, Name: "identity_password_reset_request_total", Help: "Password reset requests."},
	{ID: goIdentity.MetricPasswordResetRateLimited, Name: "identity_password_reset_rate_limited_total", Help: "Password reset requests rejected by the throttle."},
	{ID: goIdentity.MetricPasswordResetSuccess, Name: "identity_password_reset_success_total", Help: "Completed password resets."},
	{ID: goIdentity.MetricPasswordResetFailure, Name: "identity_password_reset_failure_total", Help: "Rejected password reset tokens."},
	{ID: goIdentity.MetricMFASetup, Name: "identity_mfa_setup_total", Help: "MFA setups started."},
	{ID: goIdentity.MetricMFAEnabled, Name: "identity_mfa_enabled_total", Help: "MFA enrollments completed."},
	{ID: goIdentity.MetricMFADisabled, Name: "identity_mfa_disabled_total", Help: "MFA disabled."},
	{ID: goIdentity.MetricMFAVerifySuccess, Name: "identity_mfa_verify_success_total", Help: "Successful second-factor checks."},
	{ID: goIdentity.MetricMFAVerifyFailure, Name: "identity_mfa_verify_failure_total", Help: "Failed second-factor checks."},
	{ID: goIdentity.MetricMFAAttemptsExceeded, Name: "identity_mfa_attempts_exceeded_total", Help: "Second-factor checks rejected by the attempt cap."},
	{ID: goIdentity.MetricTOTPReplay, Name: "identity_totp_replay_total", Help: "TOTP codes presented twice in the same step."},
	{ID: goIdentity.MetricBackupCodeUsed, Name: "identity_backup_code_used_total", Help: "Backup codes redeemed."},
	{ID: goIdentity.MetricBackupCodesRegenerated, Name: "identity_backup_codes_regenerated_total", Help: "Backup code batches regenerated."},
	{ID: goIdentity.MetricEmailOTPSent, Name: "identity_email_otp_sent_total", Help: "Email one-time codes sent."},
	{ID: goIdentity.MetricEmailOTPRateLimited, Name: "identity_email_otp_rate_limited_total", Help: "Email one-time codes refused by the send cap."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricValidateLatency, Name: "identity_validate_latency_seconds", Help: "Access token validation latency."},
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "identity_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one extra overflow bucket.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, overflow included, for exporters
// without native histograms.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight engine buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
