// Package limiters holds the domain throttles built on internal/rate.
//
// # Limiters
//
//   - [MFAVerifyLimiter]: attempts per user across every MFA verification
//     method (mfv:).
//   - [EmailOTPLimiter]: email one-time-code sends per user and purpose (eos:).
//   - [PasswordResetLimiter]: forgot-password requests per email and per IP
//     (pwr:, pwri:).
//   - [RegistrationLimiter]: sign-ups per email and per IP (reg:, regi:).
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
// Flow code decides what a limit means (silent success, 429, audit entry).
package limiters
