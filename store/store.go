package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a uniqueness constraint rejects a write.
	ErrConflict = errors.New("store: conflict")
)

// Users persists accounts. Email lookups are case-insensitive.
type Users interface {
	Create(ctx context.Context, u *User) error
	ByID(ctx context.Context, id uuid.UUID) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	// RecordLoginFailure atomically increments failed_access_count. When the
	// count reaches threshold the counter resets and lockout_end is set to
	// lockUntil; locked reports that transition.
	RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (count int, locked bool, err error)
	RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time, ip string) error
	// UpdatePassword replaces the hash and clears any lockout.
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error
	Confirm(ctx context.Context, id uuid.UUID, at time.Time) error
	SetTwoFactor(ctx context.Context, id uuid.UUID, enabled bool, at time.Time) error
}

// RefreshTokens persists the refresh-token chain.
type RefreshTokens interface {
	Create(ctx context.Context, t *RefreshToken) error
	ByID(ctx context.Context, id uuid.UUID) (*RefreshToken, error)
	// MarkRotated revokes id with reason rotated and links successor, only if
	// id is not yet revoked. ok is false when another redemption won.
	MarkRotated(ctx context.Context, id, successor uuid.UUID, at time.Time) (ok bool, err error)
	// Revoke revokes a single live token.
	Revoke(ctx context.Context, id uuid.UUID, reason RevokeReason, at time.Time) (ok bool, err error)
	// RevokeAllForUser revokes every live token of the user except the ids
	// listed in keep and returns the rows it changed.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason RevokeReason, at time.Time, keep ...uuid.UUID) ([]RefreshToken, error)
	// ListActiveForUser returns the tokens of the user that are live at now,
	// most recently issued first.
	ListActiveForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]RefreshToken, error)
}

// MFA persists per-user MFA settings.
type MFA interface {
	Settings(ctx context.Context, userID uuid.UUID) (*MfaSettings, error)
	SaveSettings(ctx context.Context, s *MfaSettings) error
	// AdvanceStep records a used TOTP step only if it is newer than the last
	// one; ok is false on replay.
	AdvanceStep(ctx context.Context, userID uuid.UUID, step int64, at time.Time) (ok bool, err error)
}

// BackupCodes persists hashed recovery codes.
type BackupCodes interface {
	InsertBatch(ctx context.Context, codes []BackupCode) error
	InvalidateAll(ctx context.Context, userID uuid.UUID, at time.Time) (int, error)
	// Consume marks the matching unused code as used. ok is true for exactly
	// one caller per code.
	Consume(ctx context.Context, userID uuid.UUID, hash []byte, at time.Time) (ok bool, err error)
	Remaining(ctx context.Context, userID uuid.UUID) (int, error)
}

// EmailOtps persists hashed email one-time codes.
type EmailOtps interface {
	// Issue invalidates every live code for (user, purpose) and stores o.
	Issue(ctx context.Context, o *EmailOtp) error
	// Consume marks the matching live code consumed. ok is true for exactly
	// one caller per code.
	Consume(ctx context.Context, userID uuid.UUID, purpose OtpPurpose, hash []byte, now time.Time) (ok bool, err error)
}

type AuditLog interface {
	Append(ctx context.Context, e AuditEntry) error
}

// Tx is an open unit of work.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWork opens transactions. The returned context carries the
// transaction and must be passed to every repository call that should join it.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, Tx, error)
}

// Store bundles every repository of a backend.
type Store interface {
	UnitOfWork
	Users() Users
	RefreshTokens() RefreshTokens
	MFA() MFA
	BackupCodes() BackupCodes
	EmailOtps() EmailOtps
	Audit() AuditLog
	Ping(ctx context.Context) error
	Close() error
}
