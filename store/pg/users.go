package pg

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/goIdentity/store"
)

type users struct{ s *Store }

const userColumns = `u.id, u.email, u.password_hash, u.first_name, u.last_name, u.phone,
	u.email_confirmed, u.is_active, u.failed_access_count, u.lockout_end, u.two_factor_enabled,
	u.last_login_at, u.last_login_ip, u.created_at, u.updated_at, u.deactivated_at,
	COALESCE((SELECT array_agg(r.name ORDER BY r.name) FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = u.id), '{}')`

func scanUser(row pgx.Row) (*store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone,
		&u.EmailConfirmed, &u.IsActive, &u.FailedAccessCount, &u.LockoutEnd, &u.TwoFactorEnabled,
		&u.LastLoginAt, &u.LastLoginIP, &u.CreatedAt, &u.UpdatedAt, &u.DeactivatedAt, &u.Roles)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r users) Create(ctx context.Context, u *store.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if len(u.Roles) == 0 {
		u.Roles = []string{store.RoleUser}
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt

	const q = `WITH u AS (
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone,
			email_confirmed, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id)
	INSERT INTO user_roles (user_id, role_id)
	SELECT u.id, r.id FROM u, roles r WHERE r.name = ANY($10)`
	_, err := r.s.q(ctx).Exec(ctx, q, u.ID, strings.TrimSpace(u.Email), u.PasswordHash,
		u.FirstName, u.LastName, u.Phone, u.EmailConfirmed, u.IsActive, u.CreatedAt, u.Roles)
	return mapErr(err)
}

func (r users) ByID(ctx context.Context, id uuid.UUID) (*store.User, error) {
	return scanUser(r.s.q(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id))
}

func (r users) ByEmail(ctx context.Context, email string) (*store.User, error) {
	return scanUser(r.s.q(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE lower(u.email) = lower($1)`, strings.TrimSpace(email)))
}

func (r users) RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (int, bool, error) {
	const q = `UPDATE users SET
		failed_access_count = CASE WHEN failed_access_count + 1 >= $2 THEN 0 ELSE failed_access_count + 1 END,
		lockout_end = CASE WHEN failed_access_count + 1 >= $2 THEN $3 ELSE lockout_end END,
		updated_at = now()
	WHERE id = $1
	RETURNING failed_access_count`
	var count int
	if err := r.s.q(ctx).QueryRow(ctx, q, id, threshold, lockUntil).Scan(&count); err != nil {
		return 0, false, mapErr(err)
	}
	// The counter only returns to zero when the threshold was reached.
	if count == 0 {
		return threshold, true, nil
	}
	return count, false, nil
}

func (r users) exec(ctx context.Context, q string, args ...any) error {
	tag, err := r.s.q(ctx).Exec(ctx, q, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r users) RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time, ip string) error {
	return r.exec(ctx, `UPDATE users SET failed_access_count = 0, lockout_end = NULL,
		last_login_at = $2, last_login_ip = $3, updated_at = $2 WHERE id = $1`, id, at, ip)
}

func (r users) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET password_hash = $2, failed_access_count = 0, lockout_end = NULL,
		updated_at = $3 WHERE id = $1`, id, hash, at)
}

func (r users) Confirm(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET email_confirmed = TRUE, is_active = TRUE, updated_at = $2
		WHERE id = $1`, id, at)
}

func (r users) SetTwoFactor(ctx context.Context, id uuid.UUID, enabled bool, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET two_factor_enabled = $2, updated_at = $3 WHERE id = $1`, id, enabled, at)
}
