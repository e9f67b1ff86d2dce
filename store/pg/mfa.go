package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/goIdentity/store"
)

type mfa struct{ s *Store }

func (r mfa) Settings(ctx context.Context, userID uuid.UUID) (*store.MfaSettings, error) {
	var m store.MfaSettings
	var state string
	err := r.s.q(ctx).QueryRow(ctx, `SELECT user_id, secret_ciphertext, state, algorithm, digits, period,
		enrolled_at, enabled_at, disabled_at, last_used_at, last_used_step, updated_at
		FROM user_mfa_settings WHERE user_id = $1`, userID).Scan(
		&m.UserID, &m.SecretCiphertext, &state, &m.Algorithm, &m.Digits, &m.Period,
		&m.EnrolledAt, &m.EnabledAt, &m.DisabledAt, &m.LastUsedAt, &m.LastUsedStep, &m.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	m.State = store.MfaState(state)
	return &m, nil
}

func (r mfa) SaveSettings(ctx context.Context, m *store.MfaSettings) error {
	_, err := r.s.q(ctx).Exec(ctx, `INSERT INTO user_mfa_settings (user_id, secret_ciphertext, state,
		algorithm, digits, period, enrolled_at, enabled_at, disabled_at, last_used_at, last_used_step, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			secret_ciphertext = EXCLUDED.secret_ciphertext, state = EXCLUDED.state,
			algorithm = EXCLUDED.algorithm, digits = EXCLUDED.digits, period = EXCLUDED.period,
			enrolled_at = EXCLUDED.enrolled_at, enabled_at = EXCLUDED.enabled_at,
			disabled_at = EXCLUDED.disabled_at, last_used_at = EXCLUDED.last_used_at,
			last_used_step = EXCLUDED.last_used_step, updated_at = EXCLUDED.updated_at`,
		m.UserID, m.SecretCiphertext, string(m.State), m.Algorithm, m.Digits, m.Period,
		m.EnrolledAt, m.EnabledAt, m.DisabledAt, m.LastUsedAt, m.LastUsedStep, m.UpdatedAt)
	return mapErr(err)
}

func (r mfa) AdvanceStep(ctx context.Context, userID uuid.UUID, step int64, at time.Time) (bool, error) {
	tag, err := r.s.q(ctx).Exec(ctx, `UPDATE user_mfa_settings
		SET last_used_step = $2, last_used_at = $3, updated_at = $3
		WHERE user_id = $1 AND last_used_step < $2`, userID, step, at)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

type codes struct{ s *Store }

func (r codes) InsertBatch(ctx context.Context, batch []store.BackupCode) error {
	b := &pgx.Batch{}
	for _, c := range batch {
		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		b.Queue(`INSERT INTO user_mfa_backup_codes (id, user_id, code_hash, batch_id, created_at)
			VALUES ($1, $2, $3, $4, $5)`, id, c.UserID, c.CodeHash, c.BatchID, c.CreatedAt)
	}
	return mapErr(r.s.q(ctx).SendBatch(ctx, b).Close())
}

func (r codes) InvalidateAll(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	tag, err := r.s.q(ctx).Exec(ctx, `UPDATE user_mfa_backup_codes SET invalidated_at = $2
		WHERE user_id = $1 AND used_at IS NULL AND invalidated_at IS NULL`, userID, at)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r codes) Consume(ctx context.Context, userID uuid.UUID, hash []byte, at time.Time) (bool, error) {
	tag, err := r.s.q(ctx).Exec(ctx, `UPDATE user_mfa_backup_codes SET used_at = $3
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL AND invalidated_at IS NULL`,
		userID, hash, at)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r codes) Remaining(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.s.q(ctx).QueryRow(ctx, `SELECT count(*) FROM user_mfa_backup_codes
		WHERE user_id = $1 AND used_at IS NULL AND invalidated_at IS NULL`, userID).Scan(&n)
	return n, mapErr(err)
}

type otps struct{ s *Store }

func (r otps) Issue(ctx context.Context, o *store.EmailOtp) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	// Savepoint inside an outer transaction, a real transaction otherwise.
	return mapErr(pgx.BeginFunc(ctx, r.s.q(ctx), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE user_email_otps SET consumed_at = $3
			WHERE user_id = $1 AND purpose = $2 AND consumed_at IS NULL`,
			o.UserID, string(o.Purpose), o.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO user_email_otps (id, user_id, purpose, code_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, o.UserID, string(o.Purpose), o.CodeHash, o.ExpiresAt, o.CreatedAt)
		return err
	}))
}

func (r otps) Consume(ctx context.Context, userID uuid.UUID, purpose store.OtpPurpose, hash []byte, now time.Time) (bool, error) {
	tag, err := r.s.q(ctx).Exec(ctx, `UPDATE user_email_otps SET consumed_at = $4
		WHERE user_id = $1 AND purpose = $2 AND code_hash = $3
			AND consumed_at IS NULL AND expires_at > $4`,
		userID, string(purpose), hash, now)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

type auditLog struct{ s *Store }

func (r auditLog) Append(ctx context.Context, e store.AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.s.q(ctx).Exec(ctx, `INSERT INTO audit_log
		(id, user_id, action, method, success, actor_id, ip, user_agent, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, nullUUID(e.UserID), e.Action, e.Method, e.Success, nullUUID(e.ActorID),
		e.IP, e.UserAgent, e.Detail, e.CreatedAt)
	return mapErr(err)
}
