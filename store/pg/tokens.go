package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MrEthical07/goIdentity/store"
)

type tokens struct{ s *Store }

const tokenColumns = `id, user_id, token_hash, family_id, issued_at, expires_at,
	revoked_at, revoked_reason, replaced_by, ip, user_agent`

func scanToken(row pgx.Row) (*store.RefreshToken, error) {
	var t store.RefreshToken
	var reason *string
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.FamilyID, &t.IssuedAt, &t.ExpiresAt,
		&t.RevokedAt, &reason, &t.ReplacedBy, &t.IP, &t.UserAgent)
	if err != nil {
		return nil, mapErr(err)
	}
	if reason != nil {
		t.RevokedReason = store.RevokeReason(*reason)
	}
	return &t, nil
}

func (r tokens) Create(ctx context.Context, t *store.RefreshToken) error {
	_, err := r.s.q(ctx).Exec(ctx, `INSERT INTO refresh_tokens
		(id, user_id, token_hash, family_id, issued_at, expires_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.UserID, t.TokenHash, t.FamilyID, t.IssuedAt, t.ExpiresAt, t.IP, t.UserAgent)
	return mapErr(err)
}

func (r tokens) ByID(ctx context.Context, id uuid.UUID) (*store.RefreshToken, error) {
	return scanToken(r.s.q(ctx).QueryRow(ctx, `SELECT `+tokenColumns+` FROM refresh_tokens WHERE id = $1`, id))
}

func (r tokens) MarkRotated(ctx context.Context, id, successor uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.s.q(ctx).Exec(ctx, `UPDATE refresh_tokens
		SET revoked_at = $3, revoked_reason = 'rotated', replaced_by = $2
		WHERE id = $1 AND revoked_at IS NULL`, id, successor, at)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r tokens) Revoke(ctx context.Context, id uuid.UUID, reason store.RevokeReason, at time.Time) (bool, error) {
	tag, err := r.s.q(ctx).Exec(ctx, `UPDATE refresh_tokens SET revoked_at = $3, revoked_reason = $2
		WHERE id = $1 AND revoked_at IS NULL`, id, string(reason), at)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r tokens) ListActiveForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]store.RefreshToken, error) {
	rows, err := r.s.q(ctx).Query(ctx, `SELECT `+tokenColumns+` FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY issued_at DESC`, userID, now)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectTokens(rows)
}

func (r tokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason store.RevokeReason, at time.Time, keep ...uuid.UUID) ([]store.RefreshToken, error) {
	if keep == nil {
		keep = []uuid.UUID{}
	}
	rows, err := r.s.q(ctx).Query(ctx, `UPDATE refresh_tokens SET revoked_at = $3, revoked_reason = $2
		WHERE user_id = $1 AND revoked_at IS NULL AND NOT (id = ANY($4))
		RETURNING `+tokenColumns, userID, string(reason), at, keep)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectTokens(rows)
}

func collectTokens(rows pgx.Rows) ([]store.RefreshToken, error) {
	defer rows.Close()
	var out []store.RefreshToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, mapErr(rows.Err())
}
