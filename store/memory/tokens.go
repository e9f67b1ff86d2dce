package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/store"
)

type tokens struct{ s *Store }

func cloneToken(t *store.RefreshToken) *store.RefreshToken {
	c := *t
	c.TokenHash = slices.Clone(t.TokenHash)
	return &c
}

func (s *Store) saveToken(ctx context.Context, t *store.RefreshToken) {
	prev, existed := s.tokens[t.ID]
	s.tokens[t.ID] = t
	s.onRollback(ctx, func() {
		if existed {
			s.tokens[t.ID] = prev
			return
		}
		delete(s.tokens, t.ID)
	})
}

func (r tokens) Create(ctx context.Context, t *store.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.tokens[t.ID]; exists {
		return store.ErrConflict
	}
	r.s.saveToken(ctx, cloneToken(t))
	return nil
}

func (r tokens) ByID(_ context.Context, id uuid.UUID) (*store.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneToken(t), nil
}

func (r tokens) MarkRotated(ctx context.Context, id, successor uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[id]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	next := cloneToken(t)
	next.RevokedAt = &at
	next.RevokedReason = store.RevokeRotated
	next.ReplacedBy = &successor
	r.s.saveToken(ctx, next)
	return true, nil
}

func (r tokens) Revoke(ctx context.Context, id uuid.UUID, reason store.RevokeReason, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[id]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	next := cloneToken(t)
	next.RevokedAt = &at
	next.RevokedReason = reason
	r.s.saveToken(ctx, next)
	return true, nil
}

func (r tokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason store.RevokeReason, at time.Time, keep ...uuid.UUID) ([]store.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []store.RefreshToken
	for _, t := range r.s.tokens {
		if t.UserID != userID || t.RevokedAt != nil || slices.Contains(keep, t.ID) {
			continue
		}
		next := cloneToken(t)
		next.RevokedAt = &at
		next.RevokedReason = reason
		r.s.saveToken(ctx, next)
		out = append(out, *cloneToken(next))
	}
	return out, nil
}

func (r tokens) ListActiveForUser(_ context.Context, userID uuid.UUID, now time.Time) ([]store.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []store.RefreshToken
	for _, t := range r.s.tokens {
		if t.UserID == userID && t.Live(now) {
			out = append(out, *cloneToken(t))
		}
	}
	slices.SortFunc(out, func(a, b store.RefreshToken) int {
		return b.IssuedAt.Compare(a.IssuedAt)
	})
	return out, nil
}
