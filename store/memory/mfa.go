package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/store"
)

type mfa struct{ s *Store }

func (s *Store) saveMfa(ctx context.Context, m *store.MfaSettings) {
	prev, existed := s.mfa[m.UserID]
	s.mfa[m.UserID] = m
	s.onRollback(ctx, func() {
		if existed {
			s.mfa[m.UserID] = prev
			return
		}
		delete(s.mfa, m.UserID)
	})
}

func (r mfa) Settings(_ context.Context, userID uuid.UUID) (*store.MfaSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.mfa[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *m
	return &c, nil
}

func (r mfa) SaveSettings(ctx context.Context, m *store.MfaSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *m
	r.s.saveMfa(ctx, &c)
	return nil
}

func (r mfa) AdvanceStep(ctx context.Context, userID uuid.UUID, step int64, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.mfa[userID]
	if !ok {
		return false, store.ErrNotFound
	}
	if step <= m.LastUsedStep {
		return false, nil
	}
	c := *m
	c.LastUsedStep = step
	c.LastUsedAt = &at
	c.UpdatedAt = at
	r.s.saveMfa(ctx, &c)
	return true, nil
}

type codes struct{ s *Store }

func (s *Store) saveCode(ctx context.Context, c *store.BackupCode) {
	prev, existed := s.codes[c.ID]
	s.codes[c.ID] = c
	s.onRollback(ctx, func() {
		if existed {
			s.codes[c.ID] = prev
			return
		}
		delete(s.codes, c.ID)
	})
}

func (r codes) InsertBatch(ctx context.Context, batch []store.BackupCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range batch {
		c := batch[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.CodeHash = slices.Clone(c.CodeHash)
		r.s.saveCode(ctx, &c)
	}
	return nil
}

func (r codes) InvalidateAll(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, c := range r.s.codes {
		if c.UserID != userID || c.UsedAt != nil || c.InvalidatedAt != nil {
			continue
		}
		next := *c
		next.InvalidatedAt = &at
		r.s.saveCode(ctx, &next)
		n++
	}
	return n, nil
}

func (r codes) Consume(ctx context.Context, userID uuid.UUID, hash []byte, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.codes {
		if c.UserID != userID || c.UsedAt != nil || c.InvalidatedAt != nil || !slices.Equal(c.CodeHash, hash) {
			continue
		}
		next := *c
		next.UsedAt = &at
		r.s.saveCode(ctx, &next)
		return true, nil
	}
	return false, nil
}

func (r codes) Remaining(_ context.Context, userID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, c := range r.s.codes {
		if c.UserID == userID && c.UsedAt == nil && c.InvalidatedAt == nil {
			n++
		}
	}
	return n, nil
}

type otps struct{ s *Store }

func (s *Store) saveOtp(ctx context.Context, o *store.EmailOtp) {
	prev, existed := s.otps[o.ID]
	s.otps[o.ID] = o
	s.onRollback(ctx, func() {
		if existed {
			s.otps[o.ID] = prev
			return
		}
		delete(s.otps, o.ID)
	})
}

func (r otps) Issue(ctx context.Context, o *store.EmailOtp) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, prev := range r.s.otps {
		if prev.UserID != o.UserID || prev.Purpose != o.Purpose || prev.ConsumedAt != nil {
			continue
		}
		next := *prev
		at := o.CreatedAt
		next.ConsumedAt = &at
		r.s.saveOtp(ctx, &next)
	}
	c := *o
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CodeHash = slices.Clone(o.CodeHash)
	r.s.saveOtp(ctx, &c)
	return nil
}

func (r otps) Consume(ctx context.Context, userID uuid.UUID, purpose store.OtpPurpose, hash []byte, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.otps {
		if o.UserID != userID || o.Purpose != purpose || o.ConsumedAt != nil ||
			!o.ExpiresAt.After(now) || !slices.Equal(o.CodeHash, hash) {
			continue
		}
		next := *o
		next.ConsumedAt = &now
		r.s.saveOtp(ctx, &next)
		return true, nil
	}
	return false, nil
}

type auditLog struct{ s *Store }

func (r auditLog) Append(ctx context.Context, e store.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.s.audit = append(r.s.audit, e)
	r.s.onRollback(ctx, func() {
		r.s.audit = slices.DeleteFunc(r.s.audit, func(a store.AuditEntry) bool { return a.ID == e.ID })
	})
	return nil
}
