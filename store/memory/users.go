package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/store"
)

type users struct{ s *Store }

func cloneUser(u *store.User) *store.User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}

// saveUser replaces the stored user and records the previous value for
// rollback. Callers hold s.mu.
func (s *Store) saveUser(ctx context.Context, u *store.User) {
	prev, existed := s.users[u.ID]
	s.users[u.ID] = u
	s.onRollback(ctx, func() {
		if existed {
			s.users[u.ID] = prev
			return
		}
		delete(s.users, u.ID)
		delete(s.emails, normalizeEmail(u.Email))
	})
}

func (r users) Create(ctx context.Context, u *store.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := normalizeEmail(u.Email)
	if _, taken := r.s.emails[key]; taken {
		return store.ErrConflict
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if len(u.Roles) == 0 {
		u.Roles = []string{store.RoleUser}
	}
	r.s.emails[key] = u.ID
	r.s.saveUser(ctx, cloneUser(u))
	return nil
}

func (r users) ByID(_ context.Context, id uuid.UUID) (*store.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r users) ByEmail(_ context.Context, email string) (*store.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.emails[normalizeEmail(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(r.s.users[id]), nil
}

// update applies fn to a copy of the user and stores it.
func (r users) update(ctx context.Context, id uuid.UUID, fn func(u *store.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	next := cloneUser(u)
	fn(next)
	r.s.saveUser(ctx, next)
	return nil
}

func (r users) RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (int, bool, error) {
	var count int
	var locked bool
	err := r.update(ctx, id, func(u *store.User) {
		u.FailedAccessCount++
		count = u.FailedAccessCount
		if threshold > 0 && u.FailedAccessCount >= threshold {
			u.FailedAccessCount = 0
			end := lockUntil
			u.LockoutEnd = &end
			locked = true
		}
		u.UpdatedAt = time.Now().UTC()
	})
	return count, locked, err
}

func (r users) RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time, ip string) error {
	return r.update(ctx, id, func(u *store.User) {
		u.FailedAccessCount = 0
		u.LockoutEnd = nil
		u.LastLoginAt = &at
		u.LastLoginIP = ip
		u.UpdatedAt = at
	})
}

func (r users) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	return r.update(ctx, id, func(u *store.User) {
		u.PasswordHash = hash
		u.FailedAccessCount = 0
		u.LockoutEnd = nil
		u.UpdatedAt = at
	})
}

func (r users) Confirm(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, id, func(u *store.User) {
		u.EmailConfirmed = true
		u.IsActive = true
		u.UpdatedAt = at
	})
}

func (r users) SetTwoFactor(ctx context.Context, id uuid.UUID, enabled bool, at time.Time) error {
	return r.update(ctx, id, func(u *store.User) {
		u.TwoFactorEnabled = enabled
		u.UpdatedAt = at
	})
}
