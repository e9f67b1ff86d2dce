// Package memory is an in-process implementation of store.Store.
//
// Transactions keep an undo log: every write made through a context returned
// by Begin records how to restore the previous value, and Rollback replays the
// log in reverse. There is no isolation between concurrent transactions, so
// the backend suits tests and single-node development only.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/store"
)

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*store.User
	emails map[string]uuid.UUID
	tokens map[uuid.UUID]*store.RefreshToken
	mfa    map[uuid.UUID]*store.MfaSettings
	codes  map[uuid.UUID]*store.BackupCode
	otps   map[uuid.UUID]*store.EmailOtp
	audit  []store.AuditEntry
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:  map[uuid.UUID]*store.User{},
		emails: map[string]uuid.UUID{},
		tokens: map[uuid.UUID]*store.RefreshToken{},
		mfa:    map[uuid.UUID]*store.MfaSettings{},
		codes:  map[uuid.UUID]*store.BackupCode{},
		otps:   map[uuid.UUID]*store.EmailOtp{},
	}
}

func (s *Store) Users() store.Users                 { return users{s} }
func (s *Store) RefreshTokens() store.RefreshTokens { return tokens{s} }
func (s *Store) MFA() store.MFA                     { return mfa{s} }
func (s *Store) BackupCodes() store.BackupCodes     { return codes{s} }
func (s *Store) EmailOtps() store.EmailOtps         { return otps{s} }
func (s *Store) Audit() store.AuditLog              { return auditLog{s} }

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// AuditEntries returns a copy of everything appended to the audit log.
func (s *Store) AuditEntries() []store.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audit)
}

type tx struct {
	s    *Store
	undo []func()
	done bool
}

func (s *Store) Begin(ctx context.Context) (context.Context, store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return ctx, nil, err
	}
	t := &tx{s: s}
	return store.WithTx(ctx, t), t, nil
}

func (t *tx) Commit(context.Context) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	t.undo = nil
	return nil
}

func (t *tx) Rollback(context.Context) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.undo = nil
	return nil
}

// onRollback registers fn to run if the transaction carried by ctx rolls
// back. Callers hold s.mu.
func (s *Store) onRollback(ctx context.Context, fn func()) {
	if t, ok := store.TxFrom(ctx).(*tx); ok && t != nil && t.s == s && !t.done {
		t.undo = append(t.undo, fn)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
