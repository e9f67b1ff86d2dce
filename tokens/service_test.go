package tokens

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/store/memory"
)

type fixture struct {
	svc    *Service
	store  *memory.Store
	cache  *cache.Memory
	user   *store.User
	reuses atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	access, err := jwt.NewManager(jwt.Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "identity-test",
		Audience:      "identity-api",
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	f := &fixture{store: memory.New(), cache: cache.NewMemory("")}
	f.svc, err = NewService(access, f.store, f.cache, Config{RefreshTTL: 7 * 24 * time.Hour}, Hooks{
		OnReuse: func(context.Context, uuid.UUID, int) { f.reuses.Add(1) },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.user = &store.User{Email: "alice@example.com", IsActive: true, EmailConfirmed: true, Roles: []string{store.RoleUser}}
	if err := f.store.Users().Create(context.Background(), f.user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return f
}

func TestIssueTokenPairStartsChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.svc.IssueTokenPair(ctx, f.user, Meta{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}
	claims, err := f.svc.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.Subject != f.user.ID.String() || !claims.HasRole(store.RoleUser) {
		t.Fatalf("unexpected claims %+v", claims)
	}

	id, ok := TokenID(pair.RefreshToken)
	if !ok {
		t.Fatal("refresh token must parse")
	}
	row, _ := f.store.RefreshTokens().ByID(ctx, id)
	if row.FamilyID != row.ID || row.IP != "10.0.0.1" {
		t.Fatalf("expected a new family rooted at the token, got %+v", row)
	}
	if string(row.TokenHash) == pair.RefreshToken {
		t.Fatal("plaintext refresh token must never be stored")
	}
}

func TestRotationInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _ := f.svc.IssueTokenPair(ctx, f.user, Meta{})
	second, err := f.svc.RefreshTokens(ctx, first.RefreshToken, Meta{})
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	firstID, _ := TokenID(first.RefreshToken)
	secondID, _ := TokenID(second.RefreshToken)
	old, _ := f.store.RefreshTokens().ByID(ctx, firstID)
	if !old.Rotated() || old.ReplacedBy == nil || *old.ReplacedBy != secondID {
		t.Fatalf("expected first token rotated into second, got %+v", old)
	}
	succ, _ := f.store.RefreshTokens().ByID(ctx, secondID)
	if succ.FamilyID != old.FamilyID {
		t.Fatal("successor must inherit the family id")
	}

	// Replaying the rotated token revokes the whole chain.
	if _, err := f.svc.RefreshTokens(ctx, first.RefreshToken, Meta{}); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("expected ErrTokenReuseDetected, got %v", err)
	}
	if f.reuses.Load() != 1 {
		t.Fatalf("expected reuse hook once, got %d", f.reuses.Load())
	}
	if _, err := f.svc.RefreshTokens(ctx, second.RefreshToken, Meta{}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("successor must be dead after reuse, got %v", err)
	}
	succ, _ = f.store.RefreshTokens().ByID(ctx, secondID)
	if succ.RevokedReason != store.RevokeReuse {
		t.Fatalf("expected reason reuse, got %q", succ.RevokedReason)
	}
}

func TestReuseRevocationSurvivesRollback(t *testing.T) {
	f := newFixture(t)
	base := context.Background()

	first, _ := f.svc.IssueTokenPair(base, f.user, Meta{})
	second, _ := f.svc.RefreshTokens(base, first.RefreshToken, Meta{})

	ctx, tx, _ := f.store.Begin(base)
	_, err := f.svc.RefreshTokens(ctx, first.RefreshToken, Meta{})
	if !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("expected reuse, got %v", err)
	}
	_ = tx.Rollback(base)

	secondID, _ := TokenID(second.RefreshToken)
	row, _ := f.store.RefreshTokens().ByID(base, secondID)
	if row.RevokedAt == nil {
		t.Fatal("chain revocation must persist after the request rolls back")
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, _ := f.svc.IssueTokenPair(ctx, f.user, Meta{})

	var ok, reused atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RefreshTokens(ctx, pair.RefreshToken, Meta{})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrTokenReuseDetected):
				reused.Add(1)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 {
		t.Fatalf("expected exactly one successful redemption, got %d", ok.Load())
	}
	if reused.Load() != 9 {
		t.Fatalf("expected the losers to trip reuse detection, got %d", reused.Load())
	}
}

func TestRefreshRejectsGarbageAndExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.RefreshTokens(ctx, "not-a-token", Meta{}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	pair, _ := f.svc.IssueTokenPair(ctx, f.user, Meta{})
	f.svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	if _, err := f.svc.RefreshTokens(ctx, pair.RefreshToken, Meta{}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired token to be invalid, got %v", err)
	}
}

func TestRevokeTokenWritesDenylist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, _ := f.svc.IssueTokenPair(ctx, f.user, Meta{})

	if _, err := f.svc.RevokeToken(ctx, uuid.New(), pair.RefreshToken, store.RevokeLogout); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("other users must not revoke the token, got %v", err)
	}
	revoked, err := f.svc.RevokeToken(ctx, f.user.ID, pair.RefreshToken, store.RevokeLogout)
	if err != nil || !revoked {
		t.Fatalf("RevokeToken: revoked=%v err=%v", revoked, err)
	}
	revoked, err = f.svc.RevokeToken(ctx, f.user.ID, pair.RefreshToken, store.RevokeLogout)
	if err != nil || revoked {
		t.Fatalf("second RevokeToken must report nothing revoked: revoked=%v err=%v", revoked, err)
	}
	id, _ := TokenID(pair.RefreshToken)
	if ok, _ := f.cache.Exists(ctx, denylistPrefix+id.String()); !ok {
		t.Fatal("expected denylist marker")
	}
	if _, err := f.svc.RefreshTokens(ctx, pair.RefreshToken, Meta{}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("revoked token must be rejected, got %v", err)
	}
}

func TestRevokeAllKeepsListed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.svc.IssueTokenPair(ctx, f.user, Meta{})
	b, _ := f.svc.IssueTokenPair(ctx, f.user, Meta{})
	keep, _ := TokenID(a.RefreshToken)

	n, err := f.svc.RevokeAll(ctx, f.user.ID, store.RevokePasswordChange, keep)
	if err != nil || n != 1 {
		t.Fatalf("expected one revocation, got %d %v", n, err)
	}
	if _, err := f.svc.RefreshTokens(ctx, a.RefreshToken, Meta{}); err != nil {
		t.Fatalf("kept session must still refresh: %v", err)
	}
	if _, err := f.svc.RefreshTokens(ctx, b.RefreshToken, Meta{}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("other session must be revoked, got %v", err)
	}
}
