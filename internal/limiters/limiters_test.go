package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goIdentity/cache"
)

func newCache(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewRedis(rdb, ""), mr
}

func TestMFAVerifyLimiterSharedBudget(t *testing.T) {
	c, mr := newCache(t)
	l := NewMFAVerifyLimiter(c, MFAVerifyConfig{})
	ctx := context.Background()

	for i := 0; i < defaultMFAVerifyAttempts; i++ {
		if err := l.Attempt(ctx, "u1"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := l.Attempt(ctx, "u1"); !errors.Is(err, ErrMFAVerifyLimited) {
		t.Fatalf("expected ErrMFAVerifyLimited, got %v", err)
	}
	if err := l.Attempt(ctx, "u2"); err != nil {
		t.Fatalf("other users keep their own budget: %v", err)
	}
	if !mr.Exists("mfv:u1") {
		t.Fatal("expected mfv:u1 counter")
	}

	if err := l.Reset(ctx, "u1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := l.Attempt(ctx, "u1"); err != nil {
		t.Fatalf("expected budget after reset, got %v", err)
	}
}

func TestMFAVerifyLimiterWindowExpires(t *testing.T) {
	c, mr := newCache(t)
	l := NewMFAVerifyLimiter(c, MFAVerifyConfig{MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	_ = l.Attempt(ctx, "u1")
	if err := l.Attempt(ctx, "u1"); !errors.Is(err, ErrMFAVerifyLimited) {
		t.Fatalf("expected limit, got %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if err := l.Attempt(ctx, "u1"); err != nil {
		t.Fatalf("expected new window, got %v", err)
	}
}

func TestEmailOTPLimiterPerPurpose(t *testing.T) {
	c, _ := newCache(t)
	l := NewEmailOTPLimiter(c, EmailOTPConfig{MaxSends: 1, Window: time.Minute})
	ctx := context.Background()

	if err := l.Allow(ctx, "u1", "login"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := l.Allow(ctx, "u1", "login"); !errors.Is(err, ErrEmailOTPLimited) {
		t.Fatalf("expected ErrEmailOTPLimited, got %v", err)
	}
	if err := l.Allow(ctx, "u1", "register"); err != nil {
		t.Fatalf("purposes are counted separately: %v", err)
	}
}

func TestPasswordResetLimiterNormalizesEmail(t *testing.T) {
	c, _ := newCache(t)
	l := NewPasswordResetLimiter(c, PasswordResetConfig{MaxRequests: 1, Window: time.Minute})
	ctx := context.Background()

	if err := l.Allow(ctx, "Alice@Example.com", ""); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Allow(ctx, " alice@example.com ", ""); !errors.Is(err, ErrResetRateLimited) {
		t.Fatalf("expected ErrResetRateLimited, got %v", err)
	}
}

func TestRegistrationLimiterByIP(t *testing.T) {
	c, _ := newCache(t)
	l := NewRegistrationLimiter(c, RegistrationConfig{EnableIPThrottle: true, MaxAttempts: 2, Cooldown: time.Minute})
	ctx := context.Background()

	_ = l.Allow(ctx, "a@example.com", "10.0.0.1")
	_ = l.Allow(ctx, "b@example.com", "10.0.0.1")
	if err := l.Allow(ctx, "c@example.com", "10.0.0.1"); !errors.Is(err, ErrRegistrationLimited) {
		t.Fatalf("expected ErrRegistrationLimited, got %v", err)
	}
}

func TestNilLimitersAllow(t *testing.T) {
	ctx := context.Background()
	var v *MFAVerifyLimiter
	var e *EmailOTPLimiter
	var p *PasswordResetLimiter
	var r *RegistrationLimiter
	if v.Attempt(ctx, "u") != nil || v.Reset(ctx, "u") != nil || e.Allow(ctx, "u", "login") != nil ||
		p.Allow(ctx, "x", "") != nil || r.Allow(ctx, "x", "") != nil {
		t.Fatal("nil limiters must allow")
	}
}

func TestLimiterUnavailable(t *testing.T) {
	c, mr := newCache(t)
	l := NewMFAVerifyLimiter(c, MFAVerifyConfig{})
	mr.Close()
	if err := l.Attempt(context.Background(), "u1"); !errors.Is(err, ErrMFAVerifyUnavailable) {
		t.Fatalf("expected ErrMFAVerifyUnavailable, got %v", err)
	}
}
