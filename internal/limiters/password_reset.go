package limiters

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/rate"
)

var (
	ErrResetRateLimited = errors.New("reset rate limited")
	ErrResetUnavailable = errors.New("reset limiter unavailable")
)

type PasswordResetConfig struct {
	EnableIPThrottle bool
	MaxRequests      int
	Window           time.Duration
}

// PasswordResetLimiter throttles forgot-password requests per email and,
// optionally, per client IP.
type PasswordResetLimiter struct {
	byEmail *rate.Limiter
	byIP    *rate.Limiter
}

func NewPasswordResetLimiter(c cache.Cache, cfg PasswordResetConfig) *PasswordResetLimiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	l := &PasswordResetLimiter{
		byEmail: rate.New(c, rate.Config{Prefix: "pwr", Limit: cfg.MaxRequests, Window: cfg.Window}),
	}
	if cfg.EnableIPThrottle {
		// An IP may legitimately front several accounts.
		l.byIP = rate.New(c, rate.Config{Prefix: "pwri", Limit: cfg.MaxRequests * 5, Window: cfg.Window})
	}
	return l
}

func (l *PasswordResetLimiter) Allow(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if _, err := l.byEmail.Allow(ctx, strings.ToLower(strings.TrimSpace(email))); err != nil {
		return mapErr(err, ErrResetRateLimited, ErrResetUnavailable)
	}
	if l.byIP != nil && ip != "" {
		if _, err := l.byIP.Allow(ctx, ip); err != nil {
			return mapErr(err, ErrResetRateLimited, ErrResetUnavailable)
		}
	}
	return nil
}
