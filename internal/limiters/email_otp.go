package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/rate"
)

var (
	ErrEmailOTPLimited     = errors.New("email otp sends exceeded")
	ErrEmailOTPUnavailable = errors.New("email otp limiter unavailable")
)

type EmailOTPConfig struct {
	MaxSends int
	Window   time.Duration
}

// EmailOTPLimiter caps how many one-time codes are mailed to a user for a
// given purpose within the window.
type EmailOTPLimiter struct {
	limiter *rate.Limiter
}

func NewEmailOTPLimiter(c cache.Cache, cfg EmailOTPConfig) *EmailOTPLimiter {
	if cfg.MaxSends <= 0 {
		cfg.MaxSends = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Minute
	}
	return &EmailOTPLimiter{
		limiter: rate.New(c, rate.Config{Prefix: "eos", Limit: cfg.MaxSends, Window: cfg.Window}),
	}
}

func (l *EmailOTPLimiter) Allow(ctx context.Context, userID, purpose string) error {
	if l == nil || userID == "" {
		return nil
	}
	_, err := l.limiter.Allow(ctx, purpose+":"+userID)
	return mapErr(err, ErrEmailOTPLimited, ErrEmailOTPUnavailable)
}
