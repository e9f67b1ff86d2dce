package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/cache"
	"github.com/MrEthical07/goIdentity/internal/rate"
)

const (
	defaultMFAVerifyAttempts = 5
	defaultMFAVerifyWindow   = 5 * time.Minute
)

var (
	ErrMFAVerifyLimited     = errors.New("mfa verification attempts exceeded")
	ErrMFAVerifyUnavailable = errors.New("mfa verification limiter unavailable")
)

// MFAVerifyConfig sets the shared attempt budget. Zero fields fall back to
// 5 attempts per 5 minutes.
type MFAVerifyConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// MFAVerifyLimiter caps verification attempts per user. Every attempt counts,
// successful or not, so the budget cannot be probed; a success resets it.
type MFAVerifyLimiter struct {
	limiter *rate.Limiter
}

func NewMFAVerifyLimiter(c cache.Cache, cfg MFAVerifyConfig) *MFAVerifyLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMFAVerifyAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultMFAVerifyWindow
	}
	return &MFAVerifyLimiter{
		limiter: rate.New(c, rate.Config{Prefix: "mfv", Limit: cfg.MaxAttempts, Window: cfg.Window}),
	}
}

// Attempt records one verification attempt for userID. It must be called
// before any code comparison.
func (l *MFAVerifyLimiter) Attempt(ctx context.Context, userID string) error {
	if l == nil || userID == "" {
		return nil
	}
	_, err := l.limiter.Allow(ctx, userID)
	return mapErr(err, ErrMFAVerifyLimited, ErrMFAVerifyUnavailable)
}

func (l *MFAVerifyLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil || userID == "" {
		return nil
	}
	return mapErr(l.limiter.Reset(ctx, userID), ErrMFAVerifyLimited, ErrMFAVerifyUnavailable)
}

func mapErr(err, limited, unavailable error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return limited
	default:
		return fmt.Errorf("%w: %v", unavailable, err)
	}
}
