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
	ErrRegistrationLimited     = errors.New("registration rate limited")
	ErrRegistrationUnavailable = errors.New("registration limiter unavailable")
)

type RegistrationConfig struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	MaxAttempts              int
	Cooldown                 time.Duration
}

// RegistrationLimiter throttles sign-ups per email and per client IP.
type RegistrationLimiter struct {
	byEmail *rate.Limiter
	byIP    *rate.Limiter
}

func NewRegistrationLimiter(c cache.Cache, cfg RegistrationConfig) *RegistrationLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Hour
	}
	l := &RegistrationLimiter{}
	budget := rate.Config{Limit: cfg.MaxAttempts, Window: cfg.Cooldown}
	if cfg.EnableIdentifierThrottle {
		budget.Prefix = "reg"
		l.byEmail = rate.New(c, budget)
	}
	if cfg.EnableIPThrottle {
		budget.Prefix = "regi"
		l.byIP = rate.New(c, budget)
	}
	return l
}

func (l *RegistrationLimiter) Allow(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if l.byEmail != nil {
		if _, err := l.byEmail.Allow(ctx, strings.ToLower(strings.TrimSpace(email))); err != nil {
			return mapErr(err, ErrRegistrationLimited, ErrRegistrationUnavailable)
		}
	}
	if l.byIP != nil && ip != "" {
		if _, err := l.byIP.Allow(ctx, ip); err != nil {
			return mapErr(err, ErrRegistrationLimited, ErrRegistrationUnavailable)
		}
	}
	return nil
}
