package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goIdentity/cache"
)

// Config describes one fixed-window budget.
type Config struct {
	// Prefix namespaces the counter keys, e.g. "rl" or "mfv".
	Prefix string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts hits per key in fixed windows.
type Limiter struct {
	cache  cache.Cache
	config Config
}

// New creates a Limiter. It panics on a non-positive limit or window since
// both come from validated configuration.
func New(c cache.Cache, cfg Config) *Limiter {
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		panic(fmt.Sprintf("rate: invalid budget %d per %s", cfg.Limit, cfg.Window))
	}
	return &Limiter{cache: c, config: cfg}
}

// Limit returns the configured budget per window.
func (l *Limiter) Limit() int { return l.config.Limit }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.config.Window }

// Allow records a hit for key and reports whether it fits the budget.
// A denied Decision is returned together with ErrRateLimited.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, ttl, err := l.cache.Incr(ctx, l.key(key), l.config.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	d := Decision{
		Allowed:   count <= int64(l.config.Limit),
		Count:     count,
		Limit:     l.config.Limit,
		Remaining: l.config.Limit - int(count),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = ttl
		if d.RetryAfter <= 0 {
			d.RetryAfter = l.config.Window
		}
		return d, ErrRateLimited
	}
	return d, nil
}

// Exceeded reports whether key is already over budget without counting a hit.
func (l *Limiter) Exceeded(ctx context.Context, key string) (bool, error) {
	raw, err := l.cache.Get(ctx, l.key(key))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, nil
	}
	return count >= int64(l.config.Limit), nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.cache.Delete(ctx, l.key(key)); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(k string) string {
	return l.config.Prefix + ":" + k
}
