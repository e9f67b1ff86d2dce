// Package cache is the shared, cross-instance key/value store used for rate
// limit counters, refresh-token denylist entries and short-lived MFA login
// challenges.
//
// Redis is the production backend. The go-cache backend is process local and
// only suitable for single-instance development and tests.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache is implemented by every backend. All methods are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores value; ttl 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Take atomically reads and deletes key.
	Take(ctx context.Context, key string) (string, error)
	// Incr increments a fixed-window counter. The window starts at the first
	// increment and the key expires when it ends. It returns the new count and
	// the time left in the window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Ping(ctx context.Context) error
	Close() error
}

func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
