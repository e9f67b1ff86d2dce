package rate

import "errors"

var (
	// ErrRateLimited is returned when a key has used up its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrCacheUnavailable wraps backend failures so callers can decide
	// whether to fail open or closed.
	ErrCacheUnavailable = errors.New("rate limit cache unavailable")
)
