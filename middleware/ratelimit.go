package middleware

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/apperr"
	"github.com/MrEthical07/goIdentity/internal/logger"
	"github.com/MrEthical07/goIdentity/internal/rate"
)

// ErrRateLimited is reported when the caller's budget is spent.
var ErrRateLimited = apperr.New(apperr.KindRateLimited, "RATE_LIMITED", "Too many requests. Please try again later.")

// RateLimit spends one unit of budget per request. The key is the
// authenticated subject when Authenticate ran first, otherwise the client
// IP. A failing cache lets the request through.
func RateLimit(l *rate.Limiter, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if p, ok := PrincipalFromContext(r.Context()); ok {
				key = "sub:" + p.UserID.String()
			}

			d, err := l.Allow(r.Context(), key)
			switch {
			case errors.Is(err, rate.ErrRateLimited):
				retry := int(math.Ceil(d.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", "0")
				onError(w, r, ErrRateLimited.With("retryAfterSeconds", retry))
				return
			case err != nil:
				logger.From(r.Context()).Warn("rate limit unavailable, allowing request", logger.Err(err))
			default:
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the address stored by goIdentity.WithClientIP, which the
// router fills from trusted proxy headers.
func clientIP(r *http.Request) string {
	if ip := goIdentity.ClientIP(r.Context()); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
