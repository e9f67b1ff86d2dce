package goIdentity

import (
	"context"

	"github.com/MrEthical07/goIdentity/internal/flows"
)

// WithClientIP attaches the caller's IP address to ctx. It keys the
// per-IP throttles and is recorded on refresh tokens and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return flows.WithClient(ctx, ip, flows.ClientFrom(ctx).UserAgent)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return flows.WithClient(ctx, flows.ClientFrom(ctx).IP, userAgent)
}

// ClientIP returns the address attached by WithClientIP.
func ClientIP(ctx context.Context) string {
	return flows.ClientFrom(ctx).IP
}
