package flows

import (
	"context"

	"github.com/MrEthical07/goIdentity/tokens"
)

type clientMetaKey struct{}

// WithClient attaches the caller's IP and user agent to ctx.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientMetaKey{}, tokens.Meta{IP: ip, UserAgent: userAgent})
}

// ClientFrom returns the client metadata attached by WithClient.
func ClientFrom(ctx context.Context) tokens.Meta {
	if ctx == nil {
		return tokens.Meta{}
	}
	m, _ := ctx.Value(clientMetaKey{}).(tokens.Meta)
	return m
}
