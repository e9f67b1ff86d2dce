// Package internal holds the engine's private machinery. Nothing here is
// part of the public goIdentity API.
//
// # Sub-packages
//
//   - app: service configuration and the fx module behind identityd
//   - audit: async event dispatch (Recorder + Sink implementations)
//   - flows: command handlers for every Engine operation
//   - httpapi: chi router, JSON envelope and HTTP server
//   - limiters: per-concern throttles (MFA verify, email OTP, reset, registration)
//   - logger: zap construction and request-scoped loggers
//   - metrics: lock-free counters and latency histograms
//   - rate: cache-backed fixed-window counter
//
// # What this package must NOT do
//
//   - Export types that appear in the public goIdentity API.
//   - Be imported by any package outside the goIdentity module.
package internal
