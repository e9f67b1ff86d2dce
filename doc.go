// Package goIdentity provides an authentication and multi-factor identity engine:
// password login with lockout, rotating opaque refresh tokens with reuse detection,
// TOTP MFA with backup codes and email one-time codes, and password recovery.
//
// Engine methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// goIdentity is the public surface. It exposes [Engine], [Builder], [Config], the
// command and result types, and sentinel errors. Every Engine method sends its
// command through a [pipeline.Mediator]: validation, a store transaction for
// writes, timing, and logging, in that order. Flow orchestration, rate limiting
// and audit dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose database handles, Redis clients, or encoding details in its public API.
//   - Perform I/O outside of Engine methods.
//   - Import any sub-package that re-imports goIdentity (no import cycles).
//
// # Performance contract
//
// ValidateAccessToken is the hot path. It verifies the JWT locally and never
// touches the store or the cache, so a revoked refresh token does not shorten
// the life of access tokens already issued.
package goIdentity
