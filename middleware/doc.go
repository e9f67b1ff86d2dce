// Package middleware exposes net/http middleware built on top of
// goIdentity.Engine: bearer authentication, role checks and the per-identity
// request budget.
//
// # Guards
//
//   - [Authenticate] reads the Authorization header and attaches the
//     validated principal, or the validation error, to the request context.
//     It never rejects on its own.
//   - [RequireAuth] rejects requests that carry no valid principal.
//   - [Guard] is Authenticate followed by RequireAuth.
//   - [RequireRole] rejects principals that lack a role.
//   - [RateLimit] spends one unit of the caller's budget per request, keyed
//     by principal subject or client IP.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself. Rejections are handed to an
// [ErrorWriter] so the caller controls the response envelope.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Touch the credential store.
package middleware
