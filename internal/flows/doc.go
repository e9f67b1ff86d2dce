// Package flows contains the command and query handlers behind every Engine
// operation: login, registration, token refresh and revocation, password
// recovery, and the MFA lifecycle.
//
// Each handler is a method on [Service] taking one command struct. The
// commands carry validation tags and are sent through the pipeline mediator
// by the root package, so a handler can assume its input passed validation
// and, for write commands, that ctx carries an open transaction.
//
// # Architecture boundaries
//
// Handlers coordinate the store, token service, hasher, TOTP engine, cache,
// limiters, mailer, audit recorder and metrics. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls (everything lives in store or cache).
//   - Import the root package (to avoid import cycles).
//   - Open or commit transactions; the pipeline does.
package flows
