// Package audit implements async delivery of security-relevant events to the
// audit_log table and other sinks.
//
// # Components
//
//   - [Sink] for event consumers (store, channel, JSON writer, no-op).
//   - [Dispatcher], a buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event], the audit record: action, method, outcome, subject, actor, client and detail.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the flow functions do.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import the root package or internal/flows.
//   - Join the caller's transaction: audit rows survive a rollback.
package audit
