// Package metrics provides lock-free counters and a latency histogram for the
// identity engine.
//
// # Design
//
// Counters are stored in cache-line-padded uint64 slots and incremented
// atomically. The access-token validation histogram uses 8 fixed buckets
// (≤5ms … +Inf). Both are allocation-free on the write path.
//
// # Architecture boundaries
//
// This package owns metric storage and snapshot creation. Export to
// Prometheus and OpenTelemetry lives in metrics/export/ and reads Snapshot
// values through the root package aliases.
//
// # What this package must NOT do
//
//   - Perform I/O or network calls.
//   - Import the root package or any sibling package.
//   - Expose global metric registries.
package metrics
