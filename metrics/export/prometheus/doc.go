// Package prometheus exposes the engine counters as a prometheus.Collector.
//
// [NewCollector] reads [goIdentity.Engine.MetricsSnapshot] on each scrape.
// Counter names are prefixed identity_*_total; the single histogram is
// identity_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register on the global Prometheus registry. Callers register the
//     Collector where they serve /metrics.
//   - Mutate engine state.
package prometheus
