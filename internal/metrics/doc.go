// Package metrics stores the client's counters and latency histograms.
//
// A [Registry] is a fixed array of slots addressed by index. Counter slots are
// padded to a cache line and updated with atomic adds, so concurrent requests
// never contend on a lock. Each histogram slot has [BucketCount] buckets, from
// 5ms up to +Inf. Neither path allocates.
//
// Slot indexes and metric names belong to the root package. Rendering for
// Prometheus and OpenTelemetry lives under metrics/export.
//
// # What this package must NOT do
//
//   - Import authsession or any sibling package.
//   - Keep package-level registries.
package metrics
