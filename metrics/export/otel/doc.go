// Package otel binds authsession client metrics to OpenTelemetry instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter. Latency
// histograms become a "_bucket" gauge with one data point per "le" bound plus
// a "_count" gauge, so the series line up with the Prometheus exporter. When
// the source is a *authsession.Client a session_authenticated gauge reports
// the current phase. One callback reads the client on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate client state.
package otel
