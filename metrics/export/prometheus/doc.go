// Package prometheus renders authsession client metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] wraps an [authsession.Client] and exposes an
// [http.Handler]. Counter names are prefixed authsession_*_total and the one
// histogram is authsession_request_latency_seconds. A client source also
// yields authsession_session_authenticated, a 0/1 gauge.
//
// The audit drop counter and the session gauge are rendered even when the
// client was built with metrics disabled.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate client state.
package prometheus
