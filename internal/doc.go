// Package internal contains helpers that are intentionally private to
// authsession, currently opaque token generation for the in-process fake
// authentication service.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - authtest: httptest fake of the remote authentication service
//   - flows: pure-function flow orchestrators for every Client operation
//   - metrics: lock-free counters and latency histograms
//
// # What this package must NOT do
//
//   - Export types that appear in the public authsession API.
//   - Be imported by any package outside the authsession module.
package internal
