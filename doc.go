// Package authsession is a client-side authentication session manager: it signs
// a user in against a remote authentication service, persists the session across
// restarts, renews the access credential silently, and tears the session down on
// logout.
//
// A [Client] is built with [Builder] and is safe to use from multiple goroutines.
// Call [Client.Restore] once at startup; until it resolves the session is in the
// Loading phase and requests sent through the client wait.
//
// # Architecture boundaries
//
// authsession is the public surface. It exposes [Client], [Builder], [Config],
// the error sentinels and the value types (Snapshot, Result, MetricsSnapshot).
// Session state lives in the session package, navigation policy in guard, and
// flow orchestration and audit dispatch under internal/.
//
// # What this package must NOT do
//
//   - Log, audit or otherwise emit credential values.
//   - Renew a request's credential more than once.
//   - Attach credentials to requests for hosts other than Remote.BaseURL.
//   - Import any sub-package that re-imports authsession (no import cycles).
//
// # Request contract
//
// [Client.Send] returns a tagged [Result]. A 401 on a request that carried the
// session's access credential triggers one silent renewal, shared with any
// concurrent request that hit the same 401, and one replay. A failed renewal
// signs the session out.
package authsession
