// Package flows contains pure-function orchestrators for the client's
// session operations.
//
// Each flow function (RunAuthenticate, RunRenewal, RunRequest) accepts a typed
// dependency struct and returns a tagged result without side-effects beyond
// those dependencies. This keeps the Client type thin and lets every branch be
// tested with plain function fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, the remote service and
// the transport. They do NOT own any of these resources; ownership stays with
// the Client.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authsession (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
