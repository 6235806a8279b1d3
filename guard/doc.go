// Package guard maps the session phase and the current navigation location to a
// navigation decision, and drives a [Navigator] from session changes.
//
// # Decision table
//
//	Loading        any location        → None
//	Authenticated  entry group         → GoHome
//	Anonymous      protected group     → GoLogin
//	otherwise                          → None
//
// [Decide] evaluates the default grouping; [Policy] allows custom groups.
//
// # Architecture boundaries
//
// Decisions are pure functions of (phase, location). [Runner] is the only
// stateful part: it remembers the decision it issued so that it is not issued
// twice while pending.
//
// # What this package must NOT do
//
//   - Mutate the session.
//   - Perform network I/O.
//   - Navigate while the session is still loading.
package guard
