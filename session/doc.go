// Package session owns the client's authentication session: the phase state
// machine (Loading → Authenticated | Anonymous), its durable copy in a
// [storage.Store], and the publication of immutable [Snapshot] values to
// subscribers.
//
// # State machine
//
// A [Store] starts in [PhaseLoading]. [Store.Restore] resolves it exactly once to
// [PhaseAuthenticated] or [PhaseAnonymous]; Loading is never re-entered. After
// that, [Store.Establish] and [Store.Clear] move between the two resolved phases.
//
// # Invariants
//
//   - Phase is Authenticated if and only if a user and an access credential are held.
//   - Transitions are serialized; each publishes one complete snapshot, so no
//     observer ever sees old and new fields mixed.
//   - Persistence failures degrade durability (Snapshot.Durable) but never the
//     in-memory session of the current run.
//
// # Architecture boundaries
//
// This package persists and publishes. It does NOT talk to the remote
// authentication service except through the injected [Revoker], and it does NOT
// decide navigation.
//
// # What this package must NOT do
//
//   - Import authsession, guard, or any HTTP transport.
//   - Panic on storage errors or corrupt records.
//   - Log credential values.
package session
