// Package storage provides the durable key/value layer that lets an authenticated
// session survive process restarts.
//
// # Backends
//
//   - [MemoryStore]: process-local map, for tests and ephemeral clients.
//   - [FileStore]: one JSON document per store, replaced atomically on every write.
//   - [SQLiteStore]: a namespaced kv table in a SQLite database (pure Go driver).
//   - [RedisStore]: prefixed keys in Redis, group writes in a MULTI/EXEC pipeline.
//
// Backends that can write several keys atomically implement [Batcher]; the
// [SetMany] and [RemoveMany] helpers fall back to ordered single-key writes otherwise.
//
// # Architecture boundaries
//
// This package stores opaque strings. It does NOT know which keys hold credentials
// or what a partially written session means. The session store does.
//
// # What this package must NOT do
//
//   - Import authsession, session, or guard (no upward imports).
//   - Swallow write failures; every error reaches the caller.
//   - Log values (they are credentials).
package storage
