// Package store provides durable storage for case records.
//
// Every backend implements EntityStore: Create, Load, Save and List on whole
// records. The engine serialises access per case through the lock table, so a
// backend only has to make a single Save atomic; it never merges concurrent
// writers.
//
// # Backends
//
//   - SQLStore on SQLite (mattn/go-sqlite3): WAL mode, single writer
//   - SQLStore on PostgreSQL (pgx stdlib driver): payload stored as JSONB
//   - FileStore: one JSON document per case, gzip backups with retention
//   - MemoryStore: deep-copying map for tests and dry runs
//
// Archiving wraps any backend and moves audit entries above a ceiling into an
// archive.Sink before the record is saved.
//
// # Record Encoding
//
// The whole casefile.Record is stored as one JSON document. Status, phase,
// write count and timestamps are duplicated into columns for listing. Loaded
// records are always validated; a stored record that fails validation is
// reported as a persist failure rather than returned.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
