// Package store provides a SQLite-backed cache of compiled SQL.
//
// Compilation is deterministic for a given dialect, SRID and canonical
// source text, so the statements can be stored under a content-addressed
// key and reused by later runs of the CLI.
//
// # Keys
//
// Key hashes the dialect, SRID and source with SHA-256 under a domain
// prefix, separated by NUL bytes so no two distinct triples share a key.
//
// # Ordering
//
// Entries carry a logical seq assigned at insert time. List orders by
// seq ASC, key COLLATE BINARY ASC so output is identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Compilations that used a host escape function are never cached: their
// output depends on the host.
package store
