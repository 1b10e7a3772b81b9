// Package storage persists alarm definitions.
//
// Drivers:
//   - file: one JSON array rewritten atomically (tmp + fsync + rename) on every change
//   - sqlite: SQLite database via modernc.org/sqlite
//   - memory: non-durable, for tests and degraded startup
//
// Records are keyed by (chat_id, time). Writing a record at an existing key
// replaces it.
package storage
