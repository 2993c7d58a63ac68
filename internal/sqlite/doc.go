// Package sqlite is the relational corpus backend, built on modernc.org/sqlite
// (pure Go, no CGO).
//
// A single database file holds two tables:
//
//   - patents: admitted documents keyed by content token, with the embedding
//     stored as a little-endian float32 BLOB
//   - scores: an append-only audit log with one row per evaluation
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory.
package sqlite
