// Package sqlite provides SQLite-backed persistence for Strata.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It provides:
//
//   - Store: the document registry and ingestion summaries (driven.DocumentStore)
//   - OpenDB: a WAL-mode connection with embedded, versioned migrations,
//     shared with the hybrid index
//   - EncodeVector / DecodeVector: little-endian float32 blob encoding
//
// # Schema
//
// Schemas are managed through versioned migrations embedded at compile time.
// Each migration is a NNN_name.up.sql file; applied versions are recorded in
// the schema_migrations table.
//
// # Data Location
//
// By default, the database is stored at ~/.strata/data/metadata.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
