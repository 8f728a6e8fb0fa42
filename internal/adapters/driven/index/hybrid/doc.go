// Package hybrid implements the persistent hybrid index: exact vector
// search and bleve keyword search over chunk entries, both filtered by a
// metadata predicate.
//
// On disk an index is a directory holding index.db (SQLite, the durable
// copy of every entry) and keyword.bleve (the full-text index). The
// in-memory snapshot is rebuilt from index.db on open.
package hybrid
