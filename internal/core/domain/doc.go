// Package domain defines the core business entities for Strata.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - ContentBlock: A typed unit of a normalised document (text, table, image)
//   - ExtractionDecision: The routing verdict for a single block
//   - Chunk: An embedded unit ready for indexing
//   - IndexEntry: The persisted form of a chunk inside the hybrid index
//   - AgentProfile: A specialised reasoning agent and its retrieval filter
//   - QueryResult: The outcome of dispatching one query
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
