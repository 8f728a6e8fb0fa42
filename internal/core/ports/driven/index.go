package driven

import (
	"context"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// HybridIndex stores chunk embeddings and metadata and answers
// vector, keyword and filtered queries over them.
//
// Readers always observe a consistent snapshot: a concurrent write is
// either fully visible or not visible at all.
type HybridIndex interface {
	// Upsert inserts or replaces one entry.
	// Fails with ErrDimensionMismatch when the vector length is wrong.
	Upsert(ctx context.Context, entry domain.IndexEntry) error

	// ReplaceDocument atomically removes every entry of documentID and
	// inserts the given entries in their place.
	ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error

	// Delete removes every entry of documentID and returns how many were removed.
	Delete(ctx context.Context, documentID string) (int, error)

	// Search returns up to topK entries matching the predicate ordered by
	// ascending distance, ties broken by insertion order.
	Search(ctx context.Context, vector []float32, predicate domain.MetadataPredicate, topK int) ([]domain.SearchHit, error)

	// KeywordSearch returns up to limit entries matching text and the predicate,
	// best match first.
	KeywordSearch(ctx context.Context, text string, predicate domain.MetadataPredicate, limit int) ([]domain.SearchHit, error)

	// Get returns the entry for a chunk ID.
	Get(ctx context.Context, chunkID string) (*domain.IndexEntry, error)

	// Count returns the number of entries.
	Count() int

	// Dimensions returns the configured vector length.
	Dimensions() int

	// Metric returns the configured distance metric.
	Metric() domain.DistanceMetric

	// Close releases resources. Later calls fail with ErrIndexUnavailable.
	Close() error
}
