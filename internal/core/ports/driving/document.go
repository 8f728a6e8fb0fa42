package driving

import (
	"context"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// DocumentService manages ingested documents.
type DocumentService interface {
	// List returns all ingested documents.
	List(ctx context.Context) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// Summary returns the latest ingestion summary of a document.
	Summary(ctx context.Context, documentID string) (*domain.IngestionSummary, error)

	// Delete removes a document and all of its index entries.
	Delete(ctx context.Context, documentID string) error
}
