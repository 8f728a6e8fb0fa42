package driven

import (
	"context"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// DocumentStore persists the document registry and ingestion summaries.
// Chunk content lives in the HybridIndex.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns all documents, most recently updated first.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// DeleteDocument removes a document and its summary.
	DeleteDocument(ctx context.Context, id string) error

	// SaveSummary stores the latest ingestion summary of a document.
	SaveSummary(ctx context.Context, summary *domain.IngestionSummary) error

	// GetSummary retrieves the latest ingestion summary of a document.
	GetSummary(ctx context.Context, documentID string) (*domain.IngestionSummary, error)
}
