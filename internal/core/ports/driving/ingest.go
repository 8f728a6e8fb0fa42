package driving

import (
	"context"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// IngestService turns files into indexed chunks.
type IngestService interface {
	// Ingest processes a file synchronously and returns its summary.
	// Per-block failures are reported in the summary, not as an error.
	Ingest(ctx context.Context, input domain.FileInput) (*domain.IngestionSummary, error)

	// Extract runs normalisation, routing and extraction only. Nothing is
	// embedded or written to the index.
	Extract(ctx context.Context, input domain.FileInput) (*domain.ExtractionReport, error)

	// Submit starts a background ingestion and returns the document ID.
	Submit(ctx context.Context, input domain.FileInput) (string, error)

	// Wait blocks until the background job for documentID finishes and
	// releases the finished job.
	Wait(ctx context.Context, documentID string) (*domain.IngestJob, error)

	// Status returns a snapshot of the background job for documentID.
	Status(documentID string) (*domain.IngestJob, error)

	// Cancel stops a background job. No partial chunk set is left behind.
	Cancel(documentID string) error
}
