package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/core/ports/driving"
	"github.com/custodia-labs/strata/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService manages ingested documents.
type DocumentService struct {
	docStore driven.DocumentStore
	index    driven.HybridIndex
}

// NewDocumentService creates a new document service.
func NewDocumentService(docStore driven.DocumentStore, index driven.HybridIndex) *DocumentService {
	return &DocumentService{
		docStore: docStore,
		index:    index,
	}
}

// List returns all documents, most recently updated first.
func (s *DocumentService) List(ctx context.Context) ([]domain.Document, error) {
	if s.docStore == nil {
		return nil, domain.ErrNotImplemented
	}
	return s.docStore.ListDocuments(ctx)
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	if s.docStore == nil {
		return nil, domain.ErrNotImplemented
	}
	return s.docStore.GetDocument(ctx, documentID)
}

// Summary returns the latest ingestion summary of a document.
func (s *DocumentService) Summary(ctx context.Context, documentID string) (*domain.IngestionSummary, error) {
	if s.docStore == nil {
		return nil, domain.ErrNotImplemented
	}
	return s.docStore.GetSummary(ctx, documentID)
}

// Delete removes a document's index entries and its registry record.
// Index entries go first so a failure never leaves searchable chunks
// without a document. Returns ErrNotFound when neither knew the document.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}

	removed := 0
	if s.index != nil {
		n, err := s.index.Delete(ctx, documentID)
		if err != nil {
			return fmt.Errorf("delete index entries: %w", err)
		}
		removed = n
	}

	if s.docStore == nil {
		if removed == 0 {
			return domain.ErrNotFound
		}
		return nil
	}
	err := s.docStore.DeleteDocument(ctx, documentID)
	if errors.Is(err, domain.ErrNotFound) && removed > 0 {
		logger.Debug("document %s had %d orphaned entries", documentID, removed)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("deleted document %s (%d entries)", documentID, removed)
	return nil
}
