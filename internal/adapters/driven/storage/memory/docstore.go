package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
// Values are copied in and out so callers cannot mutate stored state.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	summaries map[string]domain.IngestionSummary
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
		summaries: make(map[string]domain.IngestionSummary),
	}
}

// SaveDocument stores or updates a document. CreatedAt is preserved on update.
func (s *DocumentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *doc
	stored.Metadata = maps.Clone(doc.Metadata)
	if prev, ok := s.documents[doc.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	s.documents[doc.ID] = stored
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc.Metadata = maps.Clone(doc.Metadata)
	return &doc, nil
}

// ListDocuments returns all documents, most recently updated first.
func (s *DocumentStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		doc.Metadata = maps.Clone(doc.Metadata)
		result = append(result, doc)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// DeleteDocument removes a document and its summary.
func (s *DocumentStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.documents, id)
	delete(s.summaries, id)
	return nil
}

// SaveSummary stores the latest ingestion summary of a document.
func (s *DocumentStore) SaveSummary(_ context.Context, summary *domain.IngestionSummary) error {
	if summary == nil || summary.DocumentID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *summary
	stored.Blocks = slices.Clone(summary.Blocks)
	s.summaries[summary.DocumentID] = stored
	return nil
}

// GetSummary retrieves the latest ingestion summary of a document.
func (s *DocumentStore) GetSummary(_ context.Context, documentID string) (*domain.IngestionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	summary.Blocks = slices.Clone(summary.Blocks)
	return &summary, nil
}
