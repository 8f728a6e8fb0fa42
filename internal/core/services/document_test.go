package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/strata/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/strata/internal/core/domain"
)

func newDocumentFixture(t *testing.T) (*DocumentService, *memory.DocumentStore, *mockIndex) {
	t.Helper()
	docStore := memory.NewDocumentStore()
	idx := newMockIndex(4)
	ctx := context.Background()

	require.NoError(t, docStore.SaveDocument(ctx, &domain.Document{ID: "doc-1", Name: "well-a1.pdf", ChunkCount: 2}))
	require.NoError(t, docStore.SaveSummary(ctx, &domain.IngestionSummary{DocumentID: "doc-1", ChunksIndexed: 2}))
	require.NoError(t, idx.ReplaceDocument(ctx, "doc-1", []domain.IndexEntry{
		{ChunkID: "doc-1-c0", Text: "a", Embedding: []float32{1, 0, 0, 0}, Metadata: domain.ChunkMetadata{DocumentID: "doc-1"}},
		{ChunkID: "doc-1-c1", Text: "b", Embedding: []float32{0, 1, 0, 0}, Metadata: domain.ChunkMetadata{DocumentID: "doc-1"}},
	}))
	return NewDocumentService(docStore, idx), docStore, idx
}

func TestDocumentService_ListGetSummary(t *testing.T) {
	svc, _, _ := newDocumentFixture(t)
	ctx := context.Background()

	docs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "well-a1.pdf", docs[0].Name)

	doc, err := svc.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ChunkCount)

	summary, err := svc.Summary(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ChunksIndexed)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService_Delete(t *testing.T) {
	svc, docStore, idx := newDocumentFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "doc-1"))
	assert.Zero(t, idx.Count())
	_, err := docStore.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, "doc-1"), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, ""), domain.ErrInvalidInput)
}

func TestDocumentService_DeleteOrphanedEntries(t *testing.T) {
	svc, docStore, idx := newDocumentFixture(t)
	ctx := context.Background()
	require.NoError(t, docStore.DeleteDocument(ctx, "doc-1"))

	require.NoError(t, svc.Delete(ctx, "doc-1"))
	assert.Zero(t, idx.Count())
}

func TestDocumentService_DeleteIndexFailureKeepsDocument(t *testing.T) {
	svc, docStore, idx := newDocumentFixture(t)
	ctx := context.Background()
	idx.replaceErr = errors.New("disk full")

	err := svc.Delete(ctx, "doc-1")
	require.Error(t, err)
	_, err = docStore.GetDocument(ctx, "doc-1")
	assert.NoError(t, err)
}

func TestDocumentService_NilStore(t *testing.T) {
	svc := NewDocumentService(nil, nil)
	ctx := context.Background()

	_, err := svc.List(ctx)
	assert.ErrorIs(t, err, domain.ErrNotImplemented)
	_, err = svc.Summary(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotImplemented)
	assert.ErrorIs(t, svc.Delete(ctx, "doc-1"), domain.ErrNotFound)
}
