package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/strata/internal/core/domain"
)

func sampleDocuments() *mockDocumentService {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &mockDocumentService{
		docs: []domain.Document{
			{ID: "doc-1", Name: "well-7.pdf", MIMEType: "application/pdf", SizeBytes: 2048, BlockCount: 12, ChunkCount: 9, CreatedAt: at, UpdatedAt: at},
			{ID: "doc-2", Name: "gr.las", ChunkCount: 3, CreatedAt: at, UpdatedAt: at},
		},
		summary: &domain.IngestionSummary{
			DocumentID: "doc-1", Succeeded: 10, Downgraded: 1, Failed: 1, ChunksIndexed: 9, VisionCalls: 2,
			Blocks: []domain.BlockOutcome{
				{PageIndex: 0, Sequence: 0, Type: domain.BlockText, Status: domain.BlockSucceeded},
				{PageIndex: 4, Sequence: 2, Type: domain.BlockImage, Status: domain.BlockFailed, Error: "vision unavailable"},
			},
		},
	}
}

func TestDocumentListCmd(t *testing.T) {
	out, err := run(t, &Services{Document: sampleDocuments()}, "document", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "2 documents")
	assert.Contains(t, out, "well-7.pdf")
	assert.Contains(t, out, "2026-03-14 09:30:00")

	out, err = run(t, &Services{Document: &mockDocumentService{}}, "doc", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents ingested.")
}

func TestDocumentGetCmd(t *testing.T) {
	out, err := run(t, &Services{Document: sampleDocuments()}, "document", "get", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Chunks:    9")
	assert.Contains(t, out, "10 succeeded, 1 downgraded, 1 failed")
	assert.Contains(t, out, "page 5 block 2 (image): failed vision unavailable")
	assert.NotContains(t, out, "page 1 block 0")

	_, err = run(t, &Services{Document: sampleDocuments()}, "document", "get", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentGetCmd_JSON(t *testing.T) {
	out, err := run(t, &Services{Document: sampleDocuments()}, "document", "get", "--json", "doc-2")
	require.NoError(t, err)
	assert.Contains(t, out, `"Name": "gr.las"`)
}

func TestDocumentDeleteCmd(t *testing.T) {
	docs := sampleDocuments()
	out, err := run(t, &Services{Document: docs}, "document", "delete", "doc-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-2"}, docs.deleted)
	assert.Contains(t, out, "Deleted doc-2")

	docs.err = domain.ErrNotFound
	_, err = run(t, &Services{Document: docs}, "document", "delete", "doc-9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
