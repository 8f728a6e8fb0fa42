package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/strata/internal/core/domain"
)

func newTestServer(t *testing.T, ports *Ports) *Server {
	t.Helper()
	if ports.Query == nil {
		ports.Query = &mockQueryService{}
	}
	server, err := NewServer(ports)
	require.NoError(t, err)
	return server
}

func TestServer_handleQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("maps the query result", func(t *testing.T) {
		q := &mockQueryService{result: &domain.QueryResult{
			Answer:   "Porosity averages 0.21.",
			Selected: []domain.AgentSelection{{AgentID: "data_analyst", Confidence: 0.8, Reason: domain.SelectedByClassifier}},
			Context: []domain.ContextItem{{
				AgentID: "data_analyst",
				Hit: domain.SearchHit{
					Score: 0.9,
					Entry: domain.IndexEntry{
						Text: "| depth | porosity |",
						Metadata: domain.ChunkMetadata{
							DocumentID: "doc-1",
							Title:      "Well A-1",
							PageRange:  domain.PageRange{Start: 2, End: 3},
							Modality:   domain.BlockTable,
						},
					},
				},
			}},
			FailedAgents: []string{"vision_geologist"},
			Cost:         domain.CostRecord{Tokens: domain.TokenUsage{InputTokens: 120, OutputTokens: 30}},
		}}
		server := newTestServer(t, &Ports{Query: q})

		_, out, err := server.handleQuery(ctx, nil, QueryInput{
			Question: "average porosity?", Agent: "data_analyst", Documents: []string{"doc-1"},
		})
		require.NoError(t, err)

		assert.Equal(t, domain.Query{Text: "average porosity?", AgentHint: "data_analyst", DocumentScope: []string{"doc-1"}}, q.last)
		assert.Equal(t, "Porosity averages 0.21.", out.Answer)
		require.Len(t, out.Agents, 1)
		assert.Equal(t, "data_analyst", out.Agents[0].ID)
		require.Len(t, out.Context, 1)
		assert.Equal(t, ContextOutput{
			DocumentID: "doc-1", Title: "Well A-1", PageStart: 3, PageEnd: 4,
			Modality: "table", Agent: "data_analyst", Score: 0.9, Text: "| depth | porosity |",
		}, out.Context[0])
		assert.Equal(t, []string{"vision_geologist"}, out.FailedAgents)
		assert.Equal(t, 120, out.InputTokens)
	})

	t.Run("returns error on query failure", func(t *testing.T) {
		server := newTestServer(t, &Ports{Query: &mockQueryService{err: domain.ErrNoAgentSucceeded}})

		_, _, err := server.handleQuery(ctx, nil, QueryInput{Question: "x"})
		assert.ErrorIs(t, err, domain.ErrNoAgentSucceeded)
	})
}

func TestServer_handleIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("reads and ingests the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("Sandstone."), 0600))
		ingest := &mockIngestService{}
		server := newTestServer(t, &Ports{Ingest: ingest})

		_, out, err := server.handleIngest(ctx, nil, IngestInput{Path: path})
		require.NoError(t, err)
		assert.Equal(t, "notes.txt", ingest.input.Name)
		assert.Equal(t, []byte("Sandstone."), ingest.input.Content)
		assert.Equal(t, "doc-new", out.DocumentID)
		assert.Equal(t, 3, out.Succeeded)
		assert.Equal(t, 1, out.Downgraded)
		assert.Equal(t, 4, out.ChunksIndexed)
	})

	t.Run("passes the force vision override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "log.png")
		require.NoError(t, os.WriteFile(path, []byte("png"), 0600))
		ingest := &mockIngestService{}
		server := newTestServer(t, &Ports{Ingest: ingest})

		force := true
		_, _, err := server.handleIngest(ctx, nil, IngestInput{Path: path, ForceVision: &force})
		require.NoError(t, err)
		require.NotNil(t, ingest.input.ForceVision)
		assert.True(t, *ingest.input.ForceVision)

		_, _, err = server.handleIngest(ctx, nil, IngestInput{Path: path})
		require.NoError(t, err)
		assert.Nil(t, ingest.input.ForceVision)
	})

	t.Run("missing file", func(t *testing.T) {
		server := newTestServer(t, &Ports{Ingest: &mockIngestService{}})
		_, _, err := server.handleIngest(ctx, nil, IngestInput{Path: filepath.Join(t.TempDir(), "nope.pdf")})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("not configured", func(t *testing.T) {
		server := newTestServer(t, &Ports{})
		_, _, err := server.handleIngest(ctx, nil, IngestInput{Path: "x"})
		assert.ErrorIs(t, err, errNotConfigured)
	})
}

func TestServer_handleDelete(t *testing.T) {
	ctx := context.Background()
	docs := &mockDocumentService{}
	server := newTestServer(t, &Ports{Document: docs})

	_, out, err := server.handleDelete(ctx, nil, DeleteInput{DocumentID: "doc-1"})
	require.NoError(t, err)
	assert.True(t, out.Deleted)
	assert.Equal(t, "doc-1", docs.deleted)

	docs.err = domain.ErrNotFound
	_, _, err = server.handleDelete(ctx, nil, DeleteInput{DocumentID: "doc-2"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestServer_handleUsage(t *testing.T) {
	usage := &mockUsageService{snap: domain.UsageSnapshot{
		SessionID: "s-1", TextOnlyDecisions: 3, VisionDecisions: 1, VisionAvoided: 2, VisionCalls: 1,
	}}
	server := newTestServer(t, &Ports{Usage: usage})

	_, out, err := server.handleUsage(context.Background(), nil, UsageInput{})
	require.NoError(t, err)
	assert.Equal(t, "s-1", out.SessionID)
	assert.Equal(t, int64(2), out.VisionCallsSaved)
	assert.InDelta(t, 0.75, out.SavingsRatio, 1e-9)
	assert.Zero(t, usage.resets)

	_, _, err = server.handleUsage(context.Background(), nil, UsageInput{Reset: true})
	require.NoError(t, err)
	assert.Equal(t, 1, usage.resets)

	_, _, err = newTestServer(t, &Ports{}).handleUsage(context.Background(), nil, UsageInput{})
	assert.True(t, errors.Is(err, errNotConfigured))
}
