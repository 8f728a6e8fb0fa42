package cli

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/strata/internal/core/domain"
)

func logReport() *domain.ExtractionReport {
	table := domain.ContentBlock{ID: "b0", Type: domain.BlockTable, PageIndex: 0}
	scan := domain.ContentBlock{ID: "b1", Type: domain.BlockImage, PageIndex: 1, Sequence: 1}
	return &domain.ExtractionReport{
		Summary: domain.IngestionSummary{
			Title: "Well A-1", MIMEType: "application/pdf", Succeeded: 1, Downgraded: 1, VisionCalls: 2,
			Blocks: []domain.BlockOutcome{
				{BlockID: "b0", Type: domain.BlockTable, Status: domain.BlockSucceeded, Decision: domain.ExtractionDecision{
					Path: domain.PathTextOnly, Confidence: 1, Rationale: []domain.RationaleTag{domain.RationaleTableParsed},
				}},
				{BlockID: "b1", PageIndex: 1, Sequence: 1, Type: domain.BlockImage, Status: domain.BlockDowngraded,
					Error: "vision timeout", Decision: domain.ExtractionDecision{
						Path: domain.PathVision, Confidence: 0.4, Rationale: []domain.RationaleTag{domain.RationaleImageLowConf},
					}},
			},
		},
		Blocks: []domain.ExtractedBlock{
			{Block: table, Text: "depth\tgr\n1500\t85", Path: domain.PathTextOnly},
			{Block: scan, Text: "Gamma ray track", Path: domain.PathTextOnly},
		},
	}
}

func TestExtractCmd(t *testing.T) {
	t.Run("prints decisions and text without indexing", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "a1.pdf", "%PDF")
		ingest := &mockIngestService{report: logReport()}

		out, err := run(t, &Services{Ingest: ingest}, "extract", path)
		require.NoError(t, err)

		assert.Empty(t, ingest.submissions(), "extract never submits an ingestion")
		require.Len(t, ingest.extracted, 1)
		assert.Equal(t, documentIDForPath(path), ingest.extracted[0].DocumentID)
		assert.Nil(t, ingest.extracted[0].ForceVision)

		assert.Contains(t, out, "Title:    Well A-1")
		assert.Contains(t, out, "1 succeeded, 1 downgraded, 0 failed")
		assert.Contains(t, out, "[p.1 #0] table -> text_only (1.00) succeeded ["+string(domain.RationaleTableParsed)+"]")
		assert.Contains(t, out, "[p.2 #1] image -> text_only (0.40) downgraded ["+string(domain.RationaleImageLowConf)+"]")
		assert.Contains(t, out, "error: vision timeout")
		assert.Contains(t, out, "depth gr 1500 85")
	})

	t.Run("json and force vision", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "a1.pdf", "%PDF")
		ingest := &mockIngestService{report: logReport()}

		out, err := run(t, &Services{Ingest: ingest}, "extract", "--json", "--force-vision", path)
		require.NoError(t, err)
		require.NotNil(t, ingest.extracted[0].ForceVision)
		assert.True(t, *ingest.extracted[0].ForceVision)

		var views []extractionView
		require.NoError(t, json.Unmarshal([]byte(out), &views))
		require.Len(t, views, 1)
		require.Len(t, views[0].Blocks, 2)
		assert.Equal(t, "depth\tgr\n1500\t85", views[0].Blocks[0].Text)
		assert.Equal(t, 2, views[0].Blocks[1].Page)
	})

	t.Run("collects per file errors", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "a.xls", "bin")
		ingest := &mockIngestService{extractErr: domain.ErrUnsupportedFormat}

		_, err := run(t, &Services{Ingest: ingest}, "extract", path, "missing.pdf")
		assert.True(t, errors.Is(err, domain.ErrUnsupportedFormat))
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := run(t, &Services{}, "extract", "x.pdf")
		assert.Error(t, err)
	})
}
