package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/strata/internal/core/domain"
)

func sampleResult(answer string) *domain.QueryResult {
	return &domain.QueryResult{
		Selected: []domain.AgentSelection{{AgentID: "data_analyst", Confidence: 0.82, Reason: domain.SelectedByClassifier}},
		Context: []domain.ContextItem{{
			AgentID: "data_analyst",
			Hit: domain.SearchHit{Score: 0.91, Entry: domain.IndexEntry{
				ChunkID: "c1",
				Text:    "Porosity   averages\n 18% in the Brent sandstone.",
				Metadata: domain.ChunkMetadata{
					DocumentID: "doc-1", Title: "well-7.pdf", Modality: domain.BlockTable,
					PageRange: domain.PageRange{Start: 2, End: 3},
				},
			}},
		}},
		Answer:       answer,
		FailedAgents: []string{"vision_geologist"},
		Cost: domain.CostRecord{
			EmbeddingCalls: 2, CompletionCalls: 1,
			Tokens:   domain.TokenUsage{InputTokens: 900, OutputTokens: 120},
			Duration: 1500 * time.Millisecond,
		},
	}
}

func TestQueryCmd(t *testing.T) {
	t.Run("passes hint and scope", func(t *testing.T) {
		q := &mockQueryService{result: sampleResult("Average porosity is 18%.")}
		out, err := run(t, &Services{Query: q}, "query", "--agent", "data_analyst", "--doc", "doc-1", "--doc", "doc-2", "what", "porosity?")
		require.NoError(t, err)

		assert.Equal(t, "what porosity?", q.last.Text)
		assert.Equal(t, "data_analyst", q.last.AgentHint)
		assert.Equal(t, []string{"doc-1", "doc-2"}, q.last.DocumentScope)
		assert.Contains(t, out, "Average porosity is 18%.")
		assert.Contains(t, out, "data_analyst (0.82, classifier)")
		assert.Contains(t, out, "Failed: vision_geologist")
		assert.Contains(t, out, "900/120 tokens")
		assert.NotContains(t, out, "Context:")
	})

	t.Run("flags do not leak between runs", func(t *testing.T) {
		q := &mockQueryService{result: sampleResult("ok")}
		_, err := run(t, &Services{Query: q}, "query", "porosity")
		require.NoError(t, err)
		assert.Empty(t, q.last.AgentHint)
		assert.Empty(t, q.last.DocumentScope)
	})

	t.Run("context pages are one-based", func(t *testing.T) {
		q := &mockQueryService{result: sampleResult("ok")}
		out, err := run(t, &Services{Query: q}, "query", "--context", "porosity")
		require.NoError(t, err)
		assert.Contains(t, out, "[1] well-7.pdf p.3-4 table via data_analyst")
		assert.Contains(t, out, "Porosity averages 18% in the Brent sandstone.")
	})

	t.Run("missing answer shows context", func(t *testing.T) {
		q := &mockQueryService{result: sampleResult("")}
		out, err := run(t, &Services{Query: q}, "query", "porosity")
		require.NoError(t, err)
		assert.Contains(t, out, "showing retrieved context")
		assert.Contains(t, out, "Context:")
	})

	t.Run("json output", func(t *testing.T) {
		q := &mockQueryService{result: sampleResult("18%")}
		out, err := run(t, &Services{Query: q}, "query", "--json", "porosity")
		require.NoError(t, err)

		var got domain.QueryResult
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "18%", got.Answer)
	})

	t.Run("errors are wrapped", func(t *testing.T) {
		q := &mockQueryService{err: domain.ErrNoAgentSucceeded}
		_, err := run(t, &Services{Query: q}, "query", "porosity")
		assert.ErrorIs(t, err, domain.ErrNoAgentSucceeded)
	})
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t c", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
	assert.Equal(t, "äö", snippet("äö", 2))
}

func TestAgentsListCmd(t *testing.T) {
	out, err := run(t, &Services{Query: &mockQueryService{}}, "agents", "list")
	require.NoError(t, err)
	for _, p := range domain.DefaultAgentProfiles() {
		assert.Contains(t, out, p.ID)
	}
	assert.Contains(t, out, "(default)")
}

func TestDescribeFilter(t *testing.T) {
	p := domain.MetadataPredicate{
		Modalities:      []domain.BlockType{domain.BlockTable},
		ExtractionPaths: []domain.ExtractionPath{domain.PathVision},
	}
	assert.Equal(t, "table, path=vision", describeFilter(p))
	assert.Equal(t, "custom", describeFilter(domain.MetadataPredicate{Pages: &domain.PageRange{}}))
}
