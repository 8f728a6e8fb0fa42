package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/strata/internal/core/domain"
)

func hits(ids ...string) []domain.SearchHit {
	out := make([]domain.SearchHit, len(ids))
	for i, id := range ids {
		out[i] = domain.SearchHit{Entry: domain.IndexEntry{ChunkID: id, Text: "chunk " + id}}
	}
	return out
}

func hitIDs(hs []domain.SearchHit) []string {
	ids := make([]string, len(hs))
	for i, h := range hs {
		ids[i] = h.Entry.ChunkID
	}
	return ids
}

func TestAllocateSlots(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		budget  int
		want    []int
	}{
		{"proportional", []float64{1, 0.8}, 5, []int{3, 2}},
		{"even split tie to first", []float64{0.5, 0.5, 0.5}, 10, []int{4, 3, 3}},
		{"zero weights", []float64{0, 0}, 3, []int{2, 1}},
		{"zero budget", []float64{1}, 0, []int{0}},
		{"negative weight", []float64{1, -1}, 4, []int{4, 0}},
		{"none", nil, 4, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := allocateSlots(tt.weights, tt.budget)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFuseRanked(t *testing.T) {
	fused := fuseRanked(10, hits("a", "b", "c"), hits("c", "a"))
	assert.Equal(t, []string{"a", "c", "b"}, hitIDs(fused))
	assert.InDelta(t, 1.0/61+1.0/62, fused[0].Score, 1e-12)

	assert.Equal(t, []string{"a", "c"}, hitIDs(fuseRanked(2, hits("a", "b", "c"), hits("c", "a"))))
	assert.Empty(t, fuseRanked(5))
}

func TestMergeContext_DedupeAndBackfill(t *testing.T) {
	retrieved := []domain.AgentRetrieval{
		{AgentID: "x", Hits: hits("a", "b", "c")},
		{AgentID: "y", Hits: hits("a", "d")},
	}
	items := mergeContext(retrieved, map[string]float64{"x": 0.5, "y": 0.5}, 4, 0)

	require.Len(t, items, 4)
	var got []string
	for _, it := range items {
		got = append(got, it.AgentID+":"+it.Hit.Entry.ChunkID)
	}
	assert.Equal(t, []string{"x:a", "y:d", "x:b", "x:c"}, got)
}

func TestMergeContext_SkipsFailedAgents(t *testing.T) {
	retrieved := []domain.AgentRetrieval{
		{AgentID: "x", Err: errors.New("offline"), Hits: hits("a")},
		{AgentID: "y"},
		{AgentID: "z", Hits: hits("b", "c")},
	}
	items := mergeContext(retrieved, map[string]float64{"x": 1, "y": 1, "z": 0.1}, 5, 0)
	require.Len(t, items, 2)
	assert.Equal(t, "z", items[0].AgentID)

	assert.Nil(t, mergeContext(retrieved, nil, 0, 0))
}

func TestMergeContext_TokenBudgetStops(t *testing.T) {
	retrieved := []domain.AgentRetrieval{{AgentID: "x", Hits: hits("a", "b", "c")}}
	// "chunk a" estimates to 2 tokens.
	items := mergeContext(retrieved, map[string]float64{"x": 1}, 10, 5)
	assert.Len(t, items, 2)
}

func TestRenderContext(t *testing.T) {
	items := []domain.ContextItem{
		{Hit: domain.SearchHit{Entry: domain.IndexEntry{
			ChunkID: "a", Text: " porosity 0.21 \n",
			Metadata: domain.ChunkMetadata{Title: "Well A", Modality: domain.BlockTable, PageRange: domain.PageRange{Start: 2, End: 3}},
		}}},
		{Hit: domain.SearchHit{Entry: domain.IndexEntry{
			ChunkID: "b", Text: "GR curve",
			Metadata: domain.ChunkMetadata{Title: "Well A", Modality: domain.BlockImage, PageRange: domain.PageRange{Start: 4, End: 4}},
		}}},
	}
	got := renderContext(items, map[string]int{"a": 3, "b": 7})
	assert.Equal(t, "[3] Well A (pages 3-4, table)\nporosity 0.21\n\n[7] Well A (page 5, image)\nGR curve", got)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 2, estimateTokens("abcde"))
}
