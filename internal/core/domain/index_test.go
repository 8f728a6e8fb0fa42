package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(doc string, modality BlockType, path ExtractionPath, pages PageRange, text string) *IndexEntry {
	return &IndexEntry{
		ChunkID: doc + "-chunk",
		Text:    text,
		Metadata: ChunkMetadata{
			DocumentID:     doc,
			Modality:       modality,
			ExtractionPath: path,
			PageRange:      pages,
		},
	}
}

func TestMetadataPredicate_EmptyMatchesAll(t *testing.T) {
	var p MetadataPredicate
	assert.True(t, p.IsEmpty())
	assert.True(t, p.Matches(testEntry("d1", BlockText, PathTextOnly, PageRange{}, "anything")))
	assert.False(t, p.Matches(nil))
}

func TestMetadataPredicate_Matches(t *testing.T) {
	entry := testEntry("well-7", BlockTable, PathVision, PageRange{Start: 3, End: 4}, "Porosity 0.21 at 2450 m")

	tests := []struct {
		name string
		p    MetadataPredicate
		want bool
	}{
		{"document match", MetadataPredicate{DocumentIDs: []string{"x", "well-7"}}, true},
		{"document miss", MetadataPredicate{DocumentIDs: []string{"x"}}, false},
		{"modality match", MetadataPredicate{Modalities: []BlockType{BlockTable}}, true},
		{"modality miss", MetadataPredicate{Modalities: []BlockType{BlockImage}}, false},
		{"path match", MetadataPredicate{ExtractionPaths: []ExtractionPath{PathVision}}, true},
		{"path miss", MetadataPredicate{ExtractionPaths: []ExtractionPath{PathTextOnly}}, false},
		{"page overlap", MetadataPredicate{Pages: &PageRange{Start: 4, End: 9}}, true},
		{"page disjoint", MetadataPredicate{Pages: &PageRange{Start: 5, End: 9}}, false},
		{"keyword case insensitive", MetadataPredicate{Keywords: []string{"POROSITY"}}, true},
		{"all keywords required", MetadataPredicate{Keywords: []string{"porosity", "permeability"}}, false},
		{"combined", MetadataPredicate{DocumentIDs: []string{"well-7"}, Modalities: []BlockType{BlockTable}, Keywords: []string{"2450"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Matches(entry))
		})
	}
}

func TestMetadataPredicate_And(t *testing.T) {
	agent := MetadataPredicate{Modalities: []BlockType{BlockTable, BlockImage}}
	scope := MetadataPredicate{DocumentIDs: []string{"d1"}}

	got := agent.And(scope)
	assert.Equal(t, []string{"d1"}, got.DocumentIDs)
	assert.Equal(t, []BlockType{BlockTable, BlockImage}, got.Modalities)
	assert.False(t, got.Unsatisfiable())

	assert.True(t, got.Matches(testEntry("d1", BlockImage, PathVision, PageRange{}, "")))
	assert.False(t, got.Matches(testEntry("d2", BlockImage, PathVision, PageRange{}, "")))
	assert.False(t, got.Matches(testEntry("d1", BlockText, PathTextOnly, PageRange{}, "")))
}

func TestMetadataPredicate_AndIntersectsLists(t *testing.T) {
	a := MetadataPredicate{Modalities: []BlockType{BlockTable, BlockImage}}
	b := MetadataPredicate{Modalities: []BlockType{BlockImage, BlockText}}

	got := a.And(b)
	assert.Equal(t, []BlockType{BlockImage}, got.Modalities)
}

func TestMetadataPredicate_AndContradiction(t *testing.T) {
	a := MetadataPredicate{Modalities: []BlockType{BlockText}}
	b := MetadataPredicate{Modalities: []BlockType{BlockImage}}

	got := a.And(b)
	assert.True(t, got.Unsatisfiable())
	assert.False(t, got.IsEmpty())
	assert.False(t, got.Matches(testEntry("d1", BlockText, PathTextOnly, PageRange{}, "")))
}

func TestMetadataPredicate_AndPages(t *testing.T) {
	a := MetadataPredicate{Pages: &PageRange{Start: 0, End: 5}}
	b := MetadataPredicate{Pages: &PageRange{Start: 3, End: 10}}

	got := a.And(b)
	require.NotNil(t, got.Pages)
	assert.Equal(t, PageRange{Start: 3, End: 5}, *got.Pages)

	disjoint := a.And(MetadataPredicate{Pages: &PageRange{Start: 6, End: 7}})
	assert.True(t, disjoint.Unsatisfiable())
}

func TestIndexEntry_RoundTripCopies(t *testing.T) {
	chunk := Chunk{
		ID:        "c1",
		BlockIDs:  []string{"b1", "b2"},
		Text:      "shale",
		Embedding: []float32{1, 2, 3},
		Metadata:  ChunkMetadata{DocumentID: "d1"},
	}

	entry := NewIndexEntry(chunk)
	chunk.Embedding[0] = 99
	chunk.BlockIDs[0] = "changed"

	assert.Equal(t, float32(1), entry.Embedding[0])
	assert.Equal(t, "b1", entry.BlockIDs[0])
	assert.Equal(t, "d1", entry.DocumentID())
	assert.Equal(t, "shale", entry.Chunk().Text)
}

func TestPageRange(t *testing.T) {
	r := PageRange{Start: 2, End: 2}
	assert.True(t, r.Contains(2))
	assert.False(t, r.Contains(3))

	r = r.Extend(5).Extend(1)
	assert.Equal(t, PageRange{Start: 1, End: 5}, r)
}
