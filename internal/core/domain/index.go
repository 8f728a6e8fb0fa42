package domain

import (
	"slices"
	"strings"
	"time"
)

// DistanceMetric selects how vector distance is measured.
type DistanceMetric string

// Supported distance metrics.
const (
	// MetricCosine is 1 - cosine similarity.
	MetricCosine DistanceMetric = "cosine"

	// MetricL2 is Euclidean distance.
	MetricL2 DistanceMetric = "l2"

	// MetricDot is the negated inner product.
	MetricDot DistanceMetric = "dot"
)

// IsValid returns true if the metric is recognised.
func (m DistanceMetric) IsValid() bool {
	switch m {
	case MetricCosine, MetricL2, MetricDot:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (m DistanceMetric) String() string {
	return string(m)
}

// IndexEntry is the persisted form of a Chunk inside the hybrid index.
// The index owns its copy of the embedding and metadata.
type IndexEntry struct {
	// ChunkID is the unique key of the entry.
	ChunkID string

	// BlockIDs lists the contributing blocks.
	BlockIDs []string

	// Text is the chunk content.
	Text string

	// Position is the chunk's ordinal within its document.
	Position int

	// Embedding is the stored vector.
	Embedding []float32

	// Metadata holds provenance for filtering.
	Metadata ChunkMetadata

	// Seq is the insertion sequence, used to break distance ties.
	Seq int64

	// IndexedAt is when the entry was first written.
	IndexedAt time.Time
}

// NewIndexEntry copies a chunk into an index entry.
func NewIndexEntry(c Chunk) IndexEntry {
	return IndexEntry{
		ChunkID:   c.ID,
		BlockIDs:  slices.Clone(c.BlockIDs),
		Text:      c.Text,
		Position:  c.Position,
		Embedding: slices.Clone(c.Embedding),
		Metadata:  c.Metadata,
	}
}

// DocumentID returns the owning document of the entry.
func (e IndexEntry) DocumentID() string {
	return e.Metadata.DocumentID
}

// Chunk converts the entry back into a chunk.
func (e IndexEntry) Chunk() Chunk {
	return Chunk{
		ID:        e.ChunkID,
		BlockIDs:  slices.Clone(e.BlockIDs),
		Text:      e.Text,
		Position:  e.Position,
		Embedding: slices.Clone(e.Embedding),
		Metadata:  e.Metadata,
	}
}

// SearchHit is one ranked result from the hybrid index.
type SearchHit struct {
	// Entry is the matched index entry.
	Entry IndexEntry

	// Distance is the metric distance to the query (lower is closer).
	// Keyword hits carry zero.
	Distance float64

	// Score is a higher-is-better relevance score.
	Score float64
}

// MetadataPredicate filters index entries.
// Fields are combined with AND; values within a list are combined with OR.
// The zero value matches every entry.
type MetadataPredicate struct {
	// DocumentIDs restricts to the listed documents.
	DocumentIDs []string

	// Modalities restricts to the listed block types.
	Modalities []BlockType

	// ExtractionPaths restricts to the listed extraction routes.
	ExtractionPaths []ExtractionPath

	// Pages keeps entries whose page range overlaps this range.
	Pages *PageRange

	// Keywords must all appear in the entry text (case-insensitive).
	Keywords []string

	// unsatisfiable is set when And produced a contradiction.
	unsatisfiable bool
}

// IsEmpty reports whether the predicate matches every entry.
func (p MetadataPredicate) IsEmpty() bool {
	return !p.unsatisfiable &&
		len(p.DocumentIDs) == 0 &&
		len(p.Modalities) == 0 &&
		len(p.ExtractionPaths) == 0 &&
		p.Pages == nil &&
		len(p.Keywords) == 0
}

// Unsatisfiable reports whether the predicate can match nothing.
func (p MetadataPredicate) Unsatisfiable() bool {
	return p.unsatisfiable
}

// Matches evaluates the predicate against an entry.
func (p MetadataPredicate) Matches(e *IndexEntry) bool {
	if p.unsatisfiable || e == nil {
		return false
	}
	if len(p.DocumentIDs) > 0 && !slices.Contains(p.DocumentIDs, e.Metadata.DocumentID) {
		return false
	}
	if len(p.Modalities) > 0 && !slices.Contains(p.Modalities, e.Metadata.Modality) {
		return false
	}
	if len(p.ExtractionPaths) > 0 && !slices.Contains(p.ExtractionPaths, e.Metadata.ExtractionPath) {
		return false
	}
	if p.Pages != nil && !p.Pages.Overlaps(e.Metadata.PageRange) {
		return false
	}
	if len(p.Keywords) > 0 {
		text := strings.ToLower(e.Text)
		for _, kw := range p.Keywords {
			if !strings.Contains(text, strings.ToLower(kw)) {
				return false
			}
		}
	}
	return true
}

// And returns a predicate matching entries that satisfy both p and o.
func (p MetadataPredicate) And(o MetadataPredicate) MetadataPredicate {
	out := MetadataPredicate{unsatisfiable: p.unsatisfiable || o.unsatisfiable}

	out.DocumentIDs, out.unsatisfiable = intersect(p.DocumentIDs, o.DocumentIDs, out.unsatisfiable)
	out.Modalities, out.unsatisfiable = intersect(p.Modalities, o.Modalities, out.unsatisfiable)
	out.ExtractionPaths, out.unsatisfiable = intersect(p.ExtractionPaths, o.ExtractionPaths, out.unsatisfiable)

	switch {
	case p.Pages == nil && o.Pages != nil:
		r := *o.Pages
		out.Pages = &r
	case p.Pages != nil && o.Pages == nil:
		r := *p.Pages
		out.Pages = &r
	case p.Pages != nil && o.Pages != nil:
		r := PageRange{Start: max(p.Pages.Start, o.Pages.Start), End: min(p.Pages.End, o.Pages.End)}
		if r.Start > r.End {
			out.unsatisfiable = true
		}
		out.Pages = &r
	}

	out.Keywords = append(slices.Clone(p.Keywords), o.Keywords...)
	return out
}

// intersect combines two OR-lists under AND. An empty list means "any".
func intersect[T comparable](a, b []T, unsat bool) ([]T, bool) {
	switch {
	case len(a) == 0:
		return slices.Clone(b), unsat
	case len(b) == 0:
		return slices.Clone(a), unsat
	}
	var out []T
	for _, v := range a {
		if slices.Contains(b, v) && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, true
	}
	return out, unsat
}
