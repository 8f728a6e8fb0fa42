package domain

import "time"

// Document is the registry record of an ingested file.
// Its content lives in the hybrid index as chunks.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Name is the original file name.
	Name string

	// MIMEType is the declared or detected content type.
	MIMEType string

	// SizeBytes is the size of the original file.
	SizeBytes int64

	// BlockCount is the number of content blocks the normaliser produced.
	BlockCount int

	// ChunkCount is the number of chunks written to the index.
	ChunkCount int

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]string

	// CreatedAt is when the document was first ingested.
	CreatedAt time.Time

	// UpdatedAt is when the document was last re-ingested.
	UpdatedAt time.Time
}

// PageRange is an inclusive range of zero-based page indices.
type PageRange struct {
	Start int
	End   int
}

// Contains reports whether page lies within the range.
func (r PageRange) Contains(page int) bool {
	return page >= r.Start && page <= r.End
}

// Overlaps reports whether the two ranges share at least one page.
func (r PageRange) Overlaps(o PageRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

// Extend grows the range to include page.
func (r PageRange) Extend(page int) PageRange {
	if page < r.Start {
		r.Start = page
	}
	if page > r.End {
		r.End = page
	}
	return r
}

// ChunkMetadata describes where a chunk came from.
type ChunkMetadata struct {
	// DocumentID links to the parent document.
	DocumentID string

	// PageRange covers the pages of all contributing blocks.
	PageRange PageRange

	// Modality is the block type the chunk was built from.
	Modality BlockType

	// ExtractionPath records how the content was extracted.
	ExtractionPath ExtractionPath

	// Title is the document name, kept for display.
	Title string
}

// Chunk is an embedded unit of content ready for indexing.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// BlockIDs lists the contributing blocks in document order. Never empty.
	BlockIDs []string

	// Text is the extracted content.
	Text string

	// Position is the ordinal position within the document.
	Position int

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// Metadata holds provenance for filtering.
	Metadata ChunkMetadata
}
