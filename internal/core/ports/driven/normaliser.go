package driven

import (
	"context"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// Normaliser transforms file bytes into an ordered sequence of content blocks.
// Each normaliser handles specific MIME types and file extensions.
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// SupportedExtensions returns lower-case file extensions including the dot.
	SupportedExtensions() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise produces blocks covering the whole document in order.
	// Fails with ErrCorruptInput when the file cannot be parsed.
	Normalise(ctx context.Context, input *domain.FileInput, documentID string) (*NormaliseResult, error)
}

// NormaliseResult contains the output of normalisation.
type NormaliseResult struct {
	// Blocks are ordered by (PageIndex, Sequence).
	Blocks []domain.ContentBlock

	// MIMEType is the resolved content type.
	MIMEType string

	// Title is the document title when the format carries one.
	Title string
}
