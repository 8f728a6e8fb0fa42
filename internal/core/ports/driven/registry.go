package driven

import (
	"context"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// NormaliserRegistry selects the appropriate normaliser for a file.
// It maintains a priority-ordered list of normalisers and dispatches
// by MIME type, then by file extension.
type NormaliserRegistry interface {
	// Normalise transforms a file using the best matching normaliser.
	// Fails with ErrUnsupportedFormat when nothing matches.
	Normalise(ctx context.Context, input *domain.FileInput, documentID string) (*NormaliseResult, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// Supports reports whether a file name or MIME type can be normalised.
	Supports(name, mimeType string) bool

	// SupportedExtensions returns all extensions that can be normalised.
	SupportedExtensions() []string
}
