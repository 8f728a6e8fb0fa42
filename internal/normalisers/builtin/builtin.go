// Package builtin assembles the normaliser registry with every format
// strata understands.
package builtin

import (
	"github.com/custodia-labs/strata/internal/normalisers"
	"github.com/custodia-labs/strata/internal/normalisers/docx"
	"github.com/custodia-labs/strata/internal/normalisers/html"
	"github.com/custodia-labs/strata/internal/normalisers/las"
	"github.com/custodia-labs/strata/internal/normalisers/markdown"
	"github.com/custodia-labs/strata/internal/normalisers/pdf"
	"github.com/custodia-labs/strata/internal/normalisers/plaintext"
	"github.com/custodia-labs/strata/internal/normalisers/raster"
	"github.com/custodia-labs/strata/internal/normalisers/spreadsheet"
)

// Registry returns a registry holding all built-in normalisers.
func Registry() *normalisers.Registry {
	return normalisers.NewRegistry(
		plaintext.New(),
		markdown.New(),
		html.New(),
		pdf.New(),
		docx.New(),
		spreadsheet.New(),
		raster.New(),
		las.New(),
	)
}
