// Package spreadsheet normalises delimited text and XLSX workbooks into
// table blocks.
package spreadsheet

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

const (
	mimeCSV  = "text/csv"
	mimeTSV  = "text/tab-separated-values"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeXLS  = "application/vnd.ms-excel"
)

// Normaliser handles CSV, TSV and XLSX files.
type Normaliser struct{}

// New creates a new spreadsheet normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{mimeCSV, mimeTSV, mimeXLSX, mimeXLS}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".csv", ".tsv", ".xlsx", ".xls"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 60
}

// Normalise converts a spreadsheet into one table block per sheet.
func (n *Normaliser) Normalise(ctx context.Context, input *domain.FileInput, documentID string) (*driven.NormaliseResult, error) {
	if input == nil {
		return nil, domain.ErrInvalidInput
	}

	ext := normalisers.Ext(input.Name)
	switch {
	case ext == ".xls" || input.MIMEType == mimeXLS:
		return nil, fmt.Errorf("%w: legacy .xls workbooks are not supported, save %s as .xlsx",
			domain.ErrUnsupportedFormat, input.Name)
	case ext == ".xlsx" || input.MIMEType == mimeXLSX:
		return normaliseXLSX(ctx, input.Content, documentID)
	default:
		return normaliseDelimited(input, documentID)
	}
}

func normaliseDelimited(input *domain.FileInput, documentID string) (*driven.NormaliseResult, error) {
	text, err := normalisers.DecodeText(input.Content)
	if err != nil {
		return nil, err
	}
	text = strings.TrimRight(text, "\n")

	mimeType, delim := mimeCSV, ","
	if normalisers.Ext(input.Name) == ".tsv" || input.MIMEType == mimeTSV {
		mimeType, delim = mimeTSV, "\t"
	}

	b := normalisers.NewBuilder(documentID)
	if strings.TrimSpace(text) != "" {
		b.Add(0, domain.BlockTable, []byte(text), mimeType, map[string]string{domain.AttrDelimiter: delim})
	}
	return &driven.NormaliseResult{Blocks: b.Blocks(), MIMEType: mimeType}, nil
}
