package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
// Each heading starts a new text block; pipe tables become table blocks.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".md", ".markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

var (
	headingRe   = regexp.MustCompile(`^#{1,6}\s+`)
	separatorRe = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?$`)
)

// Normalise converts a Markdown document into blocks in source order.
func (n *Normaliser) Normalise(_ context.Context, input *domain.FileInput, documentID string) (*driven.NormaliseResult, error) {
	if input == nil {
		return nil, domain.ErrInvalidInput
	}
	content, err := normalisers.DecodeText(input.Content)
	if err != nil {
		return nil, err
	}

	b := normalisers.NewBuilder(documentID)
	lines := strings.Split(content, "\n")

	var text []string
	flushText := func() {
		b.AddText(0, strings.TrimSpace(strings.Join(text, "\n")), nil)
		text = nil
	}

	inFence := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			text = append(text, line)
			continue
		}
		if inFence {
			text = append(text, line)
			continue
		}

		if headingRe.MatchString(trimmed) {
			flushText()
			text = append(text, line)
			continue
		}

		// A pipe table is a header row followed by a separator row.
		if strings.Contains(trimmed, "|") && i+1 < len(lines) && separatorRe.MatchString(strings.TrimSpace(lines[i+1])) {
			flushText()
			rows := []string{tableRow(trimmed)}
			i += 2
			for ; i < len(lines); i++ {
				row := strings.TrimSpace(lines[i])
				if row == "" || !strings.Contains(row, "|") {
					break
				}
				rows = append(rows, tableRow(row))
			}
			i--
			b.Add(0, domain.BlockTable, []byte(strings.Join(rows, "\n")), "text/plain",
				map[string]string{domain.AttrDelimiter: "|"})
			continue
		}

		text = append(text, line)
	}
	flushText()

	return &driven.NormaliseResult{
		Blocks:   b.Blocks(),
		MIMEType: "text/markdown",
		Title:    extractMarkdownTitle(content),
	}, nil
}

// tableRow trims the outer pipes of a Markdown table row.
func tableRow(row string) string {
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")
	cells := strings.Split(row, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return strings.Join(cells, "|")
}

// extractMarkdownTitle returns the first H1 heading, or "" when there is none.
func extractMarkdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}
