// Package whitespace provides a processor that tidies chunk text.
package whitespace

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/strata/internal/core/domain"
)

var (
	horizontal = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Processor collapses runs of blank space inside chunks and drops chunks
// left empty. Positions are renumbered to stay contiguous.
type Processor struct{}

// New creates a whitespace processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "whitespace"
}

// Process normalises the text of every chunk.
func (p *Processor) Process(_ context.Context, _ *domain.ExtractedDocument, chunks []domain.Chunk) ([]domain.Chunk, error) {
	out := chunks[:0]
	for _, c := range chunks {
		c.Text = Collapse(c.Text)
		if c.Text == "" {
			continue
		}
		c.Position = len(out)
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// Collapse squeezes horizontal whitespace to one space, trims each line
// and keeps at most one blank line between paragraphs.
func Collapse(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontal.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
