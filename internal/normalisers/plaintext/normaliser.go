package plaintext

import (
	"context"
	"strings"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// defaultGroupChars bounds how much text one block holds.
const defaultGroupChars = 4000

// Normaliser handles plain text documents.
// Paragraphs (separated by blank lines) are grouped into text blocks.
type Normaliser struct {
	groupChars int
}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{groupChars: defaultGroupChars}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/plain"}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".txt", ".text", ".log"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise splits the text into paragraph-group blocks on page 0.
func (n *Normaliser) Normalise(_ context.Context, input *domain.FileInput, documentID string) (*driven.NormaliseResult, error) {
	if input == nil {
		return nil, domain.ErrInvalidInput
	}

	text, err := normalisers.DecodeText(input.Content)
	if err != nil {
		return nil, err
	}

	b := normalisers.NewBuilder(documentID)
	for _, group := range groupParagraphs(text, n.groupChars) {
		b.AddText(0, group, nil)
	}

	return &driven.NormaliseResult{
		Blocks:   b.Blocks(),
		MIMEType: "text/plain",
		Title:    normalisers.FirstLine(text),
	}, nil
}

// groupParagraphs splits text at blank lines and packs consecutive
// paragraphs into groups of at most limit characters. A paragraph longer
// than limit forms its own group.
func groupParagraphs(text string, limit int) []string {
	var groups []string
	var cur strings.Builder
	for _, para := range splitParagraphs(text) {
		if cur.Len() > 0 && cur.Len()+len(para)+2 > limit {
			groups = append(groups, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	if cur.Len() > 0 {
		groups = append(groups, cur.String())
	}
	return groups
}

func splitParagraphs(text string) []string {
	var paras []string
	var lines []string
	flush := func() {
		if len(lines) > 0 {
			paras = append(paras, strings.Join(lines, "\n"))
			lines = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		lines = append(lines, strings.TrimRight(line, " \t"))
	}
	flush()
	return paras
}
