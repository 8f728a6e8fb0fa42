package normalisers

import (
	"bytes"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// Builder assigns block IDs and sequence numbers in document order.
// Block IDs are derived from the document ID so re-ingesting the same
// file yields the same IDs.
type Builder struct {
	documentID string
	blocks     []domain.ContentBlock
}

// NewBuilder creates a block builder for a document.
func NewBuilder(documentID string) *Builder {
	return &Builder{documentID: documentID}
}

// Add appends a block and returns it.
func (b *Builder) Add(page int, typ domain.BlockType, payload []byte, payloadMIME string, attrs map[string]string) domain.ContentBlock {
	seq := len(b.blocks)
	block := domain.ContentBlock{
		ID:          fmt.Sprintf("%s-b%04d", b.documentID, seq),
		DocumentID:  b.documentID,
		PageIndex:   page,
		Sequence:    seq,
		Type:        typ,
		Payload:     payload,
		PayloadMIME: payloadMIME,
		Attributes:  maps.Clone(attrs),
	}
	b.blocks = append(b.blocks, block)
	return block
}

// AddText appends a text block unless text is blank.
func (b *Builder) AddText(page int, text string, attrs map[string]string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	b.Add(page, domain.BlockText, []byte(text), "text/plain", attrs)
}

// Blocks returns the blocks built so far.
func (b *Builder) Blocks() []domain.ContentBlock {
	return b.blocks
}

// Len returns the number of blocks built so far.
func (b *Builder) Len() int {
	return len(b.blocks)
}

// DecodeText validates UTF-8, strips a byte-order mark and normalises
// line endings. Invalid encodings fail with ErrCorruptInput.
func DecodeText(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: not valid UTF-8 text", domain.ErrCorruptInput)
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return "", fmt.Errorf("%w: binary content in text file", domain.ErrCorruptInput)
	}
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n"), nil
}

// TitleFromName derives a human-readable title from a file name.
func TitleFromName(name string) string {
	filename := filepath.Base(name)
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return strings.TrimSpace(filename)
}

// FirstLine returns the first non-blank line of text, truncated to 120
// characters, or "" when there is none.
func FirstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > 120 {
			line = string(r[:120])
		}
		return line
	}
	return ""
}

// Ext returns the lower-case extension of name including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
