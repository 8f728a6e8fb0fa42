// Package chunker provides a block-aware chunking processor.
package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Processor turns extracted blocks into chunks.
// Consecutive text blocks are merged and split with overlap. Table and
// image blocks map to one chunk each unless they exceed the chunk size,
// in which case tables split between rows and image text between lines.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Process builds chunks from the document's extracted blocks.
// Input chunks are ignored; this processor creates new chunks.
func (p *Processor) Process(ctx context.Context, doc *domain.ExtractedDocument, _ []domain.Chunk) ([]domain.Chunk, error) {
	e := &emitter{doc: doc}

	var run []domain.ExtractedBlock
	flush := func() {
		if len(run) > 0 {
			p.splitText(e, run)
			run = nil
		}
	}

	for _, b := range doc.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		switch b.Block.Type {
		case domain.BlockText:
			if len(run) > 0 && run[0].Path != b.Path {
				flush()
			}
			run = append(run, b)
		case domain.BlockTable:
			flush()
			p.splitLines(e, b, true)
		default:
			flush()
			p.splitLines(e, b, false)
		}
	}
	flush()

	return e.chunks, nil
}

// emitter assigns positions and deterministic IDs.
type emitter struct {
	doc    *domain.ExtractedDocument
	chunks []domain.Chunk
}

func (e *emitter) emit(text string, blocks []domain.ExtractedBlock) {
	text = strings.TrimSpace(text)
	if text == "" || len(blocks) == 0 {
		return
	}
	pos := len(e.chunks)
	ids := make([]string, len(blocks))
	pages := domain.PageRange{Start: blocks[0].Block.PageIndex, End: blocks[0].Block.PageIndex}
	for i, b := range blocks {
		ids[i] = b.Block.ID
		pages = pages.Extend(b.Block.PageIndex)
	}
	e.chunks = append(e.chunks, domain.Chunk{
		ID:       fmt.Sprintf("%s-c%04d", e.doc.DocumentID, pos),
		BlockIDs: ids,
		Text:     text,
		Position: pos,
		Metadata: domain.ChunkMetadata{
			DocumentID:     e.doc.DocumentID,
			PageRange:      pages,
			Modality:       blocks[0].Block.Type,
			ExtractionPath: blocks[0].Path,
			Title:          e.doc.Title,
		},
	})
}

// span records where a block's text sits in the merged run.
type span struct {
	start, end int
	block      domain.ExtractedBlock
}

// splitText merges a run of text blocks and cuts it into overlapping
// windows, preferring whitespace boundaries.
func (p *Processor) splitText(e *emitter, run []domain.ExtractedBlock) {
	var (
		merged []rune
		spans  []span
	)
	for i, b := range run {
		if i > 0 {
			merged = append(merged, '\n', '\n')
		}
		start := len(merged)
		merged = append(merged, []rune(strings.TrimSpace(b.Text))...)
		spans = append(spans, span{start: start, end: len(merged), block: b})
	}

	n := len(merged)
	start := 0
	for start < n {
		end := min(start+p.chunkSize, n)
		if end < n {
			end = cutBefore(merged, start+p.chunkSize/2, end)
		}
		e.emit(string(merged[start:end]), blocksIn(spans, start, end))
		if end >= n {
			break
		}

		next := max(end-p.overlap, start+1)
		if p.overlap > 0 {
			next = cutAfter(merged, next, end)
		}
		if next <= start {
			next = end
		}
		start = next
	}
}

// cutBefore returns the position just after the last whitespace in
// (lo, hi], or hi when there is none.
func cutBefore(r []rune, lo, hi int) int {
	for i := hi; i > lo; i-- {
		if unicode.IsSpace(r[i-1]) {
			return i
		}
	}
	return hi
}

// cutAfter returns the first word start at or after lo and before hi,
// or lo when there is none.
func cutAfter(r []rune, lo, hi int) int {
	for i := lo; i < hi; i++ {
		if i == 0 || unicode.IsSpace(r[i-1]) {
			return i
		}
	}
	return lo
}

func blocksIn(spans []span, start, end int) []domain.ExtractedBlock {
	var out []domain.ExtractedBlock
	for _, s := range spans {
		if s.start < end && start < s.end {
			out = append(out, s.block)
		}
	}
	if len(out) == 0 {
		// A window made only of the separator between two blocks.
		for _, s := range spans {
			if s.start >= start {
				return []domain.ExtractedBlock{s.block}
			}
		}
		out = append(out, spans[len(spans)-1].block)
	}
	return out
}

// splitLines emits one chunk for the block, or several cut at line
// boundaries when it is too long. Tables repeat their header row.
func (p *Processor) splitLines(e *emitter, b domain.ExtractedBlock, table bool) {
	text := strings.TrimSpace(b.Text)
	if len([]rune(text)) <= p.chunkSize {
		e.emit(text, []domain.ExtractedBlock{b})
		return
	}

	lines := strings.Split(text, "\n")
	var header string
	if table && len(lines) > 1 {
		header, lines = lines[0], lines[1:]
	}

	var cur []string
	size := 0
	if header != "" {
		size = len([]rune(header)) + 1
	}
	flush := func() {
		if len(cur) == 0 {
			return
		}
		if header != "" {
			cur = append([]string{header}, cur...)
		}
		e.emit(strings.Join(cur, "\n"), []domain.ExtractedBlock{b})
		cur = nil
		size = 0
		if header != "" {
			size = len([]rune(header)) + 1
		}
	}
	for _, line := range lines {
		l := len([]rune(line)) + 1
		if len(cur) > 0 && size+l > p.chunkSize {
			flush()
		}
		cur = append(cur, line)
		size += l
	}
	flush()
}
