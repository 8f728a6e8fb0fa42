package chunker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/custodia-labs/strata/internal/core/domain"
)

func textBlock(id string, page int, text string) domain.ExtractedBlock {
	return domain.ExtractedBlock{
		Block: domain.ContentBlock{ID: id, PageIndex: page, Type: domain.BlockText},
		Text:  text,
		Path:  domain.PathTextOnly,
	}
}

func doc(blocks ...domain.ExtractedBlock) *domain.ExtractedDocument {
	return &domain.ExtractedDocument{DocumentID: "doc1", Title: "Report", Blocks: blocks}
}

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		p := New()
		if p.chunkSize != DefaultChunkSize {
			t.Errorf("expected chunkSize %d, got %d", DefaultChunkSize, p.chunkSize)
		}
		if p.overlap != DefaultChunkOverlap {
			t.Errorf("expected overlap %d, got %d", DefaultChunkOverlap, p.overlap)
		}
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		p := New(WithChunkSize(100), WithOverlap(150))
		if p.overlap >= p.chunkSize {
			t.Error("overlap should be reduced when it exceeds chunk size")
		}
	})

	t.Run("zero values ignored", func(t *testing.T) {
		p := New(WithChunkSize(0), WithOverlap(-1))
		if p.chunkSize != DefaultChunkSize {
			t.Errorf("expected default chunkSize, got %d", p.chunkSize)
		}
		if p.overlap != DefaultChunkOverlap {
			t.Errorf("expected default overlap, got %d", p.overlap)
		}
	})
}

func TestProcessor_Name(t *testing.T) {
	if New().Name() != "chunker" {
		t.Errorf("expected name 'chunker', got '%s'", New().Name())
	}
}

func TestProcessor_Process_EmptyBlocksSkipped(t *testing.T) {
	chunks, err := New().Process(context.Background(), doc(textBlock("b0", 0, "   "), textBlock("b1", 0, "")), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks, got %d", len(chunks))
	}
}

func TestProcessor_Process_MergesConsecutiveText(t *testing.T) {
	chunks, err := New(WithChunkSize(500)).Process(context.Background(),
		doc(textBlock("b0", 0, "Page one text."), textBlock("b1", 1, "Page two text.")), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	c := chunks[0]
	if c.Text != "Page one text.\n\nPage two text." {
		t.Errorf("unexpected text %q", c.Text)
	}
	if strings.Join(c.BlockIDs, ",") != "b0,b1" {
		t.Errorf("expected both blocks, got %v", c.BlockIDs)
	}
	if c.Metadata.PageRange != (domain.PageRange{Start: 0, End: 1}) {
		t.Errorf("unexpected page range %+v", c.Metadata.PageRange)
	}
	if c.ID != "doc1-c0000" || c.Metadata.Title != "Report" || c.Metadata.DocumentID != "doc1" {
		t.Errorf("unexpected identity %q %+v", c.ID, c.Metadata)
	}
}

func TestProcessor_Process_SplitsLongTextWithOverlap(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i)
	}
	text := strings.Join(words, " ")

	chunks, err := New(WithChunkSize(100), WithOverlap(20)).Process(context.Background(), doc(textBlock("b0", 0, text)), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 5 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	for i, c := range chunks {
		if len(c.Text) > 100 {
			t.Errorf("chunk %d exceeds size: %d", i, len(c.Text))
		}
		for _, w := range strings.Fields(c.Text) {
			if len(w) != 4 {
				t.Errorf("chunk %d split a word: %q", i, w)
			}
		}
		if c.Position != i {
			t.Errorf("expected position %d, got %d", i, c.Position)
		}
	}

	// Consecutive chunks share words.
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	if first[len(first)-1] < second[0] {
		t.Errorf("expected overlap between %q and %q", first[len(first)-1], second[0])
	}

	// Every word survives.
	all := make(map[string]bool)
	for _, c := range chunks {
		for _, w := range strings.Fields(c.Text) {
			all[w] = true
		}
	}
	if len(all) != 100 {
		t.Errorf("expected 100 distinct words, got %d", len(all))
	}
}

func TestProcessor_Process_TableAndImageChunks(t *testing.T) {
	table := domain.ExtractedBlock{
		Block: domain.ContentBlock{ID: "t0", PageIndex: 2, Type: domain.BlockTable},
		Text:  "Depth | GR\n100 | 45",
		Path:  domain.PathTextOnly,
	}
	img := domain.ExtractedBlock{
		Block: domain.ContentBlock{ID: "i0", PageIndex: 3, Type: domain.BlockImage},
		Text:  "Gamma ray increases below 1200 m.",
		Path:  domain.PathVision,
	}

	chunks, err := New().Process(context.Background(),
		doc(textBlock("b0", 0, "Intro."), table, textBlock("b1", 2, "Between."), img), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}

	want := []struct {
		modality domain.BlockType
		path     domain.ExtractionPath
		block    string
	}{
		{domain.BlockText, domain.PathTextOnly, "b0"},
		{domain.BlockTable, domain.PathTextOnly, "t0"},
		{domain.BlockText, domain.PathTextOnly, "b1"},
		{domain.BlockImage, domain.PathVision, "i0"},
	}
	for i, w := range want {
		c := chunks[i]
		if c.Metadata.Modality != w.modality || c.Metadata.ExtractionPath != w.path {
			t.Errorf("chunk %d: got %s/%s", i, c.Metadata.Modality, c.Metadata.ExtractionPath)
		}
		if len(c.BlockIDs) != 1 || c.BlockIDs[0] != w.block {
			t.Errorf("chunk %d: got blocks %v", i, c.BlockIDs)
		}
	}
}

func TestProcessor_Process_LongTableSplitsAtRows(t *testing.T) {
	rows := []string{"Depth | Porosity | Sw"}
	for i := 0; i < 40; i++ {
		rows = append(rows, fmt.Sprintf("%d | 0.%02d | 0.%02d", 1000+i*10, i, 99-i))
	}
	table := domain.ExtractedBlock{
		Block: domain.ContentBlock{ID: "t0", Type: domain.BlockTable},
		Text:  strings.Join(rows, "\n"),
		Path:  domain.PathTextOnly,
	}

	chunks, err := New(WithChunkSize(120), WithOverlap(10)).Process(context.Background(), doc(table), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected table to split, got %d chunks", len(chunks))
	}

	seen := 0
	for i, c := range chunks {
		lines := strings.Split(c.Text, "\n")
		if lines[0] != rows[0] {
			t.Errorf("chunk %d does not repeat the header: %q", i, lines[0])
		}
		for _, line := range lines[1:] {
			if strings.Count(line, "|") != 2 {
				t.Errorf("chunk %d has a broken row %q", i, line)
			}
			seen++
		}
		if len(c.Text) > 120 {
			t.Errorf("chunk %d exceeds size: %d", i, len(c.Text))
		}
	}
	if seen != 40 {
		t.Errorf("expected 40 data rows across chunks, got %d", seen)
	}
}

func TestProcessor_Process_LongImageTextSplitsAtLines(t *testing.T) {
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = fmt.Sprintf("Observation %02d: clay-rich interval", i)
	}
	img := domain.ExtractedBlock{
		Block: domain.ContentBlock{ID: "i0", Type: domain.BlockImage},
		Text:  strings.Join(lines, "\n"),
		Path:  domain.PathVision,
	}

	chunks, err := New(WithChunkSize(150), WithOverlap(0)).Process(context.Background(), doc(img), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rebuilt []string
	for _, c := range chunks {
		rebuilt = append(rebuilt, strings.Split(c.Text, "\n")...)
	}
	if strings.Join(rebuilt, "\n") != img.Text {
		t.Error("image text was not split cleanly at line boundaries")
	}
}

func TestProcessor_Process_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Process(ctx, doc(textBlock("b0", 0, "text")), nil); err == nil {
		t.Error("expected cancellation error")
	}
}
