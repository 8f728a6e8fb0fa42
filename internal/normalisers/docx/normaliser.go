// Package docx normalises Word documents into text, table and image blocks.
package docx

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

const mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{mimeDOCX}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".docx"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise converts a DOCX document into blocks in document order.
func (n *Normaliser) Normalise(ctx context.Context, input *domain.FileInput, documentID string) (*driven.NormaliseResult, error) {
	if input == nil {
		return nil, domain.ErrInvalidInput
	}

	zr, err := normalisers.OpenZip(input.Content)
	if err != nil {
		return nil, err
	}
	body, err := normalisers.ReadZipFile(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("%w: word/document.xml missing", domain.ErrCorruptInput)
	}
	rels, err := normalisers.ReadRelationships(zr, "word/_rels/document.xml.rels")
	if err != nil {
		return nil, err
	}

	w := &walker{
		builder: normalisers.NewBuilder(documentID),
		media: func(id string) ([]byte, string) {
			rel, ok := rels[id]
			if !ok {
				return nil, ""
			}
			name := path.Join("word", rel.Target)
			data, err := normalisers.ReadZipFile(zr, name)
			if err != nil {
				return nil, ""
			}
			return data, mediaType(name)
		},
	}
	if err := w.walk(ctx, xml.NewDecoder(bytes.NewReader(body))); err != nil {
		return nil, err
	}

	title := normalisers.CoreTitle(zr)
	if title == "" {
		title = w.firstHeading
	}
	return &driven.NormaliseResult{
		Blocks:   w.builder.Blocks(),
		MIMEType: mimeDOCX,
		Title:    title,
	}, nil
}

// walker turns the WordprocessingML token stream into blocks.
// Paragraphs accumulate into one text block until a heading, table,
// image or page break closes it.
type walker struct {
	builder *normalisers.Builder
	media   func(relID string) ([]byte, string)

	page         int
	text         []string
	para         strings.Builder
	heading      bool
	firstHeading string

	tableDepth int
	rows       [][]string
	row        []string
	cell       []string
	inCell     bool

	images []string
}

func (w *walker) walk(ctx context.Context, dec *xml.Decoder) error {
	for n := 0; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: parsing document body: %v", domain.ErrCorruptInput, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if err := w.start(dec, t); err != nil {
				return err
			}
		case xml.EndElement:
			w.end(t)
		}
	}
	w.flushText()
	return nil
}

func (w *walker) start(dec *xml.Decoder, t xml.StartElement) error {
	switch t.Name.Local {
	case "p":
		w.para.Reset()
		w.heading = false
	case "pStyle":
		style := strings.ToLower(attr(t, "val"))
		w.heading = strings.HasPrefix(style, "heading") || style == "title"
	case "t":
		var s string
		if err := dec.DecodeElement(&s, &t); err != nil {
			return fmt.Errorf("%w: text run: %v", domain.ErrCorruptInput, err)
		}
		w.para.WriteString(s)
	case "tab":
		// Tab stop definitions in paragraph properties carry a position.
		if attr(t, "pos") == "" {
			w.para.WriteString("\t")
		}
	case "br", "cr":
		if attr(t, "type") == "page" {
			w.pageBreak()
		} else {
			w.para.WriteString("\n")
		}
	case "tbl":
		if w.tableDepth == 0 {
			w.flushText()
			w.rows = nil
		}
		w.tableDepth++
	case "tr":
		if w.tableDepth == 1 {
			w.row = nil
		}
	case "tc":
		if w.tableDepth == 1 {
			w.cell = nil
			w.inCell = true
		}
	case "blip":
		if id := attr(t, "embed"); id != "" {
			w.images = append(w.images, id)
		}
	case "imagedata":
		if id := attr(t, "id"); id != "" {
			w.images = append(w.images, id)
		}
	}
	return nil
}

func (w *walker) end(t xml.EndElement) {
	switch t.Name.Local {
	case "p":
		w.endParagraph()
	case "tc":
		if w.tableDepth == 1 && w.inCell {
			w.row = append(w.row, strings.Join(w.cell, " "))
			w.inCell = false
		}
	case "tr":
		if w.tableDepth == 1 {
			w.rows = append(w.rows, w.row)
		}
	case "tbl":
		w.tableDepth--
		if w.tableDepth == 0 {
			w.flushTable()
			w.flushImages()
		}
	}
}

func (w *walker) endParagraph() {
	text := strings.TrimRight(w.para.String(), " \t\n")
	w.para.Reset()

	if w.tableDepth > 0 {
		// Paragraphs of nested tables fold into the outer cell.
		if w.inCell && strings.TrimSpace(text) != "" {
			w.cell = append(w.cell, strings.TrimSpace(text))
		}
		return
	}

	if w.heading && strings.TrimSpace(text) != "" {
		w.flushText()
		if w.firstHeading == "" {
			w.firstHeading = strings.TrimSpace(text)
		}
	}
	w.text = append(w.text, text)
	if len(w.images) > 0 {
		w.flushText()
		w.flushImages()
	}
}

func (w *walker) pageBreak() {
	if w.tableDepth > 0 {
		return
	}
	// Text before the break belongs to the current page.
	if before := strings.TrimRight(w.para.String(), " \t\n"); before != "" {
		w.text = append(w.text, before)
	}
	w.para.Reset()
	w.flushText()
	w.flushImages()
	w.page++
}

func (w *walker) flushText() {
	w.builder.AddText(w.page, strings.TrimSpace(strings.Join(w.text, "\n")), nil)
	w.text = nil
}

func (w *walker) flushTable() {
	var lines []string
	for _, row := range w.rows {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		lines = append(lines, strings.Join(row, "\t"))
	}
	w.rows = nil
	if len(lines) == 0 {
		return
	}
	w.builder.Add(w.page, domain.BlockTable, []byte(strings.Join(lines, "\n")), "text/tab-separated-values",
		map[string]string{domain.AttrDelimiter: "\t"})
}

func (w *walker) flushImages() {
	for _, id := range w.images {
		data, mimeType := w.media(id)
		if len(data) == 0 {
			continue
		}
		w.builder.Add(w.page, domain.BlockImage, data, mimeType, nil)
	}
	w.images = nil
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func mediaType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}
