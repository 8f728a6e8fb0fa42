// Package pdf normalises PDF documents into per-page text blocks and
// image blocks for embedded raster images.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/logger"
	"github.com/custodia-labs/strata/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles PDF documents.
type Normaliser struct{}

// New creates a new PDF normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".pdf"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise converts a PDF into blocks. Each page yields a text block when
// it carries extractable text, followed by one image block per image
// XObject it draws.
func (n *Normaliser) Normalise(ctx context.Context, input *domain.FileInput, documentID string) (*driven.NormaliseResult, error) {
	if input == nil {
		return nil, domain.ErrInvalidInput
	}
	if !bytes.HasPrefix(bytes.TrimLeft(input.Content, "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing PDF header", domain.ErrCorruptInput)
	}

	reader, err := openReader(input.Content)
	if err != nil {
		return nil, err
	}

	jpegs := newJPEGPool(input.Content)
	b := normalisers.NewBuilder(documentID)
	title := documentTitle(reader)

	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := pageText(page)
		if err != nil {
			logger.Warn("pdf %s: page %d text: %v", input.Name, i, err)
		}
		addPageText(b, i-1, text, err)
		if title == "" {
			title = normalisers.FirstLine(text)
		}

		for _, img := range pageImages(page, jpegs) {
			b.Add(i-1, domain.BlockImage, img.payload, img.mime, img.attrs)
		}
	}

	return &driven.NormaliseResult{
		Blocks:   b.Blocks(),
		MIMEType: "application/pdf",
		Title:    title,
	}, nil
}

// addPageText adds a page's text block. A page whose text could not be
// decoded still gets a block, marked so extraction reports it as failed.
func addPageText(b *normalisers.Builder, page int, text string, err error) {
	if err != nil {
		b.Add(page, domain.BlockText, nil, "text/plain", map[string]string{domain.AttrDecodeError: err.Error()})
		return
	}
	b.AddText(page, text, nil)
}

// openReader parses the cross-reference table. The pdf package panics on
// some malformed inputs, so panics are reported as corrupt input.
func openReader(content []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("%w: %v", domain.ErrCorruptInput, rec)
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptInput, err)
	}
	return r, nil
}

func documentTitle(r *pdf.Reader) (title string) {
	defer func() {
		if recover() != nil {
			title = ""
		}
	}()
	return strings.TrimSpace(r.Trailer().Key("Info").Key("Title").Text())
}

func pageText(p pdf.Page) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("content stream: %v", rec)
		}
	}()
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

type pageImage struct {
	payload []byte
	mime    string
	attrs   map[string]string
}

// pageImages returns the page's image XObjects in resource name order.
func pageImages(p pdf.Page, jpegs *jpegPool) (images []pageImage) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Debug("pdf image resources: %v", rec)
		}
	}()

	xobjects := p.Resources().Key("XObject")
	if xobjects.IsNull() {
		return nil
	}
	names := xobjects.Keys()
	sort.Strings(names)
	for _, name := range names {
		obj := xobjects.Key(name)
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}
		images = append(images, decodeImage(obj, jpegs))
	}
	return images
}

func decodeImage(obj pdf.Value, jpegs *jpegPool) pageImage {
	width := int(obj.Key("Width").Int64())
	height := int(obj.Key("Height").Int64())
	filter := filterName(obj.Key("Filter"))

	img := pageImage{attrs: map[string]string{
		domain.AttrWidth:  strconv.Itoa(width),
		domain.AttrHeight: strconv.Itoa(height),
		domain.AttrFilter: filter,
	}}

	switch filter {
	case "DCTDecode":
		img.mime = "image/jpeg"
		img.payload = jpegs.take(width, height)
	case "FlateDecode", "":
		payload, err := rasterToPNG(obj, width, height)
		if err != nil {
			logger.Debug("pdf image %dx%d: %v", width, height, err)
			break
		}
		img.mime = "image/png"
		img.payload = payload
	}
	return img
}

// filterName returns the last filter applied to a stream, which is the
// encoding of the stored image data.
func filterName(v pdf.Value) string {
	if v.Kind() == pdf.Array {
		if v.Len() == 0 {
			return ""
		}
		return v.Index(v.Len() - 1).Name()
	}
	return v.Name()
}
