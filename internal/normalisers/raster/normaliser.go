// Package raster normalises raster images into a single image block,
// recording any embedded text layer.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoding
	_ "image/png"  // register PNG decoding
	"strconv"
	"strings"

	_ "golang.org/x/image/tiff" // register TIFF decoding

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

var formatMIME = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"tiff": "image/tiff",
}

// Normaliser handles PNG, JPEG and TIFF images.
type Normaliser struct{}

// New creates a new image normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"image/png", "image/jpeg", "image/tiff"}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".tif", ".tiff"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise validates the image header and emits one image block. Text
// stored in PNG text chunks or JPEG comments becomes the text layer.
func (n *Normaliser) Normalise(_ context.Context, input *domain.FileInput, documentID string) (*driven.NormaliseResult, error) {
	if input == nil {
		return nil, domain.ErrInvalidInput
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(input.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: reading image header: %v", domain.ErrCorruptInput, err)
	}
	mimeType, ok := formatMIME[format]
	if !ok {
		return nil, fmt.Errorf("%w: image format %q", domain.ErrUnsupportedFormat, format)
	}

	attrs := map[string]string{
		domain.AttrWidth:  strconv.Itoa(cfg.Width),
		domain.AttrHeight: strconv.Itoa(cfg.Height),
	}

	var layer textLayer
	switch format {
	case "png":
		layer = pngText(input.Content)
	case "jpeg":
		layer = jpegComments(input.Content)
	}
	if text := layer.text(); text != "" {
		attrs[domain.AttrTextLayer] = text
	}

	b := normalisers.NewBuilder(documentID)
	b.Add(0, domain.BlockImage, input.Content, mimeType, attrs)

	return &driven.NormaliseResult{
		Blocks:   b.Blocks(),
		MIMEType: mimeType,
		Title:    layer.title,
	}, nil
}

// textLayer collects embedded text in file order.
type textLayer struct {
	title string
	parts []string
}

func (l *textLayer) add(keyword, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if strings.EqualFold(keyword, "title") && l.title == "" {
		l.title = value
	}
	l.parts = append(l.parts, value)
}

func (l textLayer) text() string {
	return strings.Join(l.parts, "\n")
}
