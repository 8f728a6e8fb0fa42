package raster

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/custodia-labs/strata/internal/core/domain"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func pngChunk(kind string, data []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(kind)
	buf.Write(data)
	crc := crc32.NewIEEE()
	crc.Write([]byte(kind))
	crc.Write(data)
	_ = binary.Write(&buf, binary.BigEndian, crc.Sum32())
	return buf.Bytes()
}

// withChunks inserts chunks directly after IHDR.
func withChunks(img []byte, chunks ...[]byte) []byte {
	ihdrEnd := 8 + 4 + 4 + 13 + 4
	out := append([]byte{}, img[:ihdrEnd]...)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return append(out, img[ihdrEnd:]...)
}

func deflate(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func normalise(t *testing.T, name string, content []byte) (*domain.ContentBlock, string) {
	t.Helper()
	result, err := New().Normalise(context.Background(), &domain.FileInput{Name: name, Content: content}, "img1")
	require.NoError(t, err)
	require.Len(t, result.Blocks, 1)
	return &result.Blocks[0], result.Title
}

func TestSupportedFormats(t *testing.T) {
	n := New()
	assert.Contains(t, n.SupportedExtensions(), ".tif")
	assert.Contains(t, n.SupportedMIMETypes(), "image/jpeg")
	assert.Equal(t, 50, n.Priority())
}

func TestNormalise_PNGWithoutTextLayer(t *testing.T) {
	content := encodePNG(t, 64, 32)
	block, title := normalise(t, "core.png", content)

	assert.Equal(t, domain.BlockImage, block.Type)
	assert.Equal(t, "image/png", block.PayloadMIME)
	assert.Equal(t, content, block.Payload)
	assert.Equal(t, "64", block.Attribute(domain.AttrWidth))
	assert.Equal(t, "32", block.Attribute(domain.AttrHeight))
	assert.Empty(t, block.Attribute(domain.AttrTextLayer))
	assert.Empty(t, title)
}

func TestNormalise_PNGTextChunks(t *testing.T) {
	itxt := append([]byte("Description\x00\x00\x00en\x00\x00"), []byte("~WELL INFORMATION STRT 1500")...)
	ztxt := append([]byte("Comment\x00\x00"), deflate(t, "compressed note")...)
	content := withChunks(encodePNG(t, 8, 8),
		pngChunk("tEXt", []byte("Title\x00Gamma Ray Log")),
		pngChunk("zTXt", ztxt),
		pngChunk("iTXt", itxt),
	)

	block, title := normalise(t, "log.png", content)
	assert.Equal(t, "Gamma Ray Log\ncompressed note\n~WELL INFORMATION STRT 1500", block.Attribute(domain.AttrTextLayer))
	assert.Equal(t, "Gamma Ray Log", title)
}

func TestNormalise_JPEGComment(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 9)), nil))
	raw := buf.Bytes()

	comment := "Thin section, 40x, quartz arenite"
	seg := []byte{0xff, 0xfe, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(comment)+2))
	seg = append(seg, comment...)
	content := append(append(append([]byte{}, raw[:2]...), seg...), raw[2:]...)

	block, _ := normalise(t, "thin.jpg", content)
	assert.Equal(t, "image/jpeg", block.PayloadMIME)
	assert.Equal(t, "16", block.Attribute(domain.AttrWidth))
	assert.Equal(t, comment, block.Attribute(domain.AttrTextLayer))
}

func TestNormalise_TIFF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, image.NewGray(image.Rect(0, 0, 10, 20)), nil))

	block, _ := normalise(t, "scan.tiff", buf.Bytes())
	assert.Equal(t, "image/tiff", block.PayloadMIME)
	assert.Equal(t, "20", block.Attribute(domain.AttrHeight))
}

func TestNormalise_Errors(t *testing.T) {
	_, err := New().Normalise(context.Background(), nil, "img1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New().Normalise(context.Background(), &domain.FileInput{Name: "x.png", Content: []byte("not an image")}, "img1")
	assert.ErrorIs(t, err, domain.ErrCorruptInput)

	truncated := encodePNG(t, 4, 4)[:20]
	_, err = New().Normalise(context.Background(), &domain.FileInput{Name: "x.png", Content: truncated}, "img1")
	assert.ErrorIs(t, err, domain.ErrCorruptInput)
}

func TestPNGText_MalformedChunksSkipped(t *testing.T) {
	content := withChunks(encodePNG(t, 2, 2),
		pngChunk("tEXt", []byte("no separator")),
		pngChunk("zTXt", []byte("Bad\x00\x00not zlib")),
		pngChunk("tEXt", []byte("Author\x00Survey team")),
	)
	layer := pngText(content)
	assert.Equal(t, "Survey team", layer.text())
}
