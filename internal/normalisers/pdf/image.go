package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/ledongthuc/pdf"
)

var errUnsupportedRaster = errors.New("unsupported raster layout")

// rasterToPNG decodes an uncompressed or Flate-compressed 8-bit RGB or
// grey image stream and re-encodes it as PNG.
func rasterToPNG(obj pdf.Value, width, height int) (out []byte, err error) {
	if width <= 0 || height <= 0 {
		return nil, errUnsupportedRaster
	}
	if bpc := obj.Key("BitsPerComponent").Int64(); bpc != 8 {
		return nil, fmt.Errorf("%w: %d bits per component", errUnsupportedRaster, bpc)
	}
	comps := colorComponents(obj.Key("ColorSpace"))
	if comps != 1 && comps != 3 {
		return nil, fmt.Errorf("%w: %d colour components", errUnsupportedRaster, comps)
	}

	data, err := readStream(obj)
	if err != nil {
		return nil, err
	}
	if len(data) < width*height*comps {
		return nil, fmt.Errorf("%w: short stream", errUnsupportedRaster)
	}

	var img image.Image
	if comps == 1 {
		gray := image.NewGray(image.Rect(0, 0, width, height))
		copy(gray.Pix, data)
		img = gray
	} else {
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for i := 0; i < width*height; i++ {
			rgba.Pix[i*4] = data[i*3]
			rgba.Pix[i*4+1] = data[i*3+1]
			rgba.Pix[i*4+2] = data[i*3+2]
			rgba.Pix[i*4+3] = 0xff
		}
		img = rgba
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func colorComponents(cs pdf.Value) int {
	if cs.Kind() == pdf.Array && cs.Len() > 1 && cs.Index(0).Name() == "ICCBased" {
		return int(cs.Index(1).Key("N").Int64())
	}
	switch cs.Name() {
	case "DeviceGray", "CalGray":
		return 1
	case "DeviceRGB", "CalRGB":
		return 3
	default:
		return 0
	}
}

// readStream decodes a stream, converting the pdf package's panics on
// unsupported filters into errors.
func readStream(obj pdf.Value) (data []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			data, err = nil, fmt.Errorf("decoding stream: %v", rec)
		}
	}()
	rc := obj.Reader()
	defer rc.Close()
	return io.ReadAll(rc)
}

// jpegPool holds the JPEG streams found in the raw file, keyed by pixel
// size. The pdf package cannot return DCT-encoded streams undecoded, so
// image XObjects are matched to these by their declared dimensions.
type jpegPool struct {
	bySize map[[2]int][][]byte
}

func newJPEGPool(content []byte) *jpegPool {
	pool := &jpegPool{bySize: make(map[[2]int][][]byte)}
	rest := content
	for {
		i := bytes.Index(rest, []byte("stream"))
		if i < 0 {
			break
		}
		rest = rest[i+len("stream"):]
		body := bytes.TrimPrefix(bytes.TrimPrefix(rest, []byte("\r")), []byte("\n"))
		if !bytes.HasPrefix(body, []byte{0xff, 0xd8, 0xff}) {
			continue
		}
		end := bytes.Index(body, []byte("endstream"))
		if end < 0 {
			break
		}
		payload := bytes.TrimRight(body[:end], "\r\n")
		rest = body[end+len("endstream"):]

		cfg, err := jpeg.DecodeConfig(bytes.NewReader(payload))
		if err != nil {
			continue
		}
		key := [2]int{cfg.Width, cfg.Height}
		pool.bySize[key] = append(pool.bySize[key], bytes.Clone(payload))
	}
	return pool
}

// take returns the next unused JPEG of the given size, or nil.
func (p *jpegPool) take(width, height int) []byte {
	key := [2]int{width, height}
	queue := p.bySize[key]
	if len(queue) == 0 {
		return nil
	}
	p.bySize[key] = queue[1:]
	return queue[0]
}
