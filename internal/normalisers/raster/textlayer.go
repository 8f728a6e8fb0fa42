package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
)

const maxTextChunk = 1 << 20

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// pngText reads tEXt, zTXt and iTXt chunks. Malformed chunks are skipped.
func pngText(data []byte) textLayer {
	var layer textLayer
	if !bytes.HasPrefix(data, pngSignature) {
		return layer
	}
	rest := data[len(pngSignature):]
	for len(rest) >= 12 {
		length := binary.BigEndian.Uint32(rest[:4])
		kind := string(rest[4:8])
		if uint64(length)+12 > uint64(len(rest)) {
			break
		}
		chunk := rest[8 : 8+length]
		rest = rest[12+length:]

		switch kind {
		case "tEXt":
			if kw, value, ok := bytes.Cut(chunk, []byte{0}); ok {
				layer.add(string(kw), latin1(value))
			}
		case "zTXt":
			kw, value, ok := bytes.Cut(chunk, []byte{0})
			if !ok || len(value) < 1 {
				continue
			}
			if text, err := inflate(value[1:]); err == nil {
				layer.add(string(kw), latin1(text))
			}
		case "iTXt":
			if kw, text, ok := parseITXt(chunk); ok {
				layer.add(kw, text)
			}
		case "IEND":
			return layer
		}
	}
	return layer
}

// parseITXt decodes keyword, flags, language and translated keyword
// before the UTF-8 text.
func parseITXt(chunk []byte) (string, string, bool) {
	kw, rest, ok := bytes.Cut(chunk, []byte{0})
	if !ok || len(rest) < 2 {
		return "", "", false
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		return "", "", false
	}
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		return "", "", false
	}
	if compressed {
		text, err := inflate(rest)
		if err != nil {
			return "", "", false
		}
		rest = text
	}
	return string(kw), string(rest), true
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, maxTextChunk))
}

func latin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// jpegComments reads COM segments up to the start of scan.
func jpegComments(data []byte) textLayer {
	var layer textLayer
	if len(data) < 4 || data[0] != 0xff || data[1] != 0xd8 {
		return layer
	}
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xff {
			break
		}
		marker := data[pos+1]
		if marker == 0xff {
			pos++
			continue
		}
		if marker == 0xda || marker == 0xd9 {
			break
		}
		length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		if length < 2 || pos+2+length > len(data) {
			break
		}
		if marker == 0xfe {
			layer.add("comment", string(bytes.ToValidUTF8(data[pos+4:pos+2+length], nil)))
		}
		pos += 2 + length
	}
	return layer
}
