package domain

import "maps"

// BlockType classifies the content of a ContentBlock.
type BlockType string

// Block types produced by normalisers.
const (
	// BlockText is running prose or a text section.
	BlockText BlockType = "text"

	// BlockTable is tabular data, carried as delimited text.
	BlockTable BlockType = "table"

	// BlockImage is a raster image: a figure, a scan or a chart.
	BlockImage BlockType = "image"
)

// IsValid returns true if the block type is recognised.
func (t BlockType) IsValid() bool {
	switch t {
	case BlockText, BlockTable, BlockImage:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t BlockType) String() string {
	return string(t)
}

// Well-known ContentBlock attribute keys.
const (
	// AttrTextLayer holds text embedded in an image (PNG text chunks, JPEG comments).
	AttrTextLayer = "text_layer"

	// AttrWidth is the pixel width of an image block.
	AttrWidth = "width"

	// AttrHeight is the pixel height of an image block.
	AttrHeight = "height"

	// AttrFilter is the PDF stream filter an image was stored with.
	AttrFilter = "filter"

	// AttrSheet is the worksheet name of a spreadsheet table.
	AttrSheet = "sheet"

	// AttrSection is the section name of a well-log block.
	AttrSection = "section"

	// AttrDelimiter records the delimiter of a table payload when known.
	AttrDelimiter = "delimiter"

	// AttrDecodeError marks a block whose content the normaliser could not
	// decode. Extraction reports such blocks as failed.
	AttrDecodeError = "decode_error"
)

// BoundingRegion locates a block on its page, in page units.
type BoundingRegion struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// ContentBlock is one typed unit of a normalised document.
// Blocks are immutable once created; use Clone before modifying a copy.
type ContentBlock struct {
	// ID is the unique identifier for the block.
	ID string

	// DocumentID links to the source document.
	DocumentID string

	// PageIndex is the zero-based page (or sheet) the block came from.
	PageIndex int

	// Sequence is the block's position in document order.
	Sequence int

	// Type classifies the payload.
	Type BlockType

	// Payload is the raw content: UTF-8 text, delimited rows or image bytes.
	Payload []byte

	// PayloadMIME is the media type of the payload (e.g. "image/png").
	PayloadMIME string

	// Region is the on-page location when the format exposes one.
	Region *BoundingRegion

	// Attributes holds format-specific details (see Attr* keys).
	Attributes map[string]string
}

// Text returns the payload interpreted as UTF-8 text.
func (b ContentBlock) Text() string {
	return string(b.Payload)
}

// Attribute returns the named attribute, or "" when absent.
func (b ContentBlock) Attribute(key string) string {
	if b.Attributes == nil {
		return ""
	}
	return b.Attributes[key]
}

// Clone returns a deep copy of the block.
func (b ContentBlock) Clone() ContentBlock {
	out := b
	if b.Payload != nil {
		out.Payload = append([]byte(nil), b.Payload...)
	}
	if b.Region != nil {
		r := *b.Region
		out.Region = &r
	}
	if b.Attributes != nil {
		out.Attributes = maps.Clone(b.Attributes)
	}
	return out
}
