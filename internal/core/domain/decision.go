package domain

import "slices"

// ExtractionPath is the extraction route chosen for a block.
type ExtractionPath string

// Extraction paths.
const (
	// PathTextOnly extracts content with local parsing only.
	PathTextOnly ExtractionPath = "text_only"

	// PathVision sends the block to a vision-capable model.
	PathVision ExtractionPath = "vision"
)

// IsValid returns true if the path is recognised.
func (p ExtractionPath) IsValid() bool {
	return p == PathTextOnly || p == PathVision
}

// String returns the string representation.
func (p ExtractionPath) String() string {
	return string(p)
}

// RationaleTag explains why a routing decision was made.
type RationaleTag string

// Rationale tags recorded on decisions.
const (
	RationaleTextBlock     RationaleTag = "text_block"
	RationaleTableParsed   RationaleTag = "table_parsed"
	RationaleTableRagged   RationaleTag = "table_ragged_columns"
	RationaleTableNoDelim  RationaleTag = "table_no_delimiter"
	RationaleTableTooShort RationaleTag = "table_too_few_rows"
	RationaleTableBinary   RationaleTag = "table_binary_payload"

	RationaleImageTextLayer   RationaleTag = "image_text_layer"
	RationaleImageTemplate    RationaleTag = "image_known_template"
	RationaleImageNoTextLayer RationaleTag = "image_no_text_layer"
	RationaleImageSparseText  RationaleTag = "image_text_layer_sparse"
	RationaleImageLowConf     RationaleTag = "image_low_confidence"

	RationaleForcedVision RationaleTag = "forced_vision"
)

// ExtractionDecision is the routing verdict for exactly one ContentBlock.
// Decisions are values: re-running the engine yields a new decision.
type ExtractionDecision struct {
	// BlockID identifies the block this decision belongs to.
	BlockID string

	// Path is the chosen extraction route.
	Path ExtractionPath

	// Confidence is the cheap path's confidence in [0, 1].
	Confidence float64

	// Rationale lists the reasons behind the decision.
	// Escalations to vision always carry at least one tag.
	Rationale []RationaleTag

	// CheapText is whatever the cheap pre-check recovered, possibly empty.
	// It is the fallback content when vision is unavailable.
	CheapText string
}

// Escalated returns true if the block needs a vision model.
func (d ExtractionDecision) Escalated() bool {
	return d.Path == PathVision
}

// HasRationale reports whether the decision carries the given tag.
func (d ExtractionDecision) HasRationale(tag RationaleTag) bool {
	return slices.Contains(d.Rationale, tag)
}

// RoutingPolicy parameterises the decision engine.
// It is passed explicitly on every call; there is no global vision mode.
type RoutingPolicy struct {
	// ForceVision escalates every table and image block.
	ForceVision bool

	// MinTableRows is the minimum number of rows a cheap table parse needs.
	MinTableRows int

	// RaggedRowTolerance is the fraction of rows allowed a different column count.
	RaggedRowTolerance float64

	// MinTextLayerChars is the shortest image text layer worth trusting at all.
	MinTextLayerChars int

	// TextLayerSaturation is the text layer length at which confidence reaches 1.
	TextLayerSaturation int

	// TemplateBonus is added when the text layer matches a known template.
	TemplateBonus float64

	// PrecheckConfidence is the threshold at or above which images stay text_only.
	PrecheckConfidence float64

	// MinVisionConfidence is the lowest vision confidence accepted when
	// cheap text is available to fall back on.
	MinVisionConfidence float64
}

// DefaultRoutingPolicy returns the routing thresholds used out of the box.
func DefaultRoutingPolicy() RoutingPolicy {
	return RoutingPolicy{
		ForceVision:         false,
		MinTableRows:        2,
		RaggedRowTolerance:  0.1,
		MinTextLayerChars:   20,
		TextLayerSaturation: 400,
		TemplateBonus:       0.3,
		PrecheckConfidence:  0.6,
		MinVisionConfidence: 0.3,
	}
}
