package driven

import "context"

// VisionService extracts content from images with a vision-capable model.
// This is an optional service - when nil, blocks routed to vision are
// downgraded to cheap extraction.
type VisionService interface {
	// Extract describes or transcribes one image.
	Extract(ctx context.Context, req VisionRequest) (*VisionResult, error)

	// ModelName returns the name of the vision model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}

// VisionRequest is one image and the instruction for it.
type VisionRequest struct {
	// Prompt tells the model what to extract.
	Prompt string

	// Image is the encoded image (PNG, JPEG) or rendered table text.
	Image []byte

	// MIMEType is the media type of Image.
	MIMEType string
}

// VisionResult is the extracted content.
type VisionResult struct {
	// Text is the model's transcription or description.
	Text string

	// Confidence is the service's confidence in [0, 1], or 1 when not reported.
	Confidence float64
}
