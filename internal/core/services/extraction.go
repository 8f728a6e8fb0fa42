package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/logger"
)

// Ensure Extractor can receive custom prompts.
var _ driven.PromptStoreAware = (*Extractor)(nil)

// Fallback prompts used when no prompt store is configured.
const (
	defaultVisionPagePrompt = "Transcribe all readable text in this geological document image. " +
		"Describe any charts, graphs or well logs, including axes, units and depth ranges."
	defaultVisionTablePrompt = "Reconstruct this table as pipe-delimited rows, one row per line, header first."
)

// Extractor routes blocks through the decision engine and recovers their text
// along the chosen path. Vision calls run concurrently; results keep block order.
type Extractor struct {
	vision  driven.VisionService
	prompts driven.PromptStore
	usage   *UsageTracker
	retry   domain.RetrySettings
	workers int
}

// NewExtractor creates an extractor.
// The vision service is optional (can be nil): escalated blocks are then
// downgraded to whatever the cheap pre-check recovered.
func NewExtractor(vision driven.VisionService, usage *UsageTracker, retry domain.RetrySettings, workers int) *Extractor {
	return &Extractor{
		vision:  vision,
		usage:   usage,
		retry:   retry,
		workers: max(workers, 1),
	}
}

// SetPromptStore sets the store the vision prompts are loaded from.
func (e *Extractor) SetPromptStore(store driven.PromptStore) {
	e.prompts = store
}

// Extract decides and extracts every block. Per-block failures are reported
// in the outcomes; only cancellation returns an error.
func (e *Extractor) Extract(
	ctx context.Context, blocks []domain.ContentBlock, policy domain.RoutingPolicy,
) ([]domain.ExtractedBlock, []domain.BlockOutcome, error) {
	logger.Section("Extraction")
	defer logger.Timed("extraction")()

	extracted := make([]domain.ExtractedBlock, len(blocks))
	outcomes := make([]domain.BlockOutcome, len(blocks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, b := range blocks {
		d := Decide(b, policy)
		e.usage.RecordDecision(b.Type, d)
		logger.Debug("block %s (%s): %s conf=%.2f %v", b.ID, b.Type, d.Path, d.Confidence, d.Rationale)

		if reason := b.Attribute(domain.AttrDecodeError); reason != "" {
			extracted[i], outcomes[i] = undecodable(b, d, reason)
			continue
		}
		if !d.Escalated() {
			extracted[i], outcomes[i] = cheapExtraction(b, d)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			extracted[i], outcomes[i] = e.visionExtraction(gctx, b, d, policy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	for _, o := range outcomes {
		e.usage.RecordBlockStatus(o.Status)
	}
	return extracted, outcomes, nil
}

func newOutcome(b domain.ContentBlock, d domain.ExtractionDecision) domain.BlockOutcome {
	return domain.BlockOutcome{
		BlockID:   b.ID,
		PageIndex: b.PageIndex,
		Sequence:  b.Sequence,
		Type:      b.Type,
		Decision:  d,
		Status:    domain.BlockSucceeded,
	}
}

func cheapExtraction(b domain.ContentBlock, d domain.ExtractionDecision) (domain.ExtractedBlock, domain.BlockOutcome) {
	return domain.ExtractedBlock{Block: b, Text: d.CheapText, Path: domain.PathTextOnly}, newOutcome(b, d)
}

// undecodable reports a block the normaliser could not decode.
func undecodable(b domain.ContentBlock, d domain.ExtractionDecision, reason string) (domain.ExtractedBlock, domain.BlockOutcome) {
	outcome := newOutcome(b, d)
	outcome.Status = domain.BlockFailed
	outcome.Error = fmt.Sprintf("%v: %s", domain.ErrCorruptInput, reason)
	logger.Warn("block %s (page %d) could not be decoded: %s", b.ID, b.PageIndex+1, reason)
	return domain.ExtractedBlock{Block: b, Path: d.Path}, outcome
}

// visionExtraction calls the vision service for one escalated block.
// Failures fall back to the cheap text when there is any.
func (e *Extractor) visionExtraction(
	ctx context.Context, b domain.ContentBlock, d domain.ExtractionDecision, policy domain.RoutingPolicy,
) (domain.ExtractedBlock, domain.BlockOutcome) {
	outcome := newOutcome(b, d)

	text, calls, err := e.callVision(ctx, b, policy)
	outcome.VisionCalls = calls
	if err == nil {
		return domain.ExtractedBlock{Block: b, Text: text, Path: domain.PathVision}, outcome
	}
	if ctx.Err() != nil {
		outcome.Status = domain.BlockFailed
		outcome.Error = ctx.Err().Error()
		return domain.ExtractedBlock{Block: b, Path: domain.PathVision}, outcome
	}

	outcome.Error = err.Error()
	if strings.TrimSpace(d.CheapText) != "" {
		logger.Debug("block %s downgraded: %v", b.ID, err)
		outcome.Status = domain.BlockDowngraded
		return domain.ExtractedBlock{Block: b, Text: d.CheapText, Path: domain.PathTextOnly}, outcome
	}

	logger.Warn("block %s (page %d) extraction failed: %v", b.ID, b.PageIndex+1, err)
	outcome.Status = domain.BlockFailed
	return domain.ExtractedBlock{Block: b, Path: domain.PathVision}, outcome
}

// errLowConfidence marks a vision result too uncertain to keep.
var errLowConfidence = errors.New("vision confidence below minimum")

// callVision returns the transcribed text and the number of attempts made.
func (e *Extractor) callVision(
	ctx context.Context, b domain.ContentBlock, policy domain.RoutingPolicy,
) (string, int, error) {
	if e.vision == nil {
		return "", 0, domain.ErrVisionUnavailable
	}
	req, err := e.visionRequest(b)
	if err != nil {
		return "", 0, err
	}

	calls := 0
	res, err := retry(ctx, e.retry, func(ctx context.Context) (*driven.VisionResult, error) {
		calls++
		res, err := e.vision.Extract(ctx, req)
		e.usage.RecordVisionCall(err)
		return res, err
	})
	if err != nil {
		return "", calls, fmt.Errorf("%w: %w", domain.ErrExtractionFailure, err)
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", calls, fmt.Errorf("%w: vision model returned no text", domain.ErrExtractionFailure)
	}
	if res.Confidence < policy.MinVisionConfidence {
		return "", calls, fmt.Errorf("%w: %.2f < %.2f", errLowConfidence, res.Confidence, policy.MinVisionConfidence)
	}
	return text, calls, nil
}

// visionRequest builds the request for a block. Images are sent as is;
// tables that failed to parse travel as text inside the prompt.
func (e *Extractor) visionRequest(b domain.ContentBlock) (driven.VisionRequest, error) {
	if b.Type == domain.BlockTable && !strings.HasPrefix(b.PayloadMIME, "image/") {
		if !utf8.Valid(b.Payload) || len(b.Payload) == 0 {
			return driven.VisionRequest{}, fmt.Errorf("%w: table payload is not text", domain.ErrExtractionFailure)
		}
		prompt := e.prompt(driven.PromptVisionTable, defaultVisionTablePrompt)
		return driven.VisionRequest{Prompt: prompt + "\n\n" + b.Text()}, nil
	}

	if len(b.Payload) == 0 {
		return driven.VisionRequest{}, fmt.Errorf("%w: image has no decodable payload", domain.ErrExtractionFailure)
	}
	name, fallback := driven.PromptVisionPage, defaultVisionPagePrompt
	if b.Type == domain.BlockTable {
		name, fallback = driven.PromptVisionTable, defaultVisionTablePrompt
	}
	return driven.VisionRequest{
		Prompt:   e.prompt(name, fallback),
		Image:    b.Payload,
		MIMEType: b.PayloadMIME,
	}, nil
}

func (e *Extractor) prompt(name, fallback string) string {
	if e.prompts == nil {
		return fallback
	}
	p, err := e.prompts.Load(name)
	if err != nil || strings.TrimSpace(p) == "" {
		logger.Debug("prompt %s unavailable, using built-in: %v", name, err)
		return fallback
	}
	return p
}
