package ai

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
)

// Ensure the limited wrappers implement their interfaces.
var (
	_ driven.EmbeddingService  = (*limitedEmbedder)(nil)
	_ driven.CompletionService = (*limitedCompleter)(nil)
	_ driven.VisionService     = (*limitedVision)(nil)
)

// NewLimiter returns a token bucket for the settings, or nil when
// requests are unlimited.
func NewLimiter(cfg domain.RateLimitSettings) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// LimitEmbedding makes every embedding request wait for a token.
// A nil limiter returns svc unchanged.
func LimitEmbedding(svc driven.EmbeddingService, l *rate.Limiter) driven.EmbeddingService {
	if svc == nil || l == nil {
		return svc
	}
	return &limitedEmbedder{EmbeddingService: svc, limiter: l}
}

// LimitCompletion makes every completion wait for a token.
func LimitCompletion(svc driven.CompletionService, l *rate.Limiter) driven.CompletionService {
	if svc == nil || l == nil {
		return svc
	}
	return &limitedCompleter{CompletionService: svc, limiter: l}
}

// LimitVision makes every vision request wait for a token.
func LimitVision(svc driven.VisionService, l *rate.Limiter) driven.VisionService {
	if svc == nil || l == nil {
		return svc
	}
	return &limitedVision{VisionService: svc, limiter: l}
}

type limitedEmbedder struct {
	driven.EmbeddingService
	limiter *rate.Limiter
}

func (e *limitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.EmbeddingService.Embed(ctx, text)
}

func (e *limitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.EmbeddingService.EmbedBatch(ctx, texts)
}

type limitedCompleter struct {
	driven.CompletionService
	limiter *rate.Limiter
}

func (c *limitedCompleter) Complete(ctx context.Context, req driven.CompletionRequest) (*driven.Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.CompletionService.Complete(ctx, req)
}

type limitedVision struct {
	driven.VisionService
	limiter *rate.Limiter
}

func (v *limitedVision) Extract(ctx context.Context, req driven.VisionRequest) (*driven.VisionResult, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return v.VisionService.Extract(ctx, req)
}
