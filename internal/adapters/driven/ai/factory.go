// Package ai provides factory functions for creating model service adapters.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/strata/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/strata/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/strata/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/strata/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/strata/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
	"github.com/custodia-labs/strata/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// chatService is implemented by every chat adapter. One adapter type serves
// both completion and vision for its provider.
type chatService interface {
	driven.CompletionService
	driven.VisionService
}

// InitResult contains the result of model service initialisation.
// Services that failed to initialise are nil and described in Warnings.
type InitResult struct {
	Embedding  driven.EmbeddingService
	Completion driven.CompletionService
	Vision     driven.VisionService
	Warnings   []string
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.Embedding != nil {
		r.Embedding.Close()
	}
	if r.Completion != nil {
		r.Completion.Close()
	}
	if r.Vision != nil {
		r.Vision.Close()
	}
}

// Init creates the configured model services, pings them and decorates
// them with the rate limiter and the embedding cache. Unreachable services
// are left nil: ingestion then downgrades vision blocks, and queries return
// context without answers.
func Init(ctx context.Context, settings domain.AppSettings, hits HitRecorder) *InitResult {
	result := &InitResult{}
	limiter := NewLimiter(settings.RateLimit)

	warn := func(kind string, err error) {
		msg := fmt.Sprintf("%s: %v", kind, err)
		logger.Warn("%s", msg)
		result.Warnings = append(result.Warnings, msg)
	}

	if embed, err := CreateEmbeddingService(&settings.Embedding, settings.Index.Dimensions); err != nil {
		warn("embedding", err)
	} else if embed != nil {
		if err := ping(ctx, embed.Ping); err != nil {
			embed.Close()
			warn("embedding", fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err))
		} else {
			// Cache outside the limiter so hits never wait for a token.
			embed = LimitEmbedding(embed, limiter)
			if settings.Cache.EmbeddingEntries > 0 {
				embed = NewCachedEmbedder(embed, settings.Cache.EmbeddingEntries, hits)
			}
			result.Embedding = embed
		}
	}

	if llm, err := createChatService(&settings.LLM); err != nil {
		warn("llm", err)
	} else if llm != nil {
		if err := ping(ctx, llm.Ping); err != nil {
			llm.Close()
			warn("llm", fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err))
		} else {
			result.Completion = LimitCompletion(llm, limiter)
		}
	}

	// Vision is only used during ingestion and pinged lazily by its first call.
	if vision, err := createChatService(&settings.Vision); err != nil {
		warn("vision", err)
	} else if vision != nil {
		result.Vision = LimitVision(vision, limiter)
	}

	return result
}

func ping(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return fn(ctx)
}

// CreateEmbeddingService creates the embedding service for settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.ModelSettings, dimensions int) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Timeout:    settings.Timeout,
			Dimensions: dimensions,
		})
	case domain.AIProviderOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Timeout:    settings.Timeout,
			Dimensions: dimensions,
		})
	default:
		return nil, fmt.Errorf("%w: %s does not support embeddings", domain.ErrInvalidInput, settings.Provider)
	}
}

// CreateCompletionService creates the completion service for settings.
// Returns nil if the provider is not configured.
func CreateCompletionService(settings *domain.ModelSettings) (driven.CompletionService, error) {
	svc, err := createChatService(settings)
	if svc == nil || err != nil {
		return nil, err
	}
	return svc, nil
}

// CreateVisionService creates the vision service for settings.
// Returns nil if the provider is not configured.
func CreateVisionService(settings *domain.ModelSettings) (driven.VisionService, error) {
	svc, err := createChatService(settings)
	if svc == nil || err != nil {
		return nil, err
	}
	return svc, nil
}

func createChatService(settings *domain.ModelSettings) (chatService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewService(ollamallm.Config{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})
	case domain.AIProviderOpenAI:
		return openaillm.NewService(openaillm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})
	case domain.AIProviderGroq:
		baseURL := settings.BaseURL
		if baseURL == "" {
			baseURL = openaillm.GroqBaseURL
		}
		return openaillm.NewService(openaillm.Config{
			APIKey:  settings.APIKey,
			BaseURL: baseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
			Service: "groq",
		})
	case domain.AIProviderAnthropic:
		return anthropicllm.NewService(anthropicllm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})
	default:
		return nil, errors.New("unknown provider: " + string(settings.Provider))
	}
}
