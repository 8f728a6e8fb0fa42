// Package ollama provides an embedding service adapter using Ollama.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/custodia-labs/strata/internal/adapters/driven/modelhttp"
	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "all-minilm"
	DefaultTimeout    = 30 * time.Second
	DefaultDimensions = 384 // all-minilm
)

const serviceName = "ollama embed"

// Config holds configuration for the Ollama embedding service.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model to use (default: all-minilm).
	Model string

	// Timeout bounds one request (default: 30s).
	Timeout time.Duration

	// Dimensions is the embedding vector size (model-dependent).
	Dimensions int

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// EmbeddingService generates embeddings using Ollama.
type EmbeddingService struct {
	client     *api.Client
	model      string
	timeout    time.Duration
	dimensions int
}

// NewEmbeddingService creates a new Ollama embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	return &EmbeddingService{
		client:     api.NewClient(base, cfg.HTTPClient),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request; results keep input order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Embed(ctx, &api.EmbedRequest{Model: s.model, Input: texts})
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &domain.ModelServiceError{
			Service: serviceName,
			Message: fmt.Sprintf("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts)),
		}
	}
	return resp.Embeddings, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping checks the server is up and the model is pulled.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return ping(ctx, s.client, s.model)
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}

// ping lists local models so a missing model is reported before first use.
func ping(ctx context.Context, client *api.Client, model string) error {
	list, err := client.List(ctx)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", mapError(err))
	}
	for _, m := range list.Models {
		if m.Name == model || m.Model == model || m.Name == model+":latest" {
			return nil
		}
	}
	return fmt.Errorf("ollama: model %q not found, run 'ollama pull %s'", model, model)
}

// mapError converts Ollama client errors into model service errors.
func mapError(err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		msg := se.ErrorMessage
		if msg == "" {
			msg = se.Status
		}
		return &domain.ModelServiceError{Service: serviceName, StatusCode: se.StatusCode, Message: msg}
	}
	return modelhttp.Classify(serviceName, err)
}
