// Package ollama provides completion and vision adapters using Ollama.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/custodia-labs/strata/internal/adapters/driven/modelhttp"
	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driven"
)

// Ensure Service implements both model interfaces.
var (
	_ driven.CompletionService = (*Service)(nil)
	_ driven.VisionService     = (*Service)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 120 * time.Second
)

const serviceName = "ollama chat"

// Config holds configuration for the Ollama chat service.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the chat model. Vision requests need a multimodal model
	// such as llava.
	Model string

	// Timeout bounds one request (default: 120s).
	Timeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Service runs chat completions, with images for vision requests.
type Service struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

// NewService creates a new Ollama chat service.
func NewService(cfg Config) (*Service, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	return &Service{
		client:  api.NewClient(base, cfg.HTTPClient),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// Complete runs one chat completion.
func (s *Service) Complete(ctx context.Context, req driven.CompletionRequest) (*driven.Completion, error) {
	var msgs []api.Message
	if req.System != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}

	opts := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	return s.chat(ctx, msgs, opts)
}

// Extract sends one image with the prompt. Rendered table text arrives
// without an image and is sent as plain text. Ollama reports no
// confidence, so successful answers carry 1.
func (s *Service) Extract(ctx context.Context, req driven.VisionRequest) (*driven.VisionResult, error) {
	msg := api.Message{Role: "user", Content: req.Prompt}
	if len(req.Image) > 0 {
		msg.Images = []api.ImageData{req.Image}
	}
	c, err := s.chat(ctx, []api.Message{msg}, map[string]any{"temperature": 0})
	if err != nil {
		return nil, err
	}
	return &driven.VisionResult{Text: c.Text, Confidence: 1}, nil
}

func (s *Service) chat(ctx context.Context, msgs []api.Message, opts map[string]any) (*driven.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stream := false
	req := &api.ChatRequest{Model: s.model, Messages: msgs, Stream: &stream, Options: opts}

	var sb strings.Builder
	var usage domain.TokenUsage
	err := s.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		if resp.Done {
			usage = domain.TokenUsage{InputTokens: resp.PromptEvalCount, OutputTokens: resp.EvalCount}
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &driven.Completion{Text: strings.TrimSpace(sb.String()), Usage: usage}, nil
}

// ModelName returns the name of the model being used.
func (s *Service) ModelName() string {
	return s.model
}

// Ping checks the server is up and the model is pulled.
func (s *Service) Ping(ctx context.Context) error {
	list, err := s.client.List(ctx)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", mapError(err))
	}
	for _, m := range list.Models {
		if m.Name == s.model || m.Model == s.model || m.Name == s.model+":latest" {
			return nil
		}
	}
	return fmt.Errorf("ollama: model %q not found, run 'ollama pull %s'", s.model, s.model)
}

// Close releases resources.
func (s *Service) Close() error {
	return nil
}

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
