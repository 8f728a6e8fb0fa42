// Package openai provides completion and vision adapters for the OpenAI
// chat completions API and compatible services such as Groq.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

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
	DefaultBaseURL = "https://api.openai.com/v1"
	GroqBaseURL    = "https://api.groq.com/openai/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second

	// visionMaxTokens bounds a page transcription.
	visionMaxTokens = 2048
)

// Config holds configuration for the chat service.
type Config struct {
	// APIKey is the API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Set it to GroqBaseURL for Groq.
	BaseURL string

	// Model is the chat model to use (default: gpt-4o-mini).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// Service names the provider in errors (default: openai).
	Service string
}

// Service runs chat completions against an OpenAI-compatible API.
type Service struct {
	api   *modelhttp.Client
	model string
}

// chatRequest is the /chat/completions request format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

// chatMessage carries either plain text content or content parts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// chatResponse is the /chat/completions response format.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// NewService creates a new chat service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Service == "" {
		cfg.Service = "openai"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", cfg.Service)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Service{
		api: &modelhttp.Client{
			Service: cfg.Service,
			BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
			Headers: map[string]string{"Authorization": "Bearer " + cfg.APIKey},
			HTTP:    &http.Client{Timeout: cfg.Timeout},
		},
		model: cfg.Model,
	}, nil
}

// Complete runs one chat completion.
func (s *Service) Complete(ctx context.Context, req driven.CompletionRequest) (*driven.Completion, error) {
	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}
	return s.chat(ctx, chatRequest{
		Model:       s.model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
}

// Extract sends one image as a data URL alongside the prompt. Rendered
// table text arrives without an image and is sent as plain text. The API
// reports no confidence, so successful answers carry 1.
func (s *Service) Extract(ctx context.Context, req driven.VisionRequest) (*driven.VisionResult, error) {
	var content any = req.Prompt
	if len(req.Image) > 0 {
		mime := req.MIMEType
		if mime == "" {
			mime = http.DetectContentType(req.Image)
		}
		content = []contentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &imageURL{
				URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image),
			}},
		}
	}
	c, err := s.chat(ctx, chatRequest{
		Model:     s.model,
		Messages:  []chatMessage{{Role: "user", Content: content}},
		MaxTokens: visionMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return &driven.VisionResult{Text: c.Text, Confidence: 1}, nil
}

func (s *Service) chat(ctx context.Context, req chatRequest) (*driven.Completion, error) {
	var resp chatResponse
	if err := s.api.PostJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.ModelServiceError{Service: s.api.Service, Message: "no response choices returned"}
	}
	return &driven.Completion{
		Text: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: domain.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// ModelName returns the name of the model being used.
func (s *Service) ModelName() string {
	return s.model
}

// Ping validates the API key by listing models, without running inference.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.api.Get(ctx, "/models"); err != nil {
		return fmt.Errorf("%s: ping failed: %w", s.api.Service, err)
	}
	return nil
}

// Close releases resources.
func (s *Service) Close() error {
	return nil
}
