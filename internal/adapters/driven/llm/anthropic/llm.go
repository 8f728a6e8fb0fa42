// Package anthropic provides completion and vision adapters using the
// Anthropic Messages API.
package anthropic

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
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-3-5-sonnet-latest"
	DefaultTimeout = 120 * time.Second

	// anthropicVersion is the required API version header.
	anthropicVersion = "2023-06-01"

	defaultMaxTokens = 1024
	visionMaxTokens  = 2048
)

// Config holds configuration for the Anthropic service.
type Config struct {
	// APIKey is the Anthropic API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.anthropic.com).
	BaseURL string

	// Model is the model to use (default: claude-3-5-sonnet-latest).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Service runs completions against the Messages API.
type Service struct {
	api   *modelhttp.Client
	model string
}

// messagesRequest is the /v1/messages request format.
type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature"`
}

// message carries either plain text content or content blocks.
type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// messagesResponse is the /v1/messages response format.
type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewService creates a new Anthropic service.
func NewService(cfg Config) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
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
			Service: "anthropic",
			BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
			Headers: map[string]string{
				"x-api-key":         cfg.APIKey,
				"anthropic-version": anthropicVersion,
			},
			HTTP: &http.Client{Timeout: cfg.Timeout},
		},
		model: cfg.Model,
	}, nil
}

// Complete runs one completion. System messages in the conversation are
// lifted into the system prompt, which the API takes separately.
func (s *Service) Complete(ctx context.Context, req driven.CompletionRequest) (*driven.Completion, error) {
	system := []string{}
	if req.System != "" {
		system = append(system, req.System)
	}
	var msgs []message
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		msgs = append(msgs, message{Role: m.Role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	return s.send(ctx, messagesRequest{
		Model:       s.model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		System:      strings.Join(system, "\n\n"),
		Temperature: req.Temperature,
	})
}

// Extract sends one base64 image block ahead of the prompt. Rendered table
// text arrives without an image and is sent as plain text. The API reports
// no confidence, so successful answers carry 1.
func (s *Service) Extract(ctx context.Context, req driven.VisionRequest) (*driven.VisionResult, error) {
	var content any = req.Prompt
	if len(req.Image) > 0 {
		mime := req.MIMEType
		if mime == "" {
			mime = http.DetectContentType(req.Image)
		}
		content = []contentBlock{
			{Type: "image", Source: &imageSource{
				Type:      "base64",
				MediaType: mime,
				Data:      base64.StdEncoding.EncodeToString(req.Image),
			}},
			{Type: "text", Text: req.Prompt},
		}
	}
	c, err := s.send(ctx, messagesRequest{
		Model:     s.model,
		Messages:  []message{{Role: "user", Content: content}},
		MaxTokens: visionMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return &driven.VisionResult{Text: c.Text, Confidence: 1}, nil
}

func (s *Service) send(ctx context.Context, req messagesRequest) (*driven.Completion, error) {
	var resp messagesResponse
	if err := s.api.PostJSON(ctx, "/v1/messages", req, &resp); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &domain.ModelServiceError{Service: s.api.Service, Message: "no text content returned"}
	}
	return &driven.Completion{
		Text:  strings.TrimSpace(text.String()),
		Usage: domain.TokenUsage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}, nil
}

// ModelName returns the name of the model being used.
func (s *Service) ModelName() string {
	return s.model
}

// Ping validates the API key by listing models, without running inference.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.api.Get(ctx, "/v1/models"); err != nil {
		return fmt.Errorf("anthropic: ping failed: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *Service) Close() error {
	return nil
}
