package driven

import (
	"context"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// CompletionService produces text answers from prompts.
// This is an optional service - when nil, queries return the merged
// context without an answer.
//
// Implementations may include:
//   - Ollama (local models)
//   - OpenAI and Groq (OpenAI-compatible chat completions)
//   - Anthropic (Claude)
type CompletionService interface {
	// Complete runs one completion request.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// CompletionRequest configures a single completion.
type CompletionRequest struct {
	// System is an optional system prompt.
	System string

	// Messages is the conversation, ending with the user turn.
	Messages []ChatMessage

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// Completion is the result of a completion request.
type Completion struct {
	// Text is the generated answer.
	Text string

	// Usage reports tokens when the provider returns them.
	Usage domain.TokenUsage
}
