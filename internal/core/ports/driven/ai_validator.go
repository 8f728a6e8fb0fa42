package driven

import (
	"context"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// AIConfigValidator validates model provider configurations.
// Implementations verify that configurations are valid by testing connectivity
// to the underlying model services.
type AIConfigValidator interface {
	// ValidateEmbedding validates an embedding configuration by pinging the provider.
	// Returns nil if the configuration is valid or not configured.
	ValidateEmbedding(ctx context.Context, config *domain.ModelSettings) error

	// ValidateLLM validates a completion configuration by pinging the provider.
	// Returns nil if the configuration is valid or not configured.
	ValidateLLM(ctx context.Context, config *domain.ModelSettings) error
}
