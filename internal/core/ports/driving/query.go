package driving

import (
	"context"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// QueryService answers questions by routing them to specialised agents.
type QueryService interface {
	// Query dispatches a question and returns the merged result.
	// A result is returned whenever at least one agent succeeded.
	Query(ctx context.Context, q domain.Query) (*domain.QueryResult, error)

	// Agents returns the loaded agent profiles in configuration order.
	Agents() []domain.AgentProfile
}
