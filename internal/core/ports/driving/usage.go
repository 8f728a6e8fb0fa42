package driving

import "github.com/custodia-labs/strata/internal/core/domain"

// UsageService exposes session cost counters.
type UsageService interface {
	// Snapshot returns the current counters.
	Snapshot() domain.UsageSnapshot

	// Reset starts a new session with zeroed counters.
	Reset() domain.UsageSnapshot
}
