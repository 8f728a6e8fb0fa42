package mcp

import (
	"github.com/custodia-labs/strata/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Query answers questions through the agent dispatcher.
	Query driving.QueryService

	// Ingest indexes files.
	Ingest driving.IngestService

	// Document lists and deletes ingested documents.
	Document driving.DocumentService

	// Usage reports session cost counters.
	Usage driving.UsageService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
