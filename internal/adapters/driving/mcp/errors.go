// Package mcp provides an MCP (Model Context Protocol) server adapter for Strata.
// It lets AI assistants ask geological questions, ingest files and inspect
// usage through the same ports the CLI uses.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")

// errNotConfigured is returned by tools whose optional port is nil.
var errNotConfigured = errors.New("mcp: service not configured")
