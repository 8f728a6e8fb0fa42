package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrIngestInProgress indicates the document is already being ingested.
	ErrIngestInProgress = errors.New("ingestion in progress")

	// ErrLLMUnavailable indicates no completion service is configured.
	// Queries return retrieved context without an answer.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVisionUnavailable indicates no vision service is configured.
	// Escalated blocks are downgraded to cheap extraction.
	ErrVisionUnavailable = errors.New("vision service unavailable")

	// Ingestion Errors.

	// ErrUnsupportedFormat indicates no normaliser handles the file.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrCorruptInput indicates the file could not be parsed structurally.
	ErrCorruptInput = errors.New("corrupt input")

	// ErrExtractionFailure indicates a block could not be extracted.
	ErrExtractionFailure = errors.New("extraction failed")

	// ErrEmbeddingFailure indicates a chunk could not be embedded.
	ErrEmbeddingFailure = errors.New("embedding failed")

	// Index Errors.

	// ErrDimensionMismatch indicates a vector length differs from the index.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrIndexUnavailable indicates the index cannot be read or written.
	ErrIndexUnavailable = errors.New("index unavailable")

	// Dispatch Errors.

	// ErrAgentRetrievalFailure indicates one agent's retrieval failed.
	ErrAgentRetrievalFailure = errors.New("agent retrieval failed")

	// ErrInvalidTransition indicates an illegal query state transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoAgentSucceeded indicates every selected agent failed.
	ErrNoAgentSucceeded = errors.New("no agent succeeded")

	// Model Service Errors.

	// ErrModelServiceTimeout indicates a model call exceeded its timeout.
	ErrModelServiceTimeout = errors.New("model service timeout")

	// ErrRateLimited indicates the model service rejected the call for rate.
	ErrRateLimited = errors.New("rate limited")
)

// DimensionMismatchError carries the expected and received vector lengths.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

// Error implements error.
func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Unwrap allows errors.Is(err, ErrDimensionMismatch).
func (e *DimensionMismatchError) Unwrap() error {
	return ErrDimensionMismatch
}

// ModelServiceError is a non-success response from a model endpoint.
type ModelServiceError struct {
	// Service names the endpoint (e.g. "ollama embed").
	Service string

	// StatusCode is the HTTP status, or 0 when not applicable.
	StatusCode int

	// Message is the response body or error text.
	Message string
}

// Error implements error.
func (e *ModelServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Message)
}

// Unwrap maps 429 responses to ErrRateLimited.
func (e *ModelServiceError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

// Retryable reports whether the status indicates a transient condition.
func (e *ModelServiceError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= http.StatusInternalServerError
}

// IsTransient reports whether err is worth retrying:
// timeouts, rate limiting and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrModelServiceTimeout) || errors.Is(err, ErrRateLimited) {
		return true
	}
	var mse *ModelServiceError
	if errors.As(err, &mse) {
		return mse.Retryable()
	}
	return false
}
