package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Uniqueness tests that all errors are distinct
func TestErrors_Uniqueness(t *testing.T) {
	allErrors := []error{
		ErrNotFound,
		ErrInvalidInput,
		ErrNotImplemented,
		ErrIngestInProgress,
		ErrLLMUnavailable,
		ErrEmbeddingUnavailable,
		ErrVisionUnavailable,
		ErrUnsupportedFormat,
		ErrCorruptInput,
		ErrExtractionFailure,
		ErrEmbeddingFailure,
		ErrDimensionMismatch,
		ErrIndexUnavailable,
		ErrAgentRetrievalFailure,
		ErrInvalidTransition,
		ErrNoAgentSucceeded,
		ErrModelServiceTimeout,
		ErrRateLimited,
	}

	for i, err1 := range allErrors {
		assert.NotEmpty(t, err1.Error())
		for j, err2 := range allErrors {
			if i != j {
				assert.False(t, errors.Is(err1, err2),
					"Error %v should not match error %v", err1, err2)
			}
		}
	}
}

func TestDimensionMismatchError(t *testing.T) {
	err := fmt.Errorf("search: %w", &DimensionMismatchError{Expected: 384, Got: 768})

	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.Contains(t, err.Error(), "expected 384, got 768")

	var dme *DimensionMismatchError
	assert.True(t, errors.As(err, &dme))
	assert.Equal(t, 384, dme.Expected)
	assert.Equal(t, 768, dme.Got)
}

func TestModelServiceError_RateLimit(t *testing.T) {
	err := &ModelServiceError{Service: "openai chat", StatusCode: http.StatusTooManyRequests, Message: "slow down"}

	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, "openai chat: status 429: slow down", err.Error())
}

func TestModelServiceError_NoStatus(t *testing.T) {
	err := &ModelServiceError{Service: "ollama embed", Message: "empty response"}
	assert.Equal(t, "ollama embed: empty response", err.Error())
	assert.False(t, err.Retryable())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", ErrModelServiceTimeout, true},
		{"wrapped timeout", fmt.Errorf("vision: %w", ErrModelServiceTimeout), true},
		{"rate limited", ErrRateLimited, true},
		{"server error", &ModelServiceError{StatusCode: 503}, true},
		{"request timeout", &ModelServiceError{StatusCode: 408}, true},
		{"bad request", &ModelServiceError{StatusCode: 400}, false},
		{"unauthorised", &ModelServiceError{StatusCode: 401}, false},
		{"corrupt input", ErrCorruptInput, false},
		{"dimension mismatch", &DimensionMismatchError{Expected: 1, Got: 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
