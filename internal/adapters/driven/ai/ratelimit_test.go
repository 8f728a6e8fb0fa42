package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/strata/internal/core/domain"
)

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(domain.RateLimitSettings{}))

	l := NewLimiter(domain.RateLimitSettings{RequestsPerSecond: 2, Burst: 0})
	require.NotNil(t, l)
	assert.Equal(t, rate.Limit(2), l.Limit())
	assert.Equal(t, 1, l.Burst())
}

func TestLimitEmbedding_NilLimiterIsIdentity(t *testing.T) {
	inner := &countingEmbedder{}
	assert.Same(t, inner, LimitEmbedding(inner, nil))
	assert.Nil(t, LimitCompletion(nil, rate.NewLimiter(1, 1)))
}

func TestLimitEmbedding_WaitsForToken(t *testing.T) {
	inner := &countingEmbedder{}
	limited := LimitEmbedding(inner, rate.NewLimiter(rate.Every(1e12), 1))

	_, err := limited.Embed(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = limited.Embed(ctx, "second")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "test-model", limited.ModelName())
}
