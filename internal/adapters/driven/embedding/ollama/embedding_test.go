package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/strata/internal/core/domain"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *EmbeddingService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc, err := NewEmbeddingService(Config{BaseURL: srv.URL, Model: "all-minilm", Dimensions: 2, HTTPClient: srv.Client()})
	require.NoError(t, err)
	return svc
}

func TestEmbedBatch(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)
		assert.Equal(t, []string{"porosity", "gamma ray"}, req.Input)
		_, _ = w.Write([]byte(`{"model":"all-minilm","embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	})

	vecs, err := svc.EmbedBatch(context.Background(), []string{"porosity", "gamma ray"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
	assert.Equal(t, 2, svc.Dimensions())
	assert.Equal(t, "all-minilm", svc.ModelName())
}

func TestEmbed_CountMismatch(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	})
	_, err := svc.Embed(context.Background(), "x")
	var mse *domain.ModelServiceError
	assert.ErrorAs(t, err, &mse)
}

func TestEmbed_StatusError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"server busy"}`))
	})
	_, err := svc.Embed(context.Background(), "x")
	var mse *domain.ModelServiceError
	require.ErrorAs(t, err, &mse)
	assert.Equal(t, http.StatusServiceUnavailable, mse.StatusCode)
	assert.True(t, domain.IsTransient(err))
}

func TestEmbedBatch_Empty(t *testing.T) {
	svc := newTestService(t, func(http.ResponseWriter, *http.Request) { t.Fatal("unexpected request") })
	vecs, err := svc.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestPing(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"all-minilm:latest","model":"all-minilm:latest"}]}`))
	})
	require.NoError(t, svc.Ping(context.Background()))

	missing, err := NewEmbeddingService(Config{BaseURL: "http://127.0.0.1:1", Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.Error(t, missing.Ping(context.Background()))
}
