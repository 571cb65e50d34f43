package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/config"
)

func TestTEIClient_Batches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([][]float64, len(req.Inputs))
		for i, s := range req.Inputs {
			out[i] = []float64{float64(len(s)), 1}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := NewTEIClient(&config.EmbeddingConfig{Endpoint: srv.URL, BatchSize: 2})
	vecs, err := c.EmbedStrings(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float64{3, 1}, vecs[2])
	assert.Equal(t, int32(2), calls.Load())

	empty, err := c.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTEIClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewTEIClient(&config.EmbeddingConfig{Endpoint: srv.URL}).EmbedStrings(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "status=503")

	_, err = NewTEIClient(&config.EmbeddingConfig{}).EmbedStrings(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "endpoint is empty")
}

func TestNewEinoEmbedder_Provider(t *testing.T) {
	e, err := NewEinoEmbedder(context.Background(), &config.EmbeddingConfig{Provider: "TEI", Endpoint: "http://localhost:8081"})
	require.NoError(t, err)
	assert.IsType(t, &TEIClient{}, e)

	_, err = NewEinoEmbedder(context.Background(), &config.EmbeddingConfig{Provider: "cohere", Endpoint: "http://x"})
	assert.Error(t, err)

	_, err = NewEinoEmbedder(context.Background(), &config.EmbeddingConfig{})
	assert.Error(t, err)
}
