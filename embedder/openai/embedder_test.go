package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/docqa/embedder"
	"github.com/w-h-a/docqa/errs"
)

func TestEmbed(t *testing.T) {
	var got struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}],"model":"text-embedding-3-small"}`)
	}))
	defer srv.Close()

	e, err := NewEmbedder(embedder.WithApiKey("test-key"), embedder.WithBaseURL(srv.URL+"/v1"))
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "invoice total")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, defaultModel, got.Model)
	assert.Equal(t, []string{"invoice total"}, got.Input)
}

func TestEmbedServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	e, err := NewEmbedder(embedder.WithApiKey("test-key"), embedder.WithBaseURL(srv.URL+"/v1"))
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "invoice total")
	assert.ErrorIs(t, err, errs.ErrProviderUnavailable)
	assert.True(t, errs.IsRetryable(err))
}

func TestNewEmbedderRequiresKey(t *testing.T) {
	_, err := NewEmbedder()
	assert.ErrorIs(t, err, errs.ErrAuth)
}
