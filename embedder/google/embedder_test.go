package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/docqa/embedder"
	"github.com/w-h-a/docqa/errs"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) embedder.Embedder {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e, err := NewEmbedder(
		embedder.WithApiKey("test-key"),
		embedder.WithBaseURL(srv.URL),
	)
	require.NoError(t, err)

	return e
}

func TestEmbed(t *testing.T) {
	var (
		path string
		got  struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		}
	)

	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"embedding":{"values":[0.25,0.5,0.75]}}`)
	})

	vec, err := e.Embed(context.Background(), "invoice total 42")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, 0.75}, vec)

	assert.True(t, strings.HasSuffix(path, "/models/"+defaultModel+":embedContent"), path)
	require.Len(t, got.Content.Parts, 1)
	assert.Equal(t, "invoice total 42", got.Content.Parts[0].Text)
}

func TestEmbedClassifiesFailures(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := e.Embed(context.Background(), "hi")
	assert.ErrorIs(t, err, errs.ErrAuth)

	e = newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"code":500,"message":"Internal error.","status":"INTERNAL"}}`)
	})

	_, err = e.Embed(context.Background(), "hi")
	assert.ErrorIs(t, err, errs.ErrProviderUnavailable)
	assert.True(t, errs.IsRetryable(err))
}

func TestEmbedEmptyVectorIsUnavailable(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"embedding":{"values":[]}}`)
	})

	_, err := e.Embed(context.Background(), "hi")
	assert.ErrorIs(t, err, errs.ErrProviderUnavailable)
}

func TestNewEmbedderRequiresKey(t *testing.T) {
	_, err := NewEmbedder()
	assert.ErrorIs(t, err, errs.ErrAuth)
}
