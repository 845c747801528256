package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/docqa/errs"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "openai", cfg: Config{Name: "openai", APIKey: "k"}},
		{name: "case and space", cfg: Config{Name: " Google ", APIKey: "k"}},
		{name: "ollama needs no key", cfg: Config{Name: "ollama"}},
		{name: "anthropic with openai embeddings", cfg: Config{Name: "anthropic", APIKey: "a", EmbeddingAPIKey: "o"}},
		{name: "anthropic with ollama embeddings", cfg: Config{Name: "anthropic", APIKey: "a", EmbeddingName: "ollama"}},
		{name: "unknown", cfg: Config{Name: "cohere", APIKey: "k"}, want: errs.ErrInvalidConfig},
		{name: "missing key", cfg: Config{Name: "openai"}, want: errs.ErrAuth},
		{name: "anthropic missing embedding key", cfg: Config{Name: "anthropic", APIKey: "a"}, want: errs.ErrAuth},
		{name: "embedding name ignored when provider embeds", cfg: Config{Name: "openai", APIKey: "k", EmbeddingName: "anthropic"}, want: nil},
		{name: "embedding by anthropic", cfg: Config{Name: "anthropic", APIKey: "a", EmbeddingName: "anthropic", EmbeddingAPIKey: "a"}, want: errs.ErrInvalidConfig},
		{name: "temperature", cfg: Config{Name: "ollama", Temperature: 3}, want: errs.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := Config{Name: "anthropic", APIKey: "a", EmbeddingAPIKey: "o"}.Normalize()

	assert.Equal(t, "claude-3-5-haiku-latest", cfg.Model)
	assert.Equal(t, OpenAI, cfg.EmbeddingName)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, "openai/text-embedding-3-small", cfg.EmbeddingIdentity())

	google := Config{Name: "google", APIKey: "g", EmbeddingName: "openai"}.Normalize()
	assert.Equal(t, Google, google.EmbeddingName, "providers with embeddings embed themselves")
	assert.Equal(t, "g", google.EmbeddingAPIKey)
	assert.Equal(t, "google/embedding-001", google.EmbeddingIdentity())

	assert.Equal(t, "ollama/nomic-embed-text", Config{Name: "ollama"}.EmbeddingIdentity())
}

func TestRedacted(t *testing.T) {
	cfg := Config{Name: "openai", APIKey: "sk-secret"}.Redacted()

	assert.Equal(t, "***", cfg.APIKey)
	assert.Equal(t, "***", cfg.EmbeddingAPIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
}

func TestNew(t *testing.T) {
	pair, err := New(Config{Name: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.NotNil(t, pair.Embedder)
	assert.NotNil(t, pair.Generator)
	assert.Equal(t, "gpt-4o-mini", pair.Config.Model)

	pair, err = New(Config{Name: "ollama", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.NotNil(t, pair.Generator)

	_, err = New(Config{Name: "openai"})
	assert.ErrorIs(t, err, errs.ErrAuth)
}
