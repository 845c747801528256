package ollama

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/w-h-a/docqa/embedder"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/internal/classify"
)

const (
	defaultModel     = "nomic-embed-text"
	defaultServerURL = "http://localhost:11434"
)

type ollamaEmbedder struct {
	options embedder.Options
	embeddings.Embedder
}

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.EmbedQuery(ctx, text)
	if err != nil {
		return nil, classify.Ollama(err)
	}

	if len(vec) == 0 {
		return nil, classify.Ollama(errors.New("no response from Ollama"))
	}

	return vec, nil
}

// NewEmbedder talks to a local Ollama server; no credential is needed.
func NewEmbedder(opts ...embedder.Option) (embedder.Embedder, error) {
	options := embedder.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = defaultModel
	}

	if len(options.BaseURL) == 0 {
		options.BaseURL = defaultServerURL
	}

	llmOpts := []ollama.Option{
		ollama.WithServerURL(options.BaseURL),
		ollama.WithModel(options.Model),
	}
	if options.HTTPClient != nil {
		llmOpts = append(llmOpts, ollama.WithHTTPClient(options.HTTPClient))
	}

	llm, err := ollama.New(llmOpts...)
	if err != nil {
		return nil, errs.InvalidConfig("ollama embedder: %v", err)
	}

	emb, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, errs.InvalidConfig("ollama embedder: %v", err)
	}

	return &ollamaEmbedder{
		options:  options,
		Embedder: emb,
	}, nil
}
