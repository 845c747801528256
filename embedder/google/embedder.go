package google

import (
	"context"
	"errors"

	"github.com/google/generative-ai-go/genai"
	"github.com/w-h-a/docqa/embedder"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/internal/classify"
	genaiopt "google.golang.org/api/option"
)

const defaultModel = "embedding-001"

type googleEmbedder struct {
	options embedder.Options
	client  *genai.Client
}

func (e *googleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	model := e.client.EmbeddingModel(e.options.Model)
	rsp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, classify.Google(err)
	}

	if rsp == nil || rsp.Embedding == nil || len(rsp.Embedding.Values) == 0 {
		return nil, classify.Google(errors.New("no response from Google"))
	}

	return rsp.Embedding.Values, nil
}

func NewEmbedder(opts ...embedder.Option) (embedder.Embedder, error) {
	options := embedder.NewOptions(opts...)

	if len(options.ApiKey) == 0 {
		return nil, errs.Auth("google embedder requires an api key")
	}

	if len(options.Model) == 0 {
		options.Model = defaultModel
	}

	e := &googleEmbedder{
		options: options,
	}

	// a custom http client would replace the key-based auth, so none is passed
	clientOpts := []genaiopt.ClientOption{genaiopt.WithAPIKey(options.ApiKey)}
	if len(options.BaseURL) > 0 {
		clientOpts = append(clientOpts, genaiopt.WithEndpoint(options.BaseURL))
	}

	client, err := genai.NewClient(options.Context, clientOpts...)
	if err != nil {
		return nil, classify.Google(err)
	}

	e.client = client

	return e, nil
}
