package provider

import (
	"net/http"
	"strings"

	"github.com/w-h-a/docqa/embedder"
	embedcache "github.com/w-h-a/docqa/embedder/cache"
	googleembedder "github.com/w-h-a/docqa/embedder/google"
	ollamaembedder "github.com/w-h-a/docqa/embedder/ollama"
	openaiembedder "github.com/w-h-a/docqa/embedder/openai"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/generator"
	anthropicgenerator "github.com/w-h-a/docqa/generator/anthropic"
	googlegenerator "github.com/w-h-a/docqa/generator/google"
	ollamagenerator "github.com/w-h-a/docqa/generator/ollama"
	openaigenerator "github.com/w-h-a/docqa/generator/openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	OpenAI    = "openai"
	Google    = "google"
	Anthropic = "anthropic"
	Ollama    = "ollama"
)

type defaults struct {
	model          string
	embeddingModel string
	// embedding names the provider that embeds for an LLM-only provider
	embedding string
}

var known = map[string]defaults{
	OpenAI:    {model: "gpt-4o-mini", embeddingModel: "text-embedding-3-small"},
	Google:    {model: "gemini-1.5-flash", embeddingModel: "embedding-001"},
	Anthropic: {model: "claude-3-5-haiku-latest", embedding: OpenAI},
	Ollama:    {model: "llama3", embeddingModel: "nomic-embed-text"},
}

// Names lists the supported providers.
func Names() []string {
	return []string{OpenAI, Google, Anthropic, Ollama}
}

type Config struct {
	Name           string  `json:"name"`
	Model          string  `json:"model,omitempty"`
	EmbeddingModel string  `json:"embedding_model,omitempty"`
	APIKey         string  `json:"api_key,omitempty"`
	BaseURL        string  `json:"base_url,omitempty"`
	Temperature    float32 `json:"temperature,omitempty"`
	// EmbeddingName and EmbeddingAPIKey select the embedding side for a
	// provider without embeddings of its own.
	EmbeddingName   string `json:"embedding_name,omitempty"`
	EmbeddingAPIKey string `json:"embedding_api_key,omitempty"`
}

// Normalize fills defaults and returns a copy.
func (c Config) Normalize() Config {
	c.Name = strings.ToLower(strings.TrimSpace(c.Name))

	d, ok := known[c.Name]
	if !ok {
		return c
	}

	if len(c.Model) == 0 {
		c.Model = d.model
	}

	if len(d.embedding) > 0 {
		if len(c.EmbeddingName) == 0 {
			c.EmbeddingName = d.embedding
		}
	} else {
		c.EmbeddingName = c.Name
		if len(c.EmbeddingAPIKey) == 0 {
			c.EmbeddingAPIKey = c.APIKey
		}
	}

	c.EmbeddingName = strings.ToLower(c.EmbeddingName)

	if len(c.EmbeddingModel) == 0 {
		if e, ok := known[c.EmbeddingName]; ok {
			c.EmbeddingModel = e.embeddingModel
		}
	}

	return c
}

func (c Config) Validate() error {
	c = c.Normalize()

	if _, ok := known[c.Name]; !ok {
		return errs.InvalidConfig("unknown provider %q, want one of %s", c.Name, strings.Join(Names(), ", "))
	}

	e, ok := known[c.EmbeddingName]
	if !ok || len(e.embeddingModel) == 0 {
		return errs.InvalidConfig("provider %q cannot embed for %q", c.EmbeddingName, c.Name)
	}

	if c.Name != Ollama && len(c.APIKey) == 0 {
		return errs.Auth("%s requires an api key", c.Name)
	}

	if c.EmbeddingName != Ollama && len(c.EmbeddingAPIKey) == 0 {
		return errs.Auth("%s embeddings for %s require an api key", c.EmbeddingName, c.Name)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return errs.InvalidConfig("temperature %.2f is outside [0, 2]", c.Temperature)
	}

	return nil
}

// EmbeddingIdentity names the embedding space vectors of this config live in.
func (c Config) EmbeddingIdentity() string {
	c = c.Normalize()
	return c.EmbeddingName + "/" + c.EmbeddingModel
}

// Redacted is safe to log or return to clients.
func (c Config) Redacted() Config {
	c = c.Normalize()
	if len(c.APIKey) > 0 {
		c.APIKey = "***"
	}
	if len(c.EmbeddingAPIKey) > 0 {
		c.EmbeddingAPIKey = "***"
	}
	return c
}

type Pair struct {
	Config    Config
	Embedder  embedder.Embedder
	Generator generator.Generator
}

func New(cfg Config) (Pair, error) {
	if err := cfg.Validate(); err != nil {
		return Pair{}, err
	}

	cfg = cfg.Normalize()

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	gen, err := newGenerator(cfg, client)
	if err != nil {
		return Pair{}, err
	}

	emb, err := newEmbedder(cfg, client)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		Config:    cfg,
		Embedder:  embedcache.NewEmbedder(emb, cfg.EmbeddingIdentity(), 0),
		Generator: gen,
	}, nil
}

func newGenerator(cfg Config, client *http.Client) (generator.Generator, error) {
	opts := []generator.Option{
		generator.WithApiKey(cfg.APIKey),
		generator.WithModel(cfg.Model),
		generator.WithTemperature(cfg.Temperature),
		generator.WithHTTPClient(client),
	}
	if len(cfg.BaseURL) > 0 {
		opts = append(opts, generator.WithBaseURL(cfg.BaseURL))
	}

	switch cfg.Name {
	case OpenAI:
		return openaigenerator.NewGenerator(opts...)
	case Google:
		return googlegenerator.NewGenerator(opts...)
	case Anthropic:
		return anthropicgenerator.NewGenerator(opts...)
	case Ollama:
		return ollamagenerator.NewGenerator(opts...)
	default:
		return nil, errs.InvalidConfig("unknown provider %q", cfg.Name)
	}
}

func newEmbedder(cfg Config, client *http.Client) (embedder.Embedder, error) {
	opts := []embedder.Option{
		embedder.WithApiKey(cfg.EmbeddingAPIKey),
		embedder.WithModel(cfg.EmbeddingModel),
		embedder.WithHTTPClient(client),
	}
	// a base url belongs to the generating provider unless it embeds too
	if len(cfg.BaseURL) > 0 && cfg.EmbeddingName == cfg.Name {
		opts = append(opts, embedder.WithBaseURL(cfg.BaseURL))
	}

	switch cfg.EmbeddingName {
	case OpenAI:
		return openaiembedder.NewEmbedder(opts...)
	case Google:
		return googleembedder.NewEmbedder(opts...)
	case Ollama:
		return ollamaembedder.NewEmbedder(opts...)
	default:
		return nil, errs.InvalidConfig("provider %q has no embeddings", cfg.EmbeddingName)
	}
}
