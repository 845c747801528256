package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/w-h-a/docqa"
	"github.com/w-h-a/docqa/internal/logger"
	"github.com/w-h-a/docqa/internal/tracer"
	"github.com/w-h-a/docqa/provider"
)

type Globals struct {
	// Logging and tracing
	LogLevel     string `help:"Log level" default:"info" enum:"debug,info,warn,error" env:"DOCQA_LOG_LEVEL"`
	LogJSON      bool   `help:"Log JSON to stderr instead of console text" env:"DOCQA_LOG_JSON"`
	LogFile      string `help:"Also write JSON logs to this rotated file" env:"DOCQA_LOG_FILE"`
	OtelEndpoint string `help:"OTLP/HTTP endpoint for traces, empty disables tracing" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Index config
	Store          string `help:"Vector store backend" default:"chromem" enum:"chromem,postgres,qdrant,memory" env:"DOCQA_STORE"`
	StoreLocation  string `help:"Directory for chromem, connection string for postgres, URL for qdrant" env:"DOCQA_STORE_LOCATION"`
	StoreAPIKey    string `help:"API key for a hosted qdrant" env:"QDRANT_API_KEY"`
	ChunkSize      int    `help:"Chunk length in characters" default:"800" env:"DOCQA_CHUNK_SIZE"`
	ChunkOverlap   int    `help:"Characters shared by consecutive chunks" default:"150" env:"DOCQA_CHUNK_OVERLAP"`
	K              int    `help:"Chunks retrieved per question" default:"3" env:"DOCQA_K"`
	MaxUploadBytes int64  `help:"Largest accepted document in bytes" default:"52428800" env:"DOCQA_MAX_UPLOAD_BYTES"`
	MemoryWindow   int    `help:"Turns of history sent to the model, 0 keeps all" default:"0" env:"DOCQA_MEMORY_WINDOW"`

	// Provider config
	Provider       string  `help:"LLM provider" default:"openai" enum:"openai,google,anthropic,ollama" env:"DOCQA_PROVIDER"`
	Model          string  `help:"Chat model, empty uses the provider default" env:"DOCQA_MODEL"`
	EmbeddingModel string  `help:"Embedding model, empty uses the provider default" env:"DOCQA_EMBEDDING_MODEL"`
	Temperature    float32 `help:"Sampling temperature" default:"0" env:"DOCQA_TEMPERATURE"`
	BaseURL        string  `help:"Override the provider endpoint" env:"DOCQA_BASE_URL"`
	OpenAIKey      string  `help:"OpenAI API key" env:"OPENAI_API_KEY"`
	GoogleKey      string  `help:"Google API key" env:"GOOGLE_API_KEY"`
	AnthropicKey   string  `help:"Anthropic API key" env:"ANTHROPIC_API_KEY"`
	WebSearch      bool    `help:"Search the web when the document has no answer" env:"DOCQA_WEB_SEARCH"`
}

// ProviderConfig picks the key that belongs to name. Anthropic embeds with
// OpenAI, so it also gets the OpenAI key for that side.
func (g *Globals) ProviderConfig(name string, model string) provider.Config {
	name = strings.ToLower(strings.TrimSpace(name))

	cfg := provider.Config{
		Name:           name,
		Model:          model,
		EmbeddingModel: g.EmbeddingModel,
		Temperature:    g.Temperature,
		BaseURL:        g.BaseURL,
	}

	switch name {
	case provider.OpenAI:
		cfg.APIKey = g.OpenAIKey
	case provider.Google:
		cfg.APIKey = g.GoogleKey
	case provider.Anthropic:
		cfg.APIKey = g.AnthropicKey
		cfg.EmbeddingAPIKey = g.OpenAIKey
	}

	// models configured for another provider do not carry over
	if name != g.Provider {
		cfg.EmbeddingModel = ""
		cfg.BaseURL = ""
	}

	return cfg
}

func (g *Globals) Assistant(ctx context.Context) (*docqa.Assistant, error) {
	return docqa.New(
		docqa.WithStore(g.Store, g.StoreLocation),
		docqa.WithStoreApiKey(g.StoreAPIKey),
		docqa.WithChunking(g.ChunkSize, g.ChunkOverlap),
		docqa.WithK(g.K),
		docqa.WithMaxUploadBytes(g.MaxUploadBytes),
		docqa.WithMemoryWindow(g.MemoryWindow),
		docqa.WithContext(ctx),
	)
}

type CLI struct {
	Globals

	Serve ServeCmd `cmd:"" help:"Serve the HTTP API."`
	Chat  ChatCmd  `cmd:"" default:"withargs" help:"Chat about a document in the terminal."`
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("docqa"),
		kong.Description("Ask questions about a PDF document."),
		kong.UsageOnError(),
	)

	flush := logger.Init(logger.Config{
		Level: cli.LogLevel,
		JSON:  cli.LogJSON,
		File:  cli.LogFile,
	})

	shutdown := tracer.Init(context.Background(), "docqa", cli.OtelEndpoint)

	err := kctx.Run(&cli.Globals)

	if err := shutdown(context.Background()); err != nil {
		slog.Error("failed to shut down tracer", "error", err)
	}
	_ = flush()

	kctx.FatalIfErrorf(err)
}
