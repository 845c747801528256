package ollama

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/generator"
	"github.com/w-h-a/docqa/internal/classify"
)

const (
	defaultModel     = "llama3"
	defaultServerURL = "http://localhost:11434"
)

type ollamaGenerator struct {
	options generator.Options
	llm     *ollama.LLM
}

func (g *ollamaGenerator) Generate(ctx context.Context, prompt generator.Prompt) (string, error) {
	rsp, err := g.llm.GenerateContent(ctx, g.messages(prompt), g.callOptions()...)
	if err != nil {
		return "", classify.Ollama(err)
	}

	if len(rsp.Choices) == 0 || len(rsp.Choices[0].Content) == 0 {
		return "", errs.Generation("ollama", errors.New("no response from Ollama"))
	}

	return rsp.Choices[0].Content, nil
}

func (g *ollamaGenerator) Stream(ctx context.Context, prompt generator.Prompt) (*generator.Stream, error) {
	msgs := g.messages(prompt)

	return generator.NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		opts := append(g.callOptions(), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return emit(string(chunk))
		}))

		if _, err := g.llm.GenerateContent(ctx, msgs, opts...); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return classify.Ollama(err)
		}

		return nil
	}), nil
}

func (g *ollamaGenerator) messages(prompt generator.Prompt) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(prompt.Messages)+1)

	if system := g.options.System(prompt); len(system) > 0 {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}

	for _, m := range prompt.Messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == generator.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, m.Content))
	}

	return msgs
}

func (g *ollamaGenerator) callOptions() []llms.CallOption {
	return []llms.CallOption{
		llms.WithTemperature(float64(g.options.Temperature)),
		llms.WithMaxTokens(g.options.MaxTokens),
	}
}

// NewGenerator talks to a local Ollama server; no credential is needed.
func NewGenerator(opts ...generator.Option) (generator.Generator, error) {
	options := generator.NewOptions(opts...)

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
		return nil, errs.InvalidConfig("ollama generator: %v", err)
	}

	return &ollamaGenerator{
		options: options,
		llm:     llm,
	}, nil
}
