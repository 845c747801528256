package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/generator"
	"github.com/w-h-a/docqa/internal/classify"
)

const defaultModel = "claude-3-5-haiku-latest"

type anthropicGenerator struct {
	options generator.Options
	client  *anthropic.Client
}

func (g *anthropicGenerator) Generate(ctx context.Context, prompt generator.Prompt) (string, error) {
	rsp, err := g.client.Messages.New(ctx, g.params(prompt))
	if err != nil {
		return "", classify.Anthropic(err)
	}

	var b strings.Builder
	for _, content := range rsp.Content {
		if text, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}

	result := b.String()
	if len(result) == 0 {
		return "", errs.Generation("anthropic", errors.New("no response from Anthropic"))
	}

	return result, nil
}

func (g *anthropicGenerator) Stream(ctx context.Context, prompt generator.Prompt) (*generator.Stream, error) {
	params := g.params(prompt)

	return generator.NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		stream := g.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event, ok := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			delta, ok := event.Delta.AsAny().(anthropic.TextDelta)
			if !ok {
				continue
			}
			if err := emit(delta.Text); err != nil {
				return err
			}
		}

		return classify.Anthropic(stream.Err())
	}), nil
}

func (g *anthropicGenerator) params(prompt generator.Prompt) anthropic.MessageNewParams {
	msgs := make([]anthropic.MessageParam, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == generator.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.options.Model),
		MaxTokens:   int64(g.options.MaxTokens),
		Messages:    msgs,
		Temperature: anthropic.Float(float64(g.options.Temperature)),
	}

	if system := g.options.System(prompt); len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	return params
}

func NewGenerator(opts ...generator.Option) (generator.Generator, error) {
	options := generator.NewOptions(opts...)

	if len(options.ApiKey) == 0 {
		return nil, errs.Auth("anthropic generator requires an api key")
	}

	if len(options.Model) == 0 {
		options.Model = defaultModel
	}

	g := &anthropicGenerator{
		options: options,
	}

	clientOpts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(options.ApiKey),
		// failures surface to the user, who decides whether to re-ask
		anthropicopt.WithMaxRetries(0),
	}
	if len(options.BaseURL) > 0 {
		clientOpts = append(clientOpts, anthropicopt.WithBaseURL(options.BaseURL))
	}
	if options.HTTPClient != nil {
		clientOpts = append(clientOpts, anthropicopt.WithHTTPClient(options.HTTPClient))
	}

	client := anthropic.NewClient(clientOpts...)

	g.client = &client

	return g, nil
}
