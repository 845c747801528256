package openai

import (
	"context"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/generator"
	"github.com/w-h-a/docqa/internal/classify"
)

const defaultModel = "gpt-4o-mini"

type openAIGenerator struct {
	options generator.Options
	client  *openai.Client
}

func (g *openAIGenerator) Generate(ctx context.Context, prompt generator.Prompt) (string, error) {
	rsp, err := g.client.CreateChatCompletion(ctx, g.request(prompt, false))
	if err != nil {
		return "", classify.OpenAI(err)
	}

	if len(rsp.Choices) == 0 || len(rsp.Choices[0].Message.Content) == 0 {
		return "", errs.Generation("openai", errors.New("no response from OpenAI"))
	}

	return rsp.Choices[0].Message.Content, nil
}

func (g *openAIGenerator) Stream(ctx context.Context, prompt generator.Prompt) (*generator.Stream, error) {
	req := g.request(prompt, true)

	return generator.NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		stream, err := g.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return classify.OpenAI(err)
		}
		defer stream.Close()

		for {
			rsp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return classify.OpenAI(err)
			}

			for _, choice := range rsp.Choices {
				if err := emit(choice.Delta.Content); err != nil {
					return err
				}
			}
		}
	}), nil
}

func (g *openAIGenerator) request(prompt generator.Prompt, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(prompt.Messages)+1)

	if system := g.options.System(prompt); len(system) > 0 {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, m := range prompt.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == generator.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	return openai.ChatCompletionRequest{
		Model:       g.options.Model,
		Messages:    msgs,
		Temperature: g.options.Temperature,
		MaxTokens:   g.options.MaxTokens,
		Stream:      stream,
	}
}

func NewGenerator(opts ...generator.Option) (generator.Generator, error) {
	options := generator.NewOptions(opts...)

	if len(options.ApiKey) == 0 {
		return nil, errs.Auth("openai generator requires an api key")
	}

	if len(options.Model) == 0 {
		options.Model = defaultModel
	}

	g := &openAIGenerator{
		options: options,
	}

	config := openai.DefaultConfig(options.ApiKey)
	if len(options.BaseURL) > 0 {
		config.BaseURL = options.BaseURL
	}
	if options.HTTPClient != nil {
		config.HTTPClient = options.HTTPClient
	}

	g.client = openai.NewClientWithConfig(config)

	return g, nil
}
