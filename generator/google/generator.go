package google

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/generator"
	"github.com/w-h-a/docqa/internal/classify"
	"google.golang.org/api/iterator"
	genaiopt "google.golang.org/api/option"
)

const defaultModel = "gemini-1.5-flash"

type googleGenerator struct {
	options generator.Options
	client  *genai.Client
}

func (g *googleGenerator) Generate(ctx context.Context, prompt generator.Prompt) (string, error) {
	cs, last, err := g.chat(prompt)
	if err != nil {
		return "", err
	}

	rsp, err := cs.SendMessage(ctx, last)
	if err != nil {
		return "", classify.Google(err)
	}

	text := responseText(rsp)
	if len(text) == 0 {
		return "", errs.Generation("google", errors.New("no response from Google"))
	}

	return text, nil
}

func (g *googleGenerator) Stream(ctx context.Context, prompt generator.Prompt) (*generator.Stream, error) {
	cs, last, err := g.chat(prompt)
	if err != nil {
		return nil, err
	}

	return generator.NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		iter := cs.SendMessageStream(ctx, last)

		for {
			rsp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return classify.Google(err)
			}
			if err := emit(responseText(rsp)); err != nil {
				return err
			}
		}
	}), nil
}

// chat maps all but the last message onto the session history; the last one
// is what gets sent.
func (g *googleGenerator) chat(prompt generator.Prompt) (*genai.ChatSession, genai.Part, error) {
	if len(prompt.Messages) == 0 {
		return nil, nil, errs.Generation("google", errors.New("prompt has no messages"))
	}

	model := g.client.GenerativeModel(g.options.Model)
	model.SetTemperature(g.options.Temperature)
	model.SetMaxOutputTokens(int32(g.options.MaxTokens))

	if system := g.options.System(prompt); len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()

	n := len(prompt.Messages) - 1
	for _, m := range prompt.Messages[:n] {
		role := "user"
		if m.Role == generator.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	return cs, genai.Text(prompt.Messages[n].Content), nil
}

func responseText(rsp *genai.GenerateContentResponse) string {
	if rsp == nil || len(rsp.Candidates) == 0 || rsp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range rsp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	return b.String()
}

func NewGenerator(opts ...generator.Option) (generator.Generator, error) {
	options := generator.NewOptions(opts...)

	if len(options.ApiKey) == 0 {
		return nil, errs.Auth("google generator requires an api key")
	}

	if len(options.Model) == 0 {
		options.Model = defaultModel
	}

	g := &googleGenerator{
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

	g.client = client

	return g, nil
}
