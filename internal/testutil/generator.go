package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/w-h-a/docqa/generator"
)

// Generator answers every prompt through Answer and records what it saw.
// Stream splits the answer on spaces and waits Delay between fragments.
type Generator struct {
	Answer func(p generator.Prompt) (string, error)
	Delay  time.Duration

	mtx     sync.Mutex
	prompts []generator.Prompt
}

func (g *Generator) Generate(ctx context.Context, p generator.Prompt) (string, error) {
	g.record(p)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	return g.Answer(p)
}

func (g *Generator) Stream(ctx context.Context, p generator.Prompt) (*generator.Stream, error) {
	g.record(p)

	return generator.NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		answer, err := g.Answer(p)
		if err != nil {
			return err
		}

		words := strings.SplitAfter(answer, " ")
		for _, w := range words {
			if g.Delay > 0 {
				select {
				case <-time.After(g.Delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := emit(w); err != nil {
				return err
			}
		}

		return nil
	}), nil
}

func (g *Generator) record(p generator.Prompt) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.prompts = append(g.prompts, p)
}

func (g *Generator) Prompts() []generator.Prompt {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	out := make([]generator.Prompt, len(g.prompts))
	copy(out, g.prompts)
	return out
}

// Reply is an Answer that returns text for every prompt.
func Reply(text string) func(generator.Prompt) (string, error) {
	return func(generator.Prompt) (string, error) {
		return text, nil
	}
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, p generator.Prompt) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *MockGenerator) Stream(ctx context.Context, p generator.Prompt) (*generator.Stream, error) {
	args := m.Called(ctx, p)
	s, _ := args.Get(0).(*generator.Stream)
	return s, args.Error(1)
}
