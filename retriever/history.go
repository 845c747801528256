package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/w-h-a/docqa/generator"
	"github.com/w-h-a/docqa/memory"
	"github.com/w-h-a/docqa/store"
)

type historyAwareRetriever struct {
	options Options
}

func (r *historyAwareRetriever) Rewrite(ctx context.Context, question string, history []memory.Message) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	msgs := make([]generator.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, generator.Message{Role: generator.RoleUser, Content: question})

	rewritten, err := r.options.Generator.Generate(ctx, generator.Prompt{
		System:   r.options.Instruction,
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}

	rewritten = strings.TrimSpace(rewritten)
	if len(rewritten) == 0 {
		slog.WarnContext(ctx, "blank rewrite, using original question")
		return question, nil
	}

	return rewritten, nil
}

func (r *historyAwareRetriever) Retrieve(ctx context.Context, collection string, query string, k int) ([]store.Match, error) {
	vec, err := r.options.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := r.options.Store.Search(ctx, collection, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	return matches, nil
}

func NewRetriever(opts ...Option) Retriever {
	options := NewOptions(opts...)

	if options.Embedder == nil || options.Generator == nil || options.Store == nil {
		panic("retriever requires an embedder, a generator and a store")
	}

	return &historyAwareRetriever{
		options: options,
	}
}
