package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/docqa/chunker"
	"github.com/w-h-a/docqa/generator"
	"github.com/w-h-a/docqa/internal/testutil"
	"github.com/w-h-a/docqa/memory"
	"github.com/w-h-a/docqa/store"
	memstore "github.com/w-h-a/docqa/store/memory"
)

func newRetriever(t *testing.T, gen generator.Generator) (Retriever, *testutil.HashEmbedder, store.Store) {
	t.Helper()

	emb := &testutil.HashEmbedder{}
	st := memstore.NewStore()

	return NewRetriever(
		WithEmbedder(emb),
		WithGenerator(gen),
		WithStore(st),
	), emb, st
}

func TestRewriteEmptyHistoryNeverCallsModel(t *testing.T) {
	gen := &testutil.MockGenerator{}
	r, _, _ := newRetriever(t, gen)

	query, err := r.Rewrite(context.Background(), "What is the invoice total?", nil)
	require.NoError(t, err)

	assert.Equal(t, "What is the invoice total?", query)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestRewriteUsesHistory(t *testing.T) {
	gen := &testutil.MockGenerator{}
	history := []memory.Message{
		{Role: generator.RoleUser, Content: "Who issued the invoice?"},
		{Role: generator.RoleAssistant, Content: "Acme Corp."},
	}

	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p generator.Prompt) bool {
		return p.System == DefaultInstruction &&
			len(p.Messages) == 3 &&
			p.Messages[2].Content == "What is their address?"
	})).Return("  What is Acme Corp's address?\n", nil).Once()

	r, _, _ := newRetriever(t, gen)

	query, err := r.Rewrite(context.Background(), "What is their address?", history)
	require.NoError(t, err)

	assert.Equal(t, "What is Acme Corp's address?", query)
	gen.AssertExpectations(t)
}

func TestRewriteBlankFallsBackToQuestion(t *testing.T) {
	gen := &testutil.MockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return("   ", nil)

	r, _, _ := newRetriever(t, gen)

	query, err := r.Rewrite(context.Background(), "And the tax?", []memory.Message{
		{Role: generator.RoleUser, Content: "total?"},
		{Role: generator.RoleAssistant, Content: "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "And the tax?", query)
}

func TestRetrieveEmbedsAndSearches(t *testing.T) {
	r, emb, st := newRetriever(t, &testutil.MockGenerator{})
	ctx := context.Background()

	var entries []store.Entry
	for i, text := range []string{"shipping terms and delivery", "invoice total amount due", "company history"} {
		vec, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		entries = append(entries, store.Entry{
			Chunk:  chunker.Chunk{Content: text, Page: i + 1, Index: i},
			Vector: vec,
		})
	}
	require.NoError(t, st.Build(ctx, "docs", nil, entries))

	matches, err := r.Retrieve(ctx, "docs", "invoice total", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 2, matches[0].Chunk.Page)

	_, err = r.Retrieve(ctx, "missing", "invoice total", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
