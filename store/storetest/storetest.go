// Package storetest holds behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/docqa/chunker"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/store"
)

func entries() []store.Entry {
	return []store.Entry{
		{Chunk: chunker.Chunk{Content: "cover letter", Page: 1, Index: 0}, Vector: []float32{1, 0, 0}},
		{Chunk: chunker.Chunk{Content: "invoice total 42", Page: 2, Index: 1}, Vector: []float32{0, 1, 0}},
		{Chunk: chunker.Chunk{Content: "invoice total again", Page: 2, Offset: 650, Index: 2}, Vector: []float32{0, 1, 0}},
		{Chunk: chunker.Chunk{Content: "appendix", Page: 3, Index: 3}, Vector: []float32{0, 0.2, 1}},
	}
}

func Run(t *testing.T, s store.Store) {
	ctx := context.Background()
	meta := map[string]string{store.MetaIdentity: "openai/text-embedding-3-small"}

	require.NoError(t, s.Build(ctx, "docs-a", meta, entries()))

	t.Run("ranks by score then index", func(t *testing.T) {
		matches, err := s.Search(ctx, "docs-a", []float32{0, 1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, matches, 3)

		assert.Equal(t, 1, matches[0].Chunk.Index)
		assert.Equal(t, 2, matches[1].Chunk.Index)
		assert.Equal(t, 3, matches[2].Chunk.Index)
		assert.Equal(t, 2, matches[0].Chunk.Page)
		assert.Equal(t, 650, matches[1].Chunk.Offset)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
		assert.GreaterOrEqual(t, matches[1].Score, matches[2].Score)
	})

	t.Run("ties at the cut keep chunk order", func(t *testing.T) {
		tied := make([]store.Entry, 8)
		for i := range tied {
			tied[i] = store.Entry{
				Chunk:  chunker.Chunk{Content: "same page footer", Page: 1, Index: i},
				Vector: []float32{0.3, 0.3, 0.9},
			}
		}
		require.NoError(t, s.Build(ctx, "docs-tie", meta, tied))
		defer s.Drop(ctx, "docs-tie")

		for range 50 {
			matches, err := s.Search(ctx, "docs-tie", []float32{0.3, 0.3, 0.9}, 1)
			require.NoError(t, err)
			require.Len(t, matches, 1)
			require.Equal(t, 0, matches[0].Chunk.Index)
		}

		matches, err := s.Search(ctx, "docs-tie", []float32{0.3, 0.3, 0.9}, 3)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		for i, m := range matches {
			assert.Equal(t, i, m.Chunk.Index)
		}
	})

	t.Run("k above count returns every chunk once", func(t *testing.T) {
		matches, err := s.Search(ctx, "docs-a", []float32{1, 1, 1}, 50)
		require.NoError(t, err)
		require.Len(t, matches, 4)

		seen := map[int]bool{}
		for _, m := range matches {
			assert.False(t, seen[m.Chunk.Index])
			seen[m.Chunk.Index] = true
		}
	})

	t.Run("k below one", func(t *testing.T) {
		matches, err := s.Search(ctx, "docs-a", []float32{1, 0, 0}, 0)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("describe", func(t *testing.T) {
		col, err := s.Describe(ctx, "docs-a")
		require.NoError(t, err)
		assert.Equal(t, "docs-a", col.Name)
		assert.Equal(t, 4, col.Count)
		assert.Equal(t, "openai/text-embedding-3-small", col.Metadata[store.MetaIdentity])

		_, err = s.Describe(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("collections are isolated", func(t *testing.T) {
		other := []store.Entry{
			{Chunk: chunker.Chunk{Content: "other session", Page: 1, Index: 0}, Vector: []float32{0, 1, 0}},
		}
		require.NoError(t, s.Build(ctx, "docs-b", meta, other))

		matches, err := s.Search(ctx, "docs-b", []float32{0, 1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "other session", matches[0].Chunk.Content)

		matches, err = s.Search(ctx, "docs-a", []float32{0, 1, 0}, 1)
		require.NoError(t, err)
		assert.Equal(t, "invoice total 42", matches[0].Chunk.Content)
	})

	t.Run("build replaces", func(t *testing.T) {
		replaced := []store.Entry{
			{Chunk: chunker.Chunk{Content: "fresh", Page: 1, Index: 0}, Vector: []float32{1, 0, 0}},
		}
		require.NoError(t, s.Build(ctx, "docs-b", meta, replaced))

		col, err := s.Describe(ctx, "docs-b")
		require.NoError(t, err)
		assert.Equal(t, 1, col.Count)
	})

	t.Run("build rejects mixed dimensions", func(t *testing.T) {
		bad := []store.Entry{
			{Chunk: chunker.Chunk{Content: "a", Index: 0}, Vector: []float32{1, 0}},
			{Chunk: chunker.Chunk{Content: "b", Index: 1}, Vector: []float32{1, 0, 0}},
		}
		err := s.Build(ctx, "docs-bad", meta, bad)
		assert.ErrorIs(t, err, errs.ErrIndexBuild)

		_, err = s.Describe(ctx, "docs-bad")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("drop", func(t *testing.T) {
		require.NoError(t, s.Drop(ctx, "docs-b"))
		require.NoError(t, s.Drop(ctx, "docs-b"))

		_, err := s.Describe(ctx, "docs-b")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}
