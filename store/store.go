package store

import (
	"context"

	"github.com/w-h-a/docqa/chunker"
)

const (
	MetaProvider  = "embedding_provider"
	MetaModel     = "embedding_model"
	MetaIdentity  = "embedding_identity"
	MetaDocument  = "document"
	MetaPageCount = "page_count"
)

type Entry struct {
	Chunk  chunker.Chunk
	Vector []float32
}

type Match struct {
	Chunk chunker.Chunk
	Score float32
}

type Collection struct {
	Name     string
	Count    int
	Metadata map[string]string
}

type Store interface {
	// Build replaces collection with exactly entries. A failed build leaves
	// no collection behind.
	Build(ctx context.Context, collection string, meta map[string]string, entries []Entry) error
	// Search returns at most k matches by descending score, ties by chunk index.
	Search(ctx context.Context, collection string, vector []float32, k int) ([]Match, error)
	Describe(ctx context.Context, collection string) (Collection, error)
	// Drop removes collection. A missing collection is not an error.
	Drop(ctx context.Context, collection string) error
}
