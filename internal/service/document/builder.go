package document

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/w-h-a/docqa/chunker"
	"github.com/w-h-a/docqa/embedder"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/loader"
	"github.com/w-h-a/docqa/store"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 4

type Metadata struct {
	Filename   string    `json:"filename"`
	PageCount  int       `json:"page_count"`
	ChunkCount int       `json:"chunk_count"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// Builder turns a document into index entries: load, split, embed.
type Builder struct {
	loader      loader.Loader
	chunker     *chunker.Chunker
	concurrency int
}

// Build reads the whole document and embeds every chunk. Nothing is returned
// unless every chunk embedded.
func (b *Builder) Build(ctx context.Context, filename string, r io.ReaderAt, size int64, emb embedder.Embedder) (Metadata, []chunker.Chunk, []store.Entry, error) {
	pages, err := b.loader.Load(ctx, filename, r, size)
	if err != nil {
		return Metadata{}, nil, nil, err
	}

	chunks := b.chunker.Split(pages)
	if len(chunks) == 0 {
		return Metadata{}, nil, nil, errs.Load("%s has no extractable text", filename)
	}

	entries, err := b.Rebuild(ctx, chunks, emb)
	if err != nil {
		return Metadata{}, nil, nil, err
	}

	meta := Metadata{
		Filename:   filename,
		PageCount:  len(pages),
		ChunkCount: len(chunks),
		LoadedAt:   time.Now().UTC(),
	}

	slog.InfoContext(ctx, "document built", "filename", filename, "pages", meta.PageCount, "chunks", meta.ChunkCount)

	return meta, chunks, entries, nil
}

// Rebuild embeds already split chunks, for a provider switch without the
// original file. The first failure cancels the rest.
func (b *Builder) Rebuild(ctx context.Context, chunks []chunker.Chunk, emb embedder.Embedder) ([]store.Entry, error) {
	entries := make([]store.Entry, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, c := range chunks {
		g.Go(func() error {
			vec, err := emb.Embed(ctx, c.Content)
			if err != nil {
				return err
			}
			entries[i] = store.Entry{Chunk: c, Vector: vec}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return entries, nil
}

func NewBuilder(l loader.Loader, c *chunker.Chunker, concurrency int) *Builder {
	if l == nil || c == nil {
		panic("document builder requires a loader and a chunker")
	}

	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	return &Builder{
		loader:      l,
		chunker:     c,
		concurrency: concurrency,
	}
}
