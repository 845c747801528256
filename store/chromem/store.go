package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/w-h-a/docqa/chunker"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/store"
)

const (
	DefaultLocation = "./chroma_db"

	keyPage   = "page"
	keyOffset = "offset"
	keyIndex  = "index"

	// collection metadata is copied onto every document under this prefix
	collectionPrefix = "collection."
)

type chromemStore struct {
	options store.Options
	db      *chromem.DB
}

func (s *chromemStore) Build(ctx context.Context, name string, meta map[string]string, entries []store.Entry) error {
	if err := store.Validate(entries); err != nil {
		return err
	}

	if err := s.db.DeleteCollection(name); err != nil {
		return errs.IndexBuild("clear collection %s: %v", name, err)
	}

	c, err := s.db.CreateCollection(name, maps.Clone(meta), nil)
	if err != nil {
		return errs.IndexBuild("create collection %s: %v", name, err)
	}

	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, toDocument(e, meta))
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		if dropErr := s.db.DeleteCollection(name); dropErr != nil {
			slog.ErrorContext(ctx, "failed to drop partial collection", "collection", name, "error", dropErr)
		}
		return errs.IndexBuild("add documents to %s: %v", name, err)
	}

	return nil
}

func (s *chromemStore) Search(ctx context.Context, name string, vector []float32, k int) ([]store.Match, error) {
	if k < 1 {
		return nil, nil
	}

	c := s.db.GetCollection(name, nil)
	if c == nil {
		return nil, store.ErrNotFound
	}

	// chromem picks an arbitrary member of a tie at the cut, so every
	// document is scored and Rank makes the cut
	n := c.Count()
	if n == 0 {
		return nil, nil
	}

	results, err := c.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}

	matches := make([]store.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, store.Match{
			Chunk: toChunk(r.Content, r.Metadata),
			Score: r.Similarity,
		})
	}

	return store.Rank(matches, k), nil
}

func (s *chromemStore) Describe(ctx context.Context, name string) (store.Collection, error) {
	c := s.db.GetCollection(name, nil)
	if c == nil {
		return store.Collection{}, store.ErrNotFound
	}

	col := store.Collection{
		Name:     name,
		Count:    c.Count(),
		Metadata: map[string]string{},
	}

	if col.Count == 0 {
		return col, nil
	}

	doc, err := c.GetByID(ctx, documentID(0))
	if err != nil {
		return store.Collection{}, fmt.Errorf("describe %s: %w", name, err)
	}

	for k, v := range doc.Metadata {
		if key, ok := strings.CutPrefix(k, collectionPrefix); ok {
			col.Metadata[key] = v
		}
	}

	return col, nil
}

func (s *chromemStore) Drop(ctx context.Context, name string) error {
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	return nil
}

func toDocument(e store.Entry, meta map[string]string) chromem.Document {
	metadata := make(map[string]string, len(meta)+3)
	for k, v := range meta {
		metadata[collectionPrefix+k] = v
	}
	metadata[keyPage] = strconv.Itoa(e.Chunk.Page)
	metadata[keyOffset] = strconv.Itoa(e.Chunk.Offset)
	metadata[keyIndex] = strconv.Itoa(e.Chunk.Index)

	return chromem.Document{
		ID:        documentID(e.Chunk.Index),
		Content:   e.Chunk.Content,
		Metadata:  metadata,
		Embedding: e.Vector,
	}
}

func toChunk(content string, metadata map[string]string) chunker.Chunk {
	page, _ := strconv.Atoi(metadata[keyPage])
	offset, _ := strconv.Atoi(metadata[keyOffset])
	index, _ := strconv.Atoi(metadata[keyIndex])

	return chunker.Chunk{
		Content: content,
		Page:    page,
		Offset:  offset,
		Index:   index,
	}
}

func documentID(index int) string {
	return "chunk-" + strconv.Itoa(index)
}

// NewStore opens a persistent database under the configured location, or an
// in-process one when the location is empty.
func NewStore(opts ...store.Option) (store.Store, error) {
	options := store.NewOptions(opts...)

	s := &chromemStore{
		options: options,
	}

	if len(options.Location) == 0 {
		s.db = chromem.NewDB()
		return s, nil
	}

	db, err := chromem.NewPersistentDB(options.Location, options.Compress)
	if err != nil {
		return nil, errs.InvalidConfig("open chromem db at %s: %v", options.Location, err)
	}

	s.db = db

	return s, nil
}
