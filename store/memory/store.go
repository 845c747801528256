package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/w-h-a/docqa/store"
)

type collection struct {
	meta    map[string]string
	entries []store.Entry
}

type memoryStore struct {
	options     store.Options
	collections map[string]collection
	mtx         sync.RWMutex
}

func (s *memoryStore) Build(ctx context.Context, name string, meta map[string]string, entries []store.Entry) error {
	if err := store.Validate(entries); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	cpy := make([]store.Entry, len(entries))
	for i, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		cpy[i] = store.Entry{Chunk: e.Chunk, Vector: vec}
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.collections[name] = collection{
		meta:    maps.Clone(meta),
		entries: cpy,
	}

	return nil
}

func (s *memoryStore) Search(ctx context.Context, name string, vector []float32, k int) ([]store.Match, error) {
	if k < 1 {
		return nil, nil
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, store.ErrNotFound
	}

	candidates := make([]store.Match, 0, len(c.entries))

	for _, e := range c.entries {
		candidates = append(candidates, store.Match{
			Chunk: e.Chunk,
			Score: float32(store.CosineSimilarity(vector, e.Vector)),
		})
	}

	return store.Rank(candidates, k), nil
}

func (s *memoryStore) Describe(ctx context.Context, name string) (store.Collection, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return store.Collection{}, store.ErrNotFound
	}

	return store.Collection{
		Name:     name,
		Count:    len(c.entries),
		Metadata: maps.Clone(c.meta),
	}, nil
}

func (s *memoryStore) Drop(ctx context.Context, name string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	delete(s.collections, name)

	return nil
}

func NewStore(opts ...store.Option) store.Store {
	options := store.NewOptions(opts...)

	return &memoryStore{
		options:     options,
		collections: map[string]collection{},
	}
}
