package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/w-h-a/docqa/embedder"
)

const (
	defaultExpiration = 30 * time.Minute
	cleanupInterval   = 10 * time.Minute
)

type cachedEmbedder struct {
	next     embedder.Embedder
	identity string
	cache    *gocache.Cache
}

func (e *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.identity + "\x00" + text

	if v, ok := e.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return clone(vec), nil
		}
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Set(key, clone(vec), gocache.DefaultExpiration)

	return vec, nil
}

func clone(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}

// NewEmbedder memoises next. identity must name the provider and model so
// entries from different embedding spaces never mix.
func NewEmbedder(next embedder.Embedder, identity string, ttl time.Duration) embedder.Embedder {
	if next == nil {
		panic("cache: nil embedder")
	}

	if ttl <= 0 {
		ttl = defaultExpiration
	}

	return &cachedEmbedder{
		next:     next,
		identity: identity,
		cache:    gocache.New(ttl, cleanupInterval),
	}
}
