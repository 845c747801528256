package docqa

import (
	"context"

	"github.com/w-h-a/docqa/chain"
	"github.com/w-h-a/docqa/chunker"
	"github.com/w-h-a/docqa/internal/service/document"
	"github.com/w-h-a/docqa/internal/service/session"
	"github.com/w-h-a/docqa/websearch"
)

const (
	StoreChromem  = "chromem"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
	StoreQdrant   = "qdrant"
)

type Option func(*Options)

type Options struct {
	Store          string
	StoreLocation  string
	StoreApiKey    string
	ChunkSize      int
	ChunkOverlap   int
	K              int
	MaxUploadBytes int64
	MemoryWindow   int
	Concurrency    int
	Prefix         string
	WebSearchURL   string
	Searcher       websearch.Searcher
	Factory        session.Factory
	Context        context.Context
}

// WithStore selects the vector store backend and its location: a directory
// for chromem, a connection string for postgres, a base URL for qdrant.
func WithStore(kind string, location string) Option {
	return func(o *Options) {
		o.Store = kind
		o.StoreLocation = location
	}
}

func WithStoreApiKey(key string) Option {
	return func(o *Options) {
		o.StoreApiKey = key
	}
}

func WithChunking(size, overlap int) Option {
	return func(o *Options) {
		o.ChunkSize = size
		o.ChunkOverlap = overlap
	}
}

func WithK(k int) Option {
	return func(o *Options) {
		o.K = k
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(o *Options) {
		o.MaxUploadBytes = n
	}
}

func WithMemoryWindow(n int) Option {
	return func(o *Options) {
		o.MemoryWindow = n
	}
}

func WithConcurrency(n int) Option {
	return func(o *Options) {
		o.Concurrency = n
	}
}

func WithPrefix(prefix string) Option {
	return func(o *Options) {
		o.Prefix = prefix
	}
}

func WithWebSearchURL(url string) Option {
	return func(o *Options) {
		o.WebSearchURL = url
	}
}

// WithSearcher replaces the DuckDuckGo searcher.
func WithSearcher(s websearch.Searcher) Option {
	return func(o *Options) {
		o.Searcher = s
	}
}

// WithFactory replaces how provider configs become embedders and generators.
func WithFactory(f session.Factory) Option {
	return func(o *Options) {
		o.Factory = f
	}
}

func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Store:        StoreChromem,
		ChunkSize:    chunker.DefaultSize,
		ChunkOverlap: chunker.DefaultOverlap,
		K:            chain.DefaultK,
		Concurrency:  document.DefaultConcurrency,
		Prefix:       session.DefaultPrefix,
		Context:      context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
