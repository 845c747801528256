package session

import (
	"context"

	"github.com/w-h-a/docqa/chain"
	"github.com/w-h-a/docqa/internal/service/document"
	"github.com/w-h-a/docqa/provider"
	"github.com/w-h-a/docqa/store"
	"github.com/w-h-a/docqa/websearch"
)

const DefaultPrefix = "docqa"

// Factory turns a provider config into a working embedder and generator.
type Factory func(cfg provider.Config) (provider.Pair, error)

type Option func(*Options)

type Options struct {
	Store        store.Store
	Builder      *document.Builder
	Searcher     websearch.Searcher
	Factory      Factory
	Prefix       string
	MemoryWindow int
	ChainOptions []chain.Option
	Context      context.Context
}

func WithStore(s store.Store) Option {
	return func(o *Options) {
		o.Store = s
	}
}

func WithBuilder(b *document.Builder) Option {
	return func(o *Options) {
		o.Builder = b
	}
}

// WithSearcher is the web searcher used by sessions that enable fallback.
func WithSearcher(s websearch.Searcher) Option {
	return func(o *Options) {
		o.Searcher = s
	}
}

func WithFactory(f Factory) Option {
	return func(o *Options) {
		o.Factory = f
	}
}

// WithPrefix namespaces collection names, e.g. per deployment.
func WithPrefix(prefix string) Option {
	return func(o *Options) {
		o.Prefix = prefix
	}
}

func WithMemoryWindow(n int) Option {
	return func(o *Options) {
		o.MemoryWindow = n
	}
}

func WithChainOptions(opts ...chain.Option) Option {
	return func(o *Options) {
		o.ChainOptions = append(o.ChainOptions, opts...)
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Factory: provider.New,
		Prefix:  DefaultPrefix,
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

type CreateOption func(*CreateOptions)

type CreateOptions struct {
	ID        string
	WebSearch bool
}

func WithID(id string) CreateOption {
	return func(o *CreateOptions) {
		o.ID = id
	}
}

func WithWebSearch(enabled bool) CreateOption {
	return func(o *CreateOptions) {
		o.WebSearch = enabled
	}
}

func NewCreateOptions(opts ...CreateOption) CreateOptions {
	options := CreateOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
