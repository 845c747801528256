package store

import "context"

type Option func(*Options)

type Options struct {
	Location string
	Compress bool
	ApiKey   string
	Context  context.Context
}

// WithLocation is a directory for chromem and a connection string for postgres.
func WithLocation(loc string) Option {
	return func(o *Options) {
		o.Location = loc
	}
}

func WithCompress(compress bool) Option {
	return func(o *Options) {
		o.Compress = compress
	}
}

// WithApiKey authenticates against a hosted store such as qdrant cloud.
func WithApiKey(key string) Option {
	return func(o *Options) {
		o.ApiKey = key
	}
}

func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
