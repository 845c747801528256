package loader

import "context"

type Option func(*Options)

type Options struct {
	MaxBytes int64
	Context  context.Context
}

// WithMaxBytes rejects uploads larger than n bytes. Zero disables the check.
func WithMaxBytes(n int64) Option {
	return func(o *Options) {
		o.MaxBytes = n
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
