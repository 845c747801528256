package chunker

import "context"

const (
	DefaultSize    = 800
	DefaultOverlap = 150
)

type Option func(*Options)

type Options struct {
	Size    int
	Overlap int
	Context context.Context
}

// WithSize sets the window length in characters.
func WithSize(size int) Option {
	return func(o *Options) {
		o.Size = size
	}
}

// WithOverlap sets how many characters consecutive chunks share.
func WithOverlap(overlap int) Option {
	return func(o *Options) {
		o.Overlap = overlap
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Size:    DefaultSize,
		Overlap: DefaultOverlap,
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
