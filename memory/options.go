package memory

type Option func(*Options)

type Options struct {
	// Window bounds how many recent turns Messages returns. Zero keeps all.
	Window int
}

func WithWindow(n int) Option {
	return func(o *Options) {
		o.Window = n
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
