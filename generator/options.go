package generator

import (
	"context"
	"net/http"
)

const DefaultMaxTokens = 1024

type Option func(*Options)

type Options struct {
	ApiKey       string
	Model        string
	BaseURL      string
	PromptPrefix string
	Temperature  float32
	MaxTokens    int
	HTTPClient   *http.Client
	Context      context.Context
}

func WithApiKey(apiKey string) Option {
	return func(o *Options) {
		o.ApiKey = apiKey
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

func WithPromptPrefix(prefix string) Option {
	return func(o *Options) {
		o.PromptPrefix = prefix
	}
}

func WithTemperature(t float32) Option {
	return func(o *Options) {
		o.Temperature = t
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = client
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		MaxTokens: DefaultMaxTokens,
		Context:   context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// System joins the configured prefix with the prompt's own system text.
func (o Options) System(p Prompt) string {
	switch {
	case len(o.PromptPrefix) == 0:
		return p.System
	case len(p.System) == 0:
		return o.PromptPrefix
	default:
		return o.PromptPrefix + "\n" + p.System
	}
}
