package chain

import (
	"context"

	"github.com/w-h-a/docqa/websearch"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultK         = 3
	DefaultDelimiter = "\n\n---\n\n"

	// DefaultSystemPrompt receives the retrieved context in place of {context}.
	DefaultSystemPrompt = "You are an assistant for question-answering tasks. " +
		"Use the following pieces of retrieved context to answer the question. " +
		"If you don't know the answer, say that you don't know.\n\n" +
		"{context}"
)

// DefaultMarkers are phrases by which a model admits the context lacks the answer.
var DefaultMarkers = []string{
	"i don't know",
	"i do not know",
	"i don't have information",
	"i do not have information",
	"i don't have any information",
	"i do not have any information",
	"i cannot find",
	"i can't find",
	"i could not find",
	"i couldn't find",
	"i am unable to find",
	"i'm unable to find",
	"not provided in the context",
	"not mentioned in the context",
	"the context does not contain",
	"the provided context does not",
}

type Option func(*Options)

type Options struct {
	K              int
	SystemPrompt   string
	Fallback       bool
	Searcher       websearch.Searcher
	Markers        []string
	MaxResults     int
	Delimiter      string
	Provider       string
	TracerProvider trace.TracerProvider
	Context        context.Context
}

func WithK(k int) Option {
	return func(o *Options) {
		o.K = k
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(o *Options) {
		o.SystemPrompt = prompt
	}
}

// WithFallback enables the web search that runs when an answer contains a marker.
func WithFallback(s websearch.Searcher) Option {
	return func(o *Options) {
		o.Fallback = s != nil
		o.Searcher = s
	}
}

func WithMarkers(markers ...string) Option {
	return func(o *Options) {
		o.Markers = markers
	}
}

func WithMaxResults(n int) Option {
	return func(o *Options) {
		o.MaxResults = n
	}
}

func WithDelimiter(d string) Option {
	return func(o *Options) {
		o.Delimiter = d
	}
}

// WithProvider labels metrics and spans with the generating provider.
func WithProvider(name string) Option {
	return func(o *Options) {
		o.Provider = name
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		K:            DefaultK,
		SystemPrompt: DefaultSystemPrompt,
		Markers:      DefaultMarkers,
		MaxResults:   websearch.DefaultMaxResults,
		Delimiter:    DefaultDelimiter,
		Context:      context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
