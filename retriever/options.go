package retriever

import (
	"context"

	"github.com/w-h-a/docqa/embedder"
	"github.com/w-h-a/docqa/generator"
	"github.com/w-h-a/docqa/store"
)

type Option func(*Options)

type Options struct {
	Embedder    embedder.Embedder
	Generator   generator.Generator
	Store       store.Store
	Instruction string
	Context     context.Context
}

func WithEmbedder(e embedder.Embedder) Option {
	return func(o *Options) {
		o.Embedder = e
	}
}

func WithGenerator(g generator.Generator) Option {
	return func(o *Options) {
		o.Generator = g
	}
}

func WithStore(s store.Store) Option {
	return func(o *Options) {
		o.Store = s
	}
}

func WithInstruction(instruction string) Option {
	return func(o *Options) {
		o.Instruction = instruction
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Instruction: DefaultInstruction,
		Context:     context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
