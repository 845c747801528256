package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/generator"
	"github.com/w-h-a/docqa/internal/metrics"
	"github.com/w-h-a/docqa/memory"
	"github.com/w-h-a/docqa/retriever"
	"github.com/w-h-a/docqa/store"
	"github.com/w-h-a/docqa/websearch"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/w-h-a/docqa/chain"

type Stage int

const (
	StageRewrite Stage = iota
	StageRetrieve
	StagePrompt
	StageGenerate
	StageFallback
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageRewrite:
		return "rewrite"
	case StageRetrieve:
		return "retrieve"
	case StagePrompt:
		return "prompt"
	case StageGenerate:
		return "generate"
	case StageFallback:
		return "fallback_search"
	case StageComplete:
		return "complete"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

type Result struct {
	Question     string
	Query        string
	Answer       string
	Sources      []store.Match
	WebResults   string
	FallbackUsed bool
}

// Chain answers one question at a time against one collection. It holds no
// per-turn state, so concurrent turns on different memories are safe.
type Chain struct {
	options   Options
	retriever retriever.Retriever
	generator generator.Generator
	tracer    trace.Tracer
}

// Ask runs a whole turn. Memory gains the turn only when every stage succeeds.
func (c *Chain) Ask(ctx context.Context, collection string, mem *memory.Memory, question string) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "chain.ask")

	res, p, err := c.prepare(ctx, collection, mem, question)
	if err != nil {
		return Result{}, c.finish(ctx, span, err)
	}

	answer, err := c.generate(ctx, p)
	if err != nil {
		return Result{}, c.finish(ctx, span, err)
	}

	res.Answer = answer
	res = c.fallback(ctx, res)
	c.complete(ctx, mem, res)

	c.finish(ctx, span, nil)

	return res, nil
}

// Stream runs rewrite, retrieve and prompt before returning; generation then
// proceeds as the returned stream is consumed.
func (c *Chain) Stream(ctx context.Context, collection string, mem *memory.Memory, question string) (*AnswerStream, error) {
	ctx, span := c.tracer.Start(ctx, "chain.stream")

	res, p, err := c.prepare(ctx, collection, mem, question)
	if err != nil {
		return nil, c.finish(ctx, span, err)
	}

	genCtx, genSpan := c.stageSpan(ctx, StageGenerate)

	inner, err := c.generator.Stream(genCtx, p)
	if err != nil {
		err = c.fail(StageGenerate, err)
		endSpan(genSpan, err)
		return nil, c.finish(ctx, span, err)
	}

	return &AnswerStream{
		chain:   c,
		ctx:     ctx,
		span:    span,
		genSpan: genSpan,
		mem:     mem,
		inner:   inner,
		result:  res,
	}, nil
}

func (c *Chain) prepare(ctx context.Context, collection string, mem *memory.Memory, question string) (Result, generator.Prompt, error) {
	history := mem.Messages()

	query, err := c.rewrite(ctx, question, history)
	if err != nil {
		return Result{}, generator.Prompt{}, err
	}

	sources, err := c.retrieve(ctx, collection, query)
	if err != nil {
		return Result{}, generator.Prompt{}, err
	}

	p := c.prompt(ctx, question, sources, history)

	return Result{
		Question: question,
		Query:    query,
		Sources:  sources,
	}, p, nil
}

func (c *Chain) rewrite(ctx context.Context, question string, history []memory.Message) (query string, err error) {
	ctx, span := c.stageSpan(ctx, StageRewrite)
	defer func() { endSpan(span, err) }()

	span.SetAttributes(attribute.Int("history.messages", len(history)))

	query, err = c.retriever.Rewrite(ctx, question, history)
	if err != nil {
		return "", c.fail(StageRewrite, err)
	}

	return query, nil
}

func (c *Chain) retrieve(ctx context.Context, collection string, query string) (matches []store.Match, err error) {
	ctx, span := c.stageSpan(ctx, StageRetrieve)
	defer func() { endSpan(span, err) }()

	matches, err = c.retriever.Retrieve(ctx, collection, query, c.options.K)
	if err != nil {
		return nil, c.fail(StageRetrieve, err)
	}

	span.SetAttributes(attribute.Int("retrieve.matches", len(matches)))

	return matches, nil
}

func (c *Chain) prompt(ctx context.Context, question string, sources []store.Match, history []memory.Message) generator.Prompt {
	_, span := c.stageSpan(ctx, StagePrompt)
	defer span.End()

	system := strings.ReplaceAll(c.options.SystemPrompt, "{context}", c.Context(sources))

	msgs := make([]generator.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, generator.Message{Role: generator.RoleUser, Content: question})

	return generator.Prompt{
		System:   system,
		Messages: msgs,
	}
}

// Context renders sources in retrieval order, each prefixed by its page.
func (c *Chain) Context(sources []store.Match) string {
	parts := make([]string, 0, len(sources))
	for _, m := range sources {
		parts = append(parts, fmt.Sprintf("[Page %d]\n%s", m.Chunk.Page, m.Chunk.Content))
	}
	return strings.Join(parts, c.options.Delimiter)
}

func (c *Chain) generate(ctx context.Context, p generator.Prompt) (answer string, err error) {
	ctx, span := c.stageSpan(ctx, StageGenerate)
	defer func() { endSpan(span, err) }()

	answer, err = c.generator.Generate(ctx, p)
	if err != nil {
		return "", c.fail(StageGenerate, err)
	}

	if len(strings.TrimSpace(answer)) == 0 {
		return "", c.fail(StageGenerate, errors.New("empty answer"))
	}

	return answer, nil
}

func (c *Chain) fallback(ctx context.Context, res Result) Result {
	if !c.options.Fallback || !c.Unknown(res.Answer) {
		return res
	}

	ctx, span := c.stageSpan(ctx, StageFallback)
	defer span.End()

	res.WebResults = websearch.Lookup(ctx, c.options.Searcher, res.Question, c.options.MaxResults)
	res.FallbackUsed = true

	metrics.Fallbacks.Inc()

	return res
}

func (c *Chain) complete(ctx context.Context, mem *memory.Memory, res Result) {
	_, span := c.stageSpan(ctx, StageComplete)
	defer span.End()

	mem.Append(memory.Turn{
		Question:   res.Question,
		Answer:     res.Answer,
		WebResults: res.WebResults,
		CreatedAt:  time.Now().UTC(),
	})
}

// Unknown reports whether answer admits the context did not contain it.
func (c *Chain) Unknown(answer string) bool {
	normalized := strings.ToLower(strings.NewReplacer("’", "'", "‘", "'").Replace(answer))
	for _, marker := range c.options.Markers {
		if strings.Contains(normalized, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// fail keeps auth failures as they are and marks everything else as a
// retryable generation failure of stage.
func (c *Chain) fail(stage Stage, err error) error {
	if errors.Is(err, errs.ErrAuth) {
		return err
	}
	return errs.Generation(stage.String(), err)
}

func (c *Chain) finish(ctx context.Context, span trace.Span, err error) error {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		outcome = metrics.OutcomeCancelled
	case errors.Is(err, errs.ErrAuth):
		outcome = metrics.OutcomeAuth
	default:
		outcome = metrics.OutcomeFailed
	}

	metrics.Questions.WithLabelValues(c.options.Provider, outcome).Inc()

	if err != nil && outcome != metrics.OutcomeCancelled {
		slog.ErrorContext(ctx, "question turn failed", "provider", c.options.Provider, "error", err)
	}

	endSpan(span, err)

	return err
}

func (c *Chain) stageSpan(ctx context.Context, stage Stage) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "chain."+stage.String(), trace.WithAttributes(
		attribute.String("chain.stage", stage.String()),
		attribute.String("chain.provider", c.options.Provider),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func New(r retriever.Retriever, g generator.Generator, opts ...Option) *Chain {
	if r == nil || g == nil {
		panic("chain requires a retriever and a generator")
	}

	options := NewOptions(opts...)

	if options.K < 1 {
		options.K = DefaultK
	}

	tp := options.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Chain{
		options:   options,
		retriever: r,
		generator: g,
		tracer:    tp.Tracer(instrumentation),
	}
}
