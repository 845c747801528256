package chain

import (
	"context"
	"errors"
	"strings"

	"github.com/w-h-a/docqa/generator"
	"github.com/w-h-a/docqa/memory"
	"go.opentelemetry.io/otel/trace"
)

var errClosed = errors.New("answer stream closed")

// AnswerStream yields answer fragments of one turn. Fallback search and the
// memory update run once, after the last fragment. Closing or cancelling
// before then discards the turn.
type AnswerStream struct {
	chain   *Chain
	ctx     context.Context
	span    trace.Span
	genSpan trace.Span
	mem     *memory.Memory
	inner   *generator.Stream

	answer  strings.Builder
	current string
	result  Result
	err     error
	done    bool
}

func (s *AnswerStream) Next() bool {
	if s.done {
		return false
	}

	if s.inner.Next() {
		s.current = s.inner.Current()
		s.answer.WriteString(s.current)
		return true
	}

	s.current = ""
	s.done = true

	err := s.inner.Err()
	if err == nil && len(strings.TrimSpace(s.answer.String())) == 0 {
		err = errors.New("empty answer")
	}
	if err != nil {
		s.err = s.chain.fail(StageGenerate, err)
		endSpan(s.genSpan, s.err)
		s.err = s.chain.finish(s.ctx, s.span, s.err)
		return false
	}

	endSpan(s.genSpan, nil)

	s.result.Answer = s.answer.String()
	s.result = s.chain.fallback(s.ctx, s.result)
	s.chain.complete(s.ctx, s.mem, s.result)

	s.chain.finish(s.ctx, s.span, nil)

	return false
}

func (s *AnswerStream) Current() string {
	return s.current
}

func (s *AnswerStream) Err() error {
	return s.err
}

// Result is available once Next has returned false without error.
func (s *AnswerStream) Result() (Result, bool) {
	if !s.done || s.err != nil {
		return Result{}, false
	}
	return s.result, true
}

// Sources are known before the first fragment.
func (s *AnswerStream) Sources() Result {
	return Result{
		Question: s.result.Question,
		Query:    s.result.Query,
		Sources:  s.result.Sources,
	}
}

func (s *AnswerStream) Close() error {
	if s.done {
		return nil
	}

	s.done = true
	s.inner.Close()

	s.err = s.chain.fail(StageGenerate, errClosed)
	endSpan(s.genSpan, context.Canceled)
	s.chain.finish(s.ctx, s.span, context.Canceled)

	return nil
}
