package generator

import (
	"context"
	"sync"
)

// Stream is a finite, non-restartable sequence of answer fragments backed by
// a producer goroutine. It is meant for a single consumer.
type Stream struct {
	ch      chan string
	cancel  context.CancelFunc
	current string
	done    bool

	mtx sync.RWMutex
	err error

	closeOnce sync.Once
}

// Next blocks until the next fragment is available. It returns false once the
// producer has finished, failed or the stream was closed.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	frag, ok := <-s.ch
	if !ok {
		s.done = true
		s.current = ""
		return false
	}

	s.current = frag

	return true
}

func (s *Stream) Current() string {
	return s.current
}

// Err reports the producer error after Next has returned false.
func (s *Stream) Err() error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.err
}

// Close cancels the producer and waits for it to exit.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		for range s.ch {
		}
		s.done = true
	})
	return nil
}

// NewStream runs produce in its own goroutine. produce hands fragments to
// emit, which blocks until the consumer takes them and fails once ctx is done.
func NewStream(ctx context.Context, produce func(ctx context.Context, emit func(string) error) error) *Stream {
	ctx, cancel := context.WithCancel(ctx)

	s := &Stream{
		ch:     make(chan string),
		cancel: cancel,
	}

	emit := func(frag string) error {
		if len(frag) == 0 {
			return nil
		}
		select {
		case s.ch <- frag:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(s.ch)
		defer cancel()

		err := produce(ctx, emit)
		if err == nil {
			err = ctx.Err()
		}

		s.mtx.Lock()
		s.err = err
		s.mtx.Unlock()
	}()

	return s
}
