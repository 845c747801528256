package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamYieldsFragmentsInOrder(t *testing.T) {
	s := NewStream(context.Background(), func(ctx context.Context, emit func(string) error) error {
		for _, frag := range []string{"The ", "", "total ", "is 42."} {
			if err := emit(frag); err != nil {
				return err
			}
		}
		return nil
	})

	var got []string
	for s.Next() {
		got = append(got, s.Current())
	}

	require.NoError(t, s.Err())
	assert.Equal(t, []string{"The ", "total ", "is 42."}, got)
	assert.False(t, s.Next())
}

func TestStreamReportsProducerError(t *testing.T) {
	boom := errors.New("boom")
	s := NewStream(context.Background(), func(ctx context.Context, emit func(string) error) error {
		_ = emit("partial")
		return boom
	})

	require.True(t, s.Next())
	assert.Equal(t, "partial", s.Current())
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), boom)
}

func TestStreamCloseStopsSlowProducer(t *testing.T) {
	stopped := make(chan struct{})

	s := NewStream(context.Background(), func(ctx context.Context, emit func(string) error) error {
		defer close(stopped)
		for {
			if err := emit("tick "); err != nil {
				return err
			}
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	require.True(t, s.Next())
	require.NoError(t, s.Close())

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("producer still running after Close")
	}

	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestStreamCancelledByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		<-ctx.Done()
		return ctx.Err()
	})

	cancel()

	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestOptionsSystem(t *testing.T) {
	p := Prompt{
		System: "Answer briefly.",
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		},
	}

	o := NewOptions(WithPromptPrefix("Be kind."))
	assert.Equal(t, "Be kind.\nAnswer briefly.", o.System(p))
	assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
}
