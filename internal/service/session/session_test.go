package session

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/docqa/chain"
	"github.com/w-h-a/docqa/chunker"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/internal/service/document"
	"github.com/w-h-a/docqa/internal/testutil"
	"github.com/w-h-a/docqa/loader/pdf"
	"github.com/w-h-a/docqa/provider"
	"github.com/w-h-a/docqa/store"
	memstore "github.com/w-h-a/docqa/store/memory"
)

var invoice = testutil.PDF(
	"Shipping terms: delivery within thirty days of the order date.",
	"The invoice total is 42 dollars, payable to Acme Corp.",
	"Acme Corp is located at 1 Anvil Road, Springfield.",
)

type fakeProviders struct {
	gens map[string]*testutil.Generator
	embs map[string]*testutil.HashEmbedder
}

func newFakeProviders() *fakeProviders {
	return &fakeProviders{
		gens: map[string]*testutil.Generator{
			provider.OpenAI: {Answer: testutil.Reply("openai says 42.")},
			provider.Ollama: {Answer: testutil.Reply("ollama says 42.")},
		},
		embs: map[string]*testutil.HashEmbedder{
			provider.OpenAI: {Dim: 256},
			provider.Ollama: {Dim: 128},
		},
	}
}

func (f *fakeProviders) factory(cfg provider.Config) (provider.Pair, error) {
	if err := cfg.Validate(); err != nil {
		return provider.Pair{}, err
	}

	cfg = cfg.Normalize()

	return provider.Pair{
		Config:    cfg,
		Embedder:  f.embs[cfg.EmbeddingName],
		Generator: f.gens[cfg.Name],
	}, nil
}

func newService(t *testing.T, f *fakeProviders) (*Service, store.Store) {
	t.Helper()

	c, err := chunker.New()
	require.NoError(t, err)

	st := memstore.NewStore()

	return New(
		WithStore(st),
		WithBuilder(document.NewBuilder(pdf.NewLoader(), c, 2)),
		WithFactory(f.factory),
		WithChainOptions(chain.WithK(1)),
	), st
}

var openaiCfg = provider.Config{Name: provider.OpenAI, APIKey: "sk-test"}

func upload(t *testing.T, s *Session) document.Metadata {
	t.Helper()
	meta, err := s.Upload(context.Background(), "invoice.pdf", bytes.NewReader(invoice), int64(len(invoice)))
	require.NoError(t, err)
	return meta
}

func TestAskBeforeUploadIsNotReady(t *testing.T) {
	svc, _ := newService(t, newFakeProviders())

	s, err := svc.Create(context.Background(), openaiCfg)
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "What is the invoice total?")
	assert.ErrorIs(t, err, errs.ErrNotReady)

	_, err = s.Stream(context.Background(), "What is the invoice total?")
	assert.ErrorIs(t, err, errs.ErrNotReady)
}

func TestUploadThenAskRetrievesThePage(t *testing.T) {
	svc, _ := newService(t, newFakeProviders())

	s, err := svc.Create(context.Background(), openaiCfg)
	require.NoError(t, err)

	meta := upload(t, s)
	assert.Equal(t, 3, meta.PageCount)
	assert.Equal(t, 3, meta.ChunkCount)

	res, err := s.Ask(context.Background(), "What is the invoice total?")
	require.NoError(t, err)

	require.Len(t, res.Sources, 1)
	assert.Equal(t, 2, res.Sources[0].Chunk.Page)
	assert.Equal(t, "openai says 42.", res.Answer)
	assert.Len(t, s.History(), 1)

	_, err = s.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestUploadStartsANewConversationAndCollection(t *testing.T) {
	svc, st := newService(t, newFakeProviders())

	s, err := svc.Create(context.Background(), openaiCfg)
	require.NoError(t, err)

	upload(t, s)
	first := s.Snapshot()

	_, err = s.Ask(context.Background(), "What is the invoice total?")
	require.NoError(t, err)

	upload(t, s)
	second := s.Snapshot()

	assert.NotEqual(t, first.Collection, second.Collection)
	assert.Equal(t, 0, second.Memory.Len())

	_, err = st.Describe(context.Background(), first.Collection)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFailedUploadKeepsPreviousState(t *testing.T) {
	svc, _ := newService(t, newFakeProviders())

	s, err := svc.Create(context.Background(), openaiCfg)
	require.NoError(t, err)

	upload(t, s)
	before := s.Snapshot()

	_, err = s.Upload(context.Background(), "broken.pdf", bytes.NewReader([]byte("%PDF-1.4 garbage")), 16)
	assert.ErrorIs(t, err, errs.ErrLoad)

	assert.Same(t, before, s.Snapshot())

	_, err = s.Ask(context.Background(), "What is the invoice total?")
	assert.NoError(t, err)
}

func TestSwitchProviderRebuildsIndexAndChain(t *testing.T) {
	f := newFakeProviders()
	svc, st := newService(t, f)
	ctx := context.Background()

	s, err := svc.Create(ctx, openaiCfg)
	require.NoError(t, err)

	upload(t, s)
	_, err = s.Ask(ctx, "What is the invoice total?")
	require.NoError(t, err)

	before := s.Snapshot()
	openaiPrompts := len(f.gens[provider.OpenAI].Prompts())

	require.NoError(t, s.SwitchProvider(ctx, provider.Config{Name: provider.Ollama}))

	after := s.Snapshot()
	assert.NotEqual(t, before.Collection, after.Collection)
	assert.NotSame(t, before.Chain, after.Chain)
	assert.Equal(t, "ollama/nomic-embed-text", after.Identity)
	assert.Same(t, before.Memory, after.Memory)

	col, err := st.Describe(ctx, after.Collection)
	require.NoError(t, err)
	assert.Equal(t, "ollama/nomic-embed-text", col.Metadata[store.MetaIdentity])

	_, err = st.Describe(ctx, before.Collection)
	assert.ErrorIs(t, err, store.ErrNotFound)

	res, err := s.Ask(ctx, "What is the invoice total?")
	require.NoError(t, err)
	assert.Equal(t, "ollama says 42.", res.Answer)
	assert.Equal(t, openaiPrompts, len(f.gens[provider.OpenAI].Prompts()), "old chain must not be used")
	assert.Equal(t, 2, s.Snapshot().Memory.Len())
}

func TestFailedSwitchKeepsPreviousState(t *testing.T) {
	f := newFakeProviders()
	f.embs[provider.Ollama] = &testutil.HashEmbedder{Err: errs.Unavailable("ollama is down")}

	svc, _ := newService(t, f)
	ctx := context.Background()

	s, err := svc.Create(ctx, openaiCfg)
	require.NoError(t, err)

	upload(t, s)
	before := s.Snapshot()

	err = s.SwitchProvider(ctx, provider.Config{Name: provider.Ollama})
	assert.ErrorIs(t, err, errs.ErrProviderUnavailable)
	assert.Same(t, before, s.Snapshot())

	err = s.SwitchProvider(ctx, provider.Config{Name: provider.OpenAI})
	assert.ErrorIs(t, err, errs.ErrAuth)
	assert.Same(t, before, s.Snapshot())

	res, err := s.Ask(ctx, "What is the invoice total?")
	require.NoError(t, err)
	assert.Equal(t, "openai says 42.", res.Answer)
}

func TestSwitchBeforeUpload(t *testing.T) {
	svc, _ := newService(t, newFakeProviders())

	s, err := svc.Create(context.Background(), openaiCfg)
	require.NoError(t, err)

	require.NoError(t, s.SwitchProvider(context.Background(), provider.Config{Name: provider.Ollama}))
	assert.Equal(t, provider.Ollama, s.Snapshot().Provider.Name)
	assert.False(t, s.Snapshot().Ready())
}

func TestAsksDuringSwitchSeeOneConsistentState(t *testing.T) {
	svc, _ := newService(t, newFakeProviders())
	ctx := context.Background()

	s, err := svc.Create(ctx, openaiCfg)
	require.NoError(t, err)
	upload(t, s)

	var wg sync.WaitGroup
	errCh := make(chan error, 20)

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Ask(ctx, "What is the invoice total?"); err != nil {
				errCh <- err
			}
		}()
	}

	require.NoError(t, s.SwitchProvider(ctx, provider.Config{Name: provider.Ollama}))

	wg.Wait()
	close(errCh)

	for err := range errCh {
		// a question may still run against the replaced collection
		assert.ErrorIs(t, err, store.ErrNotFound)
	}
}

func TestResume(t *testing.T) {
	svc, st := newService(t, newFakeProviders())
	ctx := context.Background()

	first, err := svc.Create(ctx, openaiCfg)
	require.NoError(t, err)
	upload(t, first)
	collection := first.Snapshot().Collection

	// resuming the live collection keeps it and the conversation
	_, err = first.Ask(ctx, "What is the invoice total?")
	require.NoError(t, err)

	desc, err := first.Resume(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, 3, desc.Count)
	assert.Equal(t, collection, first.Snapshot().Collection)
	assert.Len(t, first.History(), 1)

	_, err = st.Describe(ctx, collection)
	require.NoError(t, err)

	res, err := first.Ask(ctx, "What is the invoice total?")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sources[0].Chunk.Page)

	// another live session cannot attach it
	second, err := svc.Create(ctx, openaiCfg)
	require.NoError(t, err)

	_, err = second.Resume(ctx, collection)
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
	assert.False(t, second.Snapshot().Ready())

	// after a restart the collection is free to resume
	require.NoError(t, svc.Close(ctx))

	restarted, err := svc.Create(ctx, openaiCfg)
	require.NoError(t, err)

	desc, err = restarted.Resume(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, 3, desc.Count)
	assert.Equal(t, "invoice.pdf", restarted.Snapshot().Document.Filename)
	assert.Equal(t, 3, restarted.Snapshot().Document.PageCount)

	res, err = restarted.Ask(ctx, "What is the invoice total?")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sources[0].Chunk.Page)

	err = restarted.SwitchProvider(ctx, provider.Config{Name: provider.Ollama})
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)

	ollama, err := svc.Create(ctx, provider.Config{Name: provider.Ollama})
	require.NoError(t, err)

	_, err = ollama.Resume(ctx, collection)
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
	assert.False(t, ollama.Snapshot().Ready())

	_, err = ollama.Resume(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestResumeOwnCollectionAfterRestart(t *testing.T) {
	svc, st := newService(t, newFakeProviders())
	ctx := context.Background()

	first, err := svc.Create(ctx, openaiCfg, WithID("desk"))
	require.NoError(t, err)
	upload(t, first)
	collection := first.Snapshot().Collection

	require.NoError(t, svc.Close(ctx))

	again, err := svc.Create(ctx, openaiCfg, WithID("desk"))
	require.NoError(t, err)

	_, err = again.Resume(ctx, collection)
	require.NoError(t, err)

	// the next upload builds a new generation and leaves the resumed one alone
	upload(t, again)
	assert.NotEqual(t, collection, again.Snapshot().Collection)

	_, err = st.Describe(ctx, collection)
	assert.NoError(t, err)
}

func TestResetAndClearChat(t *testing.T) {
	svc, st := newService(t, newFakeProviders())
	ctx := context.Background()

	s, err := svc.Create(ctx, openaiCfg)
	require.NoError(t, err)
	upload(t, s)

	_, err = s.Ask(ctx, "What is the invoice total?")
	require.NoError(t, err)

	s.ClearChat()
	assert.Empty(t, s.History())
	assert.True(t, s.Snapshot().Ready())

	collection := s.Snapshot().Collection
	require.NoError(t, s.Reset(ctx))

	assert.False(t, s.Snapshot().Ready())
	assert.Nil(t, s.Snapshot().Document)
	_, err = st.Describe(ctx, collection)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetWebSearch(t *testing.T) {
	svc, _ := newService(t, newFakeProviders())
	ctx := context.Background()

	s, err := svc.Create(ctx, openaiCfg, WithWebSearch(true))
	require.NoError(t, err)
	assert.True(t, s.Snapshot().WebSearch)

	upload(t, s)
	before := s.Snapshot()

	s.SetWebSearch(false)
	after := s.Snapshot()

	assert.False(t, after.WebSearch)
	assert.NotSame(t, before.Chain, after.Chain)
	assert.Equal(t, before.Collection, after.Collection)
}

func TestService(t *testing.T) {
	svc, st := newService(t, newFakeProviders())
	ctx := context.Background()

	_, err := svc.Create(ctx, provider.Config{Name: provider.OpenAI})
	assert.ErrorIs(t, err, errs.ErrAuth)

	a, err := svc.Create(ctx, openaiCfg, WithID("a"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, openaiCfg, WithID("a"))
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)

	b, err := svc.Create(ctx, openaiCfg)
	require.NoError(t, err)
	assert.Len(t, b.ID(), 36)

	got, err := svc.Get(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Len(t, svc.List(ctx), 2)

	upload(t, a)
	collection := a.Snapshot().Collection
	assert.Equal(t, "docqa-a-1", collection)

	require.NoError(t, svc.Delete(ctx, "a"))
	_, err = st.Describe(ctx, collection)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "a"), ErrNotFound)

	require.NoError(t, svc.Close(ctx))
	assert.Empty(t, svc.List(ctx))
}
