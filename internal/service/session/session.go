package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/w-h-a/docqa/chain"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/internal/metrics"
	"github.com/w-h-a/docqa/internal/service/document"
	"github.com/w-h-a/docqa/memory"
	"github.com/w-h-a/docqa/provider"
	"github.com/w-h-a/docqa/retriever"
	"github.com/w-h-a/docqa/store"
)

const (
	triggerUpload = "upload"
	triggerSwitch = "provider_switch"
)

type Session struct {
	id      string
	options *Options
	service *Service
	state   atomic.Pointer[State]
	// build serialises everything that replaces the state
	build sync.Mutex
}

func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the current state. It stays valid however the session
// changes afterwards.
func (s *Session) Snapshot() *State {
	return s.state.Load()
}

// Upload indexes a new document into a fresh collection. On success the
// conversation starts over; on failure the previous state is kept.
func (s *Session) Upload(ctx context.Context, filename string, r io.ReaderAt, size int64) (document.Metadata, error) {
	s.build.Lock()
	defer s.build.Unlock()

	cur := s.state.Load()
	gen := cur.Generation + 1
	name := s.collectionName(gen)
	start := time.Now()

	meta, chunks, entries, err := s.options.Builder.Build(ctx, filename, r, size, cur.pair.Embedder)
	if err != nil {
		s.observe(ctx, triggerUpload, start, err)
		return document.Metadata{}, err
	}

	if err := s.index(ctx, name, cur.Provider, &meta, entries); err != nil {
		s.observe(ctx, triggerUpload, start, err)
		return document.Metadata{}, err
	}

	next := &State{
		Provider:   cur.Provider,
		Identity:   cur.Identity,
		WebSearch:  cur.WebSearch,
		Document:   &meta,
		Chunks:     chunks,
		Collection: name,
		Memory:     memory.New(memory.WithWindow(s.options.MemoryWindow)),
		Generation: gen,
		pair:       cur.pair,
		owned:      true,
	}
	next.Chain = s.newChain(next)

	s.state.Store(next)
	s.release(ctx, cur)
	s.observe(ctx, triggerUpload, start, nil)

	return meta, nil
}

// SwitchProvider replaces embedder and generator. A loaded document is
// re-embedded into a fresh collection; the conversation is kept.
func (s *Session) SwitchProvider(ctx context.Context, cfg provider.Config) error {
	pair, err := s.options.Factory(cfg)
	if err != nil {
		return err
	}

	s.build.Lock()
	defer s.build.Unlock()

	cur := s.state.Load()

	next := &State{
		Provider:   pair.Config,
		Identity:   pair.Config.EmbeddingIdentity(),
		WebSearch:  cur.WebSearch,
		Document:   cur.Document,
		Chunks:     cur.Chunks,
		Memory:     cur.Memory,
		Generation: cur.Generation,
		pair:       pair,
	}

	if cur.Document == nil {
		s.state.Store(next)
		return nil
	}

	if len(cur.Chunks) == 0 {
		return errs.InvalidConfig("the resumed index %s cannot be re-embedded, upload the document again", cur.Collection)
	}

	start := time.Now()

	next.Generation = cur.Generation + 1
	next.Collection = s.collectionName(next.Generation)
	next.owned = true

	entries, err := s.options.Builder.Rebuild(ctx, cur.Chunks, pair.Embedder)
	if err != nil {
		s.observe(ctx, triggerSwitch, start, err)
		return err
	}

	if err := s.index(ctx, next.Collection, next.Provider, cur.Document, entries); err != nil {
		s.observe(ctx, triggerSwitch, start, err)
		return err
	}

	next.Chain = s.newChain(next)

	s.state.Store(next)
	s.release(ctx, cur)
	s.observe(ctx, triggerSwitch, start, nil)

	return nil
}

// SetWebSearch toggles the fallback search for later questions.
func (s *Session) SetWebSearch(enabled bool) {
	s.build.Lock()
	defer s.build.Unlock()

	cur := s.state.Load()
	if cur.WebSearch == enabled {
		return
	}

	next := *cur
	next.WebSearch = enabled
	if cur.Ready() {
		next.Chain = s.newChain(&next)
	}

	s.state.Store(&next)
}

func (s *Session) Ask(ctx context.Context, question string) (chain.Result, error) {
	st, err := s.ready(question)
	if err != nil {
		return chain.Result{}, err
	}

	return st.Chain.Ask(ctx, st.Collection, st.Memory, question)
}

func (s *Session) Stream(ctx context.Context, question string) (*chain.AnswerStream, error) {
	st, err := s.ready(question)
	if err != nil {
		return nil, err
	}

	return st.Chain.Stream(ctx, st.Collection, st.Memory, question)
}

func (s *Session) History() []memory.Turn {
	return s.state.Load().Memory.History()
}

func (s *Session) ClearChat() {
	s.state.Load().Memory.Clear()
}

// Reset forgets the document and the conversation but keeps the provider.
func (s *Session) Reset(ctx context.Context) error {
	s.build.Lock()
	defer s.build.Unlock()

	cur := s.state.Load()

	s.state.Store(&State{
		Provider:   cur.Provider,
		Identity:   cur.Identity,
		WebSearch:  cur.WebSearch,
		Memory:     memory.New(memory.WithWindow(s.options.MemoryWindow)),
		Generation: cur.Generation,
		pair:       cur.pair,
	})

	s.release(ctx, cur)

	return nil
}

// Resume attaches to a collection persisted by an earlier run. Its vectors
// must come from the embedding model the session uses now.
func (s *Session) Resume(ctx context.Context, collection string) (store.Collection, error) {
	s.build.Lock()
	defer s.build.Unlock()

	cur := s.state.Load()

	if owner, ok := s.service.owner(collection); ok && owner != s.id {
		return store.Collection{}, errs.InvalidConfig("collection %s belongs to session %s", collection, owner)
	}

	desc, err := s.options.Store.Describe(ctx, collection)
	if errors.Is(err, store.ErrNotFound) {
		return store.Collection{}, errs.InvalidConfig("collection %s does not exist", collection)
	}
	if err != nil {
		return store.Collection{}, errs.IndexBuild("describe %s: %v", collection, err)
	}

	if identity := desc.Metadata[store.MetaIdentity]; identity != cur.Identity {
		return store.Collection{}, errs.InvalidConfig("collection %s was embedded with %q, the session embeds with %q", collection, identity, cur.Identity)
	}

	if collection == cur.Collection {
		return desc, nil
	}

	// a collection from an earlier run of this session keeps its generation,
	// so the next upload does not build over it
	gen := cur.Generation
	if g, ok := s.generationOf(collection); ok && g > gen {
		gen = g
	}

	pages, _ := strconv.Atoi(desc.Metadata[store.MetaPageCount])

	next := &State{
		Provider:  cur.Provider,
		Identity:  cur.Identity,
		WebSearch: cur.WebSearch,
		Document: &document.Metadata{
			Filename:   desc.Metadata[store.MetaDocument],
			PageCount:  pages,
			ChunkCount: desc.Count,
		},
		Collection: collection,
		Memory:     memory.New(memory.WithWindow(s.options.MemoryWindow)),
		Generation: gen,
		pair:       cur.pair,
	}
	next.Chain = s.newChain(next)

	s.state.Store(next)
	s.release(ctx, cur)

	return desc, nil
}

// Close drops the collection the session built.
func (s *Session) Close(ctx context.Context) error {
	s.build.Lock()
	defer s.build.Unlock()

	cur := s.state.Load()
	if !cur.owned || len(cur.Collection) == 0 {
		return nil
	}

	return s.options.Store.Drop(ctx, cur.Collection)
}

func (s *Session) ready(question string) (*State, error) {
	if len(strings.TrimSpace(question)) == 0 {
		return nil, errs.InvalidConfig("question is empty")
	}

	st := s.state.Load()
	if !st.Ready() {
		return nil, fmt.Errorf("%w: upload a document first", errs.ErrNotReady)
	}

	return st, nil
}

func (s *Session) index(ctx context.Context, name string, cfg provider.Config, doc *document.Metadata, entries []store.Entry) error {
	meta := map[string]string{
		store.MetaProvider:  cfg.EmbeddingName,
		store.MetaModel:     cfg.EmbeddingModel,
		store.MetaIdentity:  cfg.EmbeddingIdentity(),
		store.MetaDocument:  doc.Filename,
		store.MetaPageCount: strconv.Itoa(doc.PageCount),
	}

	if err := s.options.Store.Build(ctx, name, meta, entries); err != nil {
		if dropErr := s.options.Store.Drop(context.WithoutCancel(ctx), name); dropErr != nil {
			slog.ErrorContext(ctx, "failed to drop partial collection", "collection", name, "error", dropErr)
		}
		if errors.Is(err, errs.ErrIndexBuild) {
			return err
		}
		return fmt.Errorf("%w: %w", errs.ErrIndexBuild, err)
	}

	return nil
}

func (s *Session) newChain(st *State) *chain.Chain {
	r := retriever.NewRetriever(
		retriever.WithEmbedder(st.pair.Embedder),
		retriever.WithGenerator(st.pair.Generator),
		retriever.WithStore(s.options.Store),
	)

	opts := append([]chain.Option{chain.WithProvider(st.Provider.Name)}, s.options.ChainOptions...)
	if st.WebSearch && s.options.Searcher != nil {
		opts = append(opts, chain.WithFallback(s.options.Searcher))
	}

	return chain.New(r, st.pair.Generator, opts...)
}

// release drops the collection of a replaced state.
func (s *Session) release(ctx context.Context, old *State) {
	if !old.owned || len(old.Collection) == 0 {
		return
	}

	if err := s.options.Store.Drop(context.WithoutCancel(ctx), old.Collection); err != nil {
		slog.ErrorContext(ctx, "failed to drop replaced collection", "collection", old.Collection, "error", err)
	}
}

func (s *Session) observe(ctx context.Context, trigger string, start time.Time, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeFailed
		slog.ErrorContext(ctx, "index build failed", "session", s.id, "trigger", trigger, "error", err)
	}

	metrics.Builds.WithLabelValues(trigger, outcome).Inc()
	metrics.BuildDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
}

func (s *Session) collectionName(gen uint64) string {
	return fmt.Sprintf("%s-%s-%d", s.options.Prefix, s.id, gen)
}

// generationOf reports the generation of a collection named in this
// session's namespace.
func (s *Session) generationOf(collection string) (uint64, bool) {
	return generationOf(s.options.Prefix, s.id, collection)
}

func generationOf(prefix, id, collection string) (uint64, bool) {
	rest, ok := strings.CutPrefix(collection, prefix+"-"+id+"-")
	if !ok {
		return 0, false
	}

	gen, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}

	return gen, true
}
