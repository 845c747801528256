package docqa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/w-h-a/docqa/chain"
	"github.com/w-h-a/docqa/chunker"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/internal/service/document"
	"github.com/w-h-a/docqa/internal/service/session"
	"github.com/w-h-a/docqa/loader"
	"github.com/w-h-a/docqa/loader/pdf"
	"github.com/w-h-a/docqa/memory"
	"github.com/w-h-a/docqa/provider"
	"github.com/w-h-a/docqa/store"
	"github.com/w-h-a/docqa/store/chromem"
	memorystore "github.com/w-h-a/docqa/store/memory"
	"github.com/w-h-a/docqa/store/postgres"
	"github.com/w-h-a/docqa/store/qdrant"
	"github.com/w-h-a/docqa/websearch"
	"github.com/w-h-a/docqa/websearch/duckduckgo"
)

type (
	Document   = document.Metadata
	Result     = chain.Result
	Turn       = memory.Turn
	Collection = store.Collection
	Stream     = chain.AnswerStream
)

// ErrSessionNotFound is returned for ids no session answers to.
var ErrSessionNotFound = session.ErrNotFound

// Assistant owns the vector store and every open session.
type Assistant struct {
	options  Options
	store    store.Store
	sessions *session.Service
}

// NewSession opens a session bound to cfg and returns its id. An empty id
// gets a generated one.
func (a *Assistant) NewSession(ctx context.Context, id string, cfg provider.Config, webSearch bool) (string, error) {
	s, err := a.sessions.Create(ctx, cfg, session.WithID(id), session.WithWebSearch(webSearch))
	if err != nil {
		return "", err
	}
	return s.ID(), nil
}

func (a *Assistant) Sessions(ctx context.Context) []string {
	return a.sessions.List(ctx)
}

func (a *Assistant) Upload(ctx context.Context, id string, filename string, r io.ReaderAt, size int64) (Document, error) {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	return s.Upload(ctx, filename, r, size)
}

// UploadFile uploads the document at path.
func (a *Assistant) UploadFile(ctx context.Context, id string, path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", errs.ErrLoad, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", errs.ErrLoad, err)
	}

	return a.Upload(ctx, id, info.Name(), f, info.Size())
}

func (a *Assistant) Ask(ctx context.Context, id string, question string) (Result, error) {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return s.Ask(ctx, question)
}

// Stream answers fragment by fragment. The caller must Close the stream.
func (a *Assistant) Stream(ctx context.Context, id string, question string) (*Stream, error) {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Stream(ctx, question)
}

func (a *Assistant) SwitchProvider(ctx context.Context, id string, cfg provider.Config) error {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.SwitchProvider(ctx, cfg)
}

func (a *Assistant) SetWebSearch(ctx context.Context, id string, enabled bool) error {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	s.SetWebSearch(enabled)
	return nil
}

func (a *Assistant) ClearChat(ctx context.Context, id string) error {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	s.ClearChat()
	return nil
}

func (a *Assistant) Reset(ctx context.Context, id string) error {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.Reset(ctx)
}

func (a *Assistant) Resume(ctx context.Context, id string, collection string) (Collection, error) {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	return s.Resume(ctx, collection)
}

func (a *Assistant) History(ctx context.Context, id string) ([]Turn, error) {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.History(), nil
}

// Document describes the loaded document, or nil before an upload.
func (a *Assistant) Document(ctx context.Context, id string) (*Document, error) {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Snapshot().Document, nil
}

// Status describes a session without its secrets.
type Status struct {
	ID         string          `json:"id"`
	Provider   provider.Config `json:"provider"`
	WebSearch  bool            `json:"web_search"`
	Document   *Document       `json:"document,omitempty"`
	Collection string          `json:"collection,omitempty"`
	Ready      bool            `json:"ready"`
}

func (a *Assistant) Status(ctx context.Context, id string) (Status, error) {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}

	st := s.Snapshot()

	return Status{
		ID:         s.ID(),
		Provider:   st.Provider.Redacted(),
		WebSearch:  st.WebSearch,
		Document:   st.Document,
		Collection: st.Collection,
		Ready:      st.Ready(),
	}, nil
}

// DeleteSession closes the session and drops the collection it built.
func (a *Assistant) DeleteSession(ctx context.Context, id string) error {
	return a.sessions.Delete(ctx, id)
}

// Close forgets every session and releases the store. Persisted collections
// survive for a later Resume.
func (a *Assistant) Close(ctx context.Context) error {
	err := a.sessions.Close(ctx)

	if c, ok := a.store.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}

	return err
}

func New(opts ...Option) (*Assistant, error) {
	options := NewOptions(opts...)

	s, err := newStore(options)
	if err != nil {
		return nil, err
	}

	c, err := chunker.New(
		chunker.WithSize(options.ChunkSize),
		chunker.WithOverlap(options.ChunkOverlap),
	)
	if err != nil {
		return nil, err
	}

	l := pdf.NewLoader(loader.WithMaxBytes(options.MaxUploadBytes))

	searcher := options.Searcher
	if searcher == nil {
		var searchOpts []websearch.Option
		if len(options.WebSearchURL) > 0 {
			searchOpts = append(searchOpts, websearch.WithBaseURL(options.WebSearchURL))
		}
		searcher = duckduckgo.NewSearcher(searchOpts...)
	}

	sessionOpts := []session.Option{
		session.WithStore(s),
		session.WithBuilder(document.NewBuilder(l, c, options.Concurrency)),
		session.WithSearcher(searcher),
		session.WithPrefix(options.Prefix),
		session.WithMemoryWindow(options.MemoryWindow),
		session.WithChainOptions(chain.WithK(options.K)),
	}
	if options.Factory != nil {
		sessionOpts = append(sessionOpts, session.WithFactory(options.Factory))
	}

	slog.InfoContext(options.Context, "assistant ready", "store", options.Store, "chunk_size", options.ChunkSize, "chunk_overlap", options.ChunkOverlap, "k", options.K)

	return &Assistant{
		options:  options,
		store:    s,
		sessions: session.New(sessionOpts...),
	}, nil
}

func newStore(options Options) (store.Store, error) {
	switch options.Store {
	case StoreMemory:
		return memorystore.NewStore(), nil
	case StoreChromem, "":
		location := options.StoreLocation
		if len(location) == 0 {
			location = chromem.DefaultLocation
		}
		return chromem.NewStore(store.WithLocation(location), store.WithCompress(true))
	case StorePostgres:
		if len(options.StoreLocation) == 0 {
			return nil, errs.InvalidConfig("postgres store needs a connection string")
		}
		return postgres.NewStore(store.WithLocation(options.StoreLocation), store.WithContext(options.Context))
	case StoreQdrant:
		return qdrant.NewStore(
			store.WithLocation(options.StoreLocation),
			store.WithApiKey(options.StoreApiKey),
			store.WithContext(options.Context),
		)
	default:
		return nil, errs.InvalidConfig("unknown store %q", options.Store)
	}
}
