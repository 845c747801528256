package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/internal/metrics"
	"github.com/w-h-a/docqa/memory"
	"github.com/w-h-a/docqa/provider"
)

var ErrNotFound = errors.New("session not found")

type Service struct {
	options  Options
	sessions map[string]*Session
	mtx      sync.RWMutex
}

// Create opens a session bound to cfg. No document is loaded yet.
func (s *Service) Create(ctx context.Context, cfg provider.Config, opts ...CreateOption) (*Session, error) {
	options := NewCreateOptions(opts...)

	id := strings.TrimSpace(options.ID)
	if len(id) == 0 {
		id = uuid.New().String()
	}

	pair, err := s.options.Factory(cfg)
	if err != nil {
		return nil, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.sessions[id]; ok {
		return nil, errs.InvalidConfig("session %s already exists", id)
	}

	session := &Session{
		id:      id,
		options: &s.options,
		service: s,
	}

	session.state.Store(&State{
		Provider:  pair.Config,
		Identity:  pair.Config.EmbeddingIdentity(),
		WebSearch: options.WebSearch,
		Memory:    memory.New(memory.WithWindow(s.options.MemoryWindow)),
		pair:      pair,
	})

	s.sessions[id] = session

	metrics.Sessions.Inc()

	return session, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return session, nil
}

func (s *Service) List(ctx context.Context) []string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Delete closes the session and drops its collection.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mtx.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mtx.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	metrics.Sessions.Dec()

	return session.Close(ctx)
}

// Close forgets every session. Their collections stay in the store so a
// later run can Resume them.
func (s *Service) Close(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	metrics.Sessions.Sub(float64(len(s.sessions)))
	s.sessions = map[string]*Session{}

	return nil
}

// owner returns the live session whose namespace holds collection.
func (s *Service) owner(collection string) (string, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	for id := range s.sessions {
		if _, ok := generationOf(s.options.Prefix, id, collection); ok {
			return id, true
		}
	}

	return "", false
}

func New(opts ...Option) *Service {
	options := NewOptions(opts...)

	if options.Store == nil || options.Builder == nil {
		panic("session service requires a store and a document builder")
	}

	return &Service{
		options:  options,
		sessions: map[string]*Session{},
	}
}
