package session

import (
	"github.com/w-h-a/docqa/chain"
	"github.com/w-h-a/docqa/chunker"
	"github.com/w-h-a/docqa/internal/service/document"
	"github.com/w-h-a/docqa/memory"
	"github.com/w-h-a/docqa/provider"
)

// State is one consistent view of a session. It is never mutated; every
// rebuild produces a new State that replaces the old one at once, so a
// question always sees an index and a chain built for the same provider.
type State struct {
	Provider   provider.Config
	Identity   string
	WebSearch  bool
	Document   *document.Metadata
	Chunks     []chunker.Chunk
	Collection string
	Chain      *chain.Chain
	Memory     *memory.Memory
	Generation uint64

	pair  provider.Pair
	owned bool
}

// Ready reports whether questions can be answered.
func (s *State) Ready() bool {
	return s != nil && s.Chain != nil && len(s.Collection) > 0
}
