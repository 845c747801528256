package websearch

import (
	"context"
	"fmt"
	"strings"
)

const (
	DefaultMaxResults = 3
	NoResults         = "No web results found."
)

type Result struct {
	Title   string
	Snippet string
	URL     string
}

type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]Result, error)
}

// Lookup is the best-effort form of Search used for answer fallback. It
// never fails; errors are rendered into the returned text.
func Lookup(ctx context.Context, s Searcher, query string, max int) string {
	if max <= 0 {
		max = DefaultMaxResults
	}

	results, err := s.Search(ctx, query, max)
	if err != nil {
		return fmt.Sprintf("Web search failed: %v", err)
	}

	return Format(results, max)
}

func Format(results []Result, max int) string {
	if len(results) > max {
		results = results[:max]
	}

	if len(results) == 0 {
		return NoResults
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "**%s**\n%s\n[Source](%s)\n\n", r.Title, r.Snippet, r.URL)
	}

	return b.String()
}
