package testutil

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
)

var tokenPattern = regexp.MustCompile(`\p{L}+|\p{N}+`)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "of": {}, "and": {}, "what": {},
	"to": {}, "in": {}, "on": {}, "it": {}, "this": {}, "that": {}, "for": {},
}

// HashEmbedder is a deterministic bag-of-words embedder: each token is
// hashed into one of Dim buckets. Texts sharing words end up close.
type HashEmbedder struct {
	Dim int
	// Err, when set, fails every call from the FailAfter-th on.
	Err       error
	FailAfter int

	mtx   sync.Mutex
	calls int
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mtx.Lock()
	e.calls++
	n := e.calls
	e.mtx.Unlock()

	if e.Err != nil && n > e.FailAfter {
		return nil, e.Err
	}

	dim := e.Dim
	if dim <= 0 {
		dim = 256
	}

	vec := make([]float32, dim)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(dim)]++
	}

	// keep the vector non-zero so cosine similarity stays defined
	vec[dim-1] += 0.01

	return vec, nil
}

func (e *HashEmbedder) Calls() int {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.calls
}
