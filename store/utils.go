package store

import (
	"errors"
	"math"
	"sort"

	"github.com/w-h-a/docqa/errs"
)

var ErrNotFound = errors.New("collection not found")

func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank orders matches by descending score, ties by chunk index, and keeps k.
func Rank(matches []Match, k int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Chunk.Index < matches[j].Chunk.Index
	})

	if len(matches) > k {
		matches = matches[:k]
	}

	return matches
}

// Validate rejects entries a collection cannot hold: a build needs at least
// one entry and every vector must share one dimension.
func Validate(entries []Entry) error {
	if len(entries) == 0 {
		return errs.IndexBuild("no chunks to index")
	}

	dim := len(entries[0].Vector)
	for _, e := range entries {
		if len(e.Vector) == 0 || len(e.Vector) != dim {
			return errs.IndexBuild("chunk %d has a %d-dimensional vector, want %d", e.Chunk.Index, len(e.Vector), dim)
		}
	}

	return nil
}
