// Package search defines the similarity-search collaborator contract used by
// the hybrid retrieval ranker.
//
// A Searcher answers nearest-neighbour queries over a per-pack snippet corpus
// and may fail or return nothing — both are valid degraded inputs to the
// ranker, which falls back to keyword-only matching.
package search

import "context"

// Hit is a single nearest-neighbour result.
type Hit struct {
	// UID is the snippet uid within the corpus.
	UID int

	// Distance is the cosine distance to the query (0 = identical).
	Distance float64
}

// Filter restricts a search to a subset of the corpus.
type Filter struct {
	// Language, when non-empty, restricts results to snippets embedded for
	// that language code.
	Language string
}

// Searcher is the similarity-search abstraction.
//
// Implementations must be safe for concurrent use.
type Searcher interface {
	// Search returns up to k hits for query within the corpus identified by
	// corpusID, ordered by ascending distance. An empty result is not an
	// error.
	Search(ctx context.Context, corpusID, query string, k int, f Filter) ([]Hit, error)
}
