// Package mock provides a test double for the search.Searcher interface.
package mock

import (
	"context"
	"sync"

	"github.com/Rene-Zhou/Astinus-sub001/pkg/search"
)

// SearchCall records a single invocation of Search.
type SearchCall struct {
	// CorpusID is the corpus the query targeted.
	CorpusID string
	// Query is the query text.
	Query string
	// K is the requested result count.
	K int
	// Filter is the filter passed to Search.
	Filter search.Filter
}

// Searcher is a mock implementation of search.Searcher.
// Zero value returns no hits and no error.
type Searcher struct {
	mu sync.Mutex

	// Hits is returned from every Search call (truncated to k).
	Hits []search.Hit

	// Err, if non-nil, is returned from Search.
	Err error

	// Calls records every Search invocation.
	Calls []SearchCall
}

// Compile-time interface assertion.
var _ search.Searcher = (*Searcher)(nil)

// Search implements search.Searcher.
func (s *Searcher) Search(_ context.Context, corpusID, query string, k int, f search.Filter) ([]search.Hit, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, SearchCall{CorpusID: corpusID, Query: query, K: k, Filter: f})
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	hits := s.Hits
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]search.Hit, len(hits))
	copy(out, hits)
	return out, nil
}
