// Package retrieval implements the hybrid keyword + vector-similarity ranking
// that selects which background-knowledge snippets are relevant to a query.
//
// Scoring model:
//
//   - keyword match        → 1.0
//   - vector match         → 0.7 × similarity, where similarity = 1 − min(distance, 1)
//   - dual match           → accumulated score × 1.5
//   - constant snippets    → fixed 2.0 (outranks any single-signal score;
//     a dual-matched snippet may intentionally exceed it)
//
// Results are filtered by visibility and location/region applicability,
// sorted by score descending with ascending snippet order as tie-break, and
// truncated to five. When the similarity backend errors the ranker degrades
// to keyword-plus-constant matching ordered by snippet order; it never
// propagates the backend failure.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/Rene-Zhou/Astinus-sub001/internal/knowledge"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/search"
)

const (
	// maxResults is the hard cap on returned snippets.
	maxResults = 5

	// vectorK is how many candidates the similarity backend is asked for.
	vectorK = 10

	keywordWeight = 1.0
	vectorWeight  = 0.7
	dualBoost     = 1.5
	constantScore = 2.0

	// fuzzyThreshold is the minimum Jaro-Winkler similarity for a near-miss
	// latin term to count as a keyword match.
	fuzzyThreshold = 0.92
)

// Scored pairs a snippet with its per-query retrieval score.
type Scored struct {
	// Snippet is the matched snippet.
	Snippet *knowledge.Snippet

	// Score is the accumulated hybrid score.
	Score float64

	// KeywordMatch reports whether a keyword signal hit this snippet.
	KeywordMatch bool

	// VectorMatch reports whether a vector signal hit this snippet.
	VectorMatch bool
}

// Query carries the per-call inputs to [Ranker.Rank].
type Query struct {
	// Text is the raw query text.
	Text string

	// Location is the session's current location id; empty when unknown.
	Location string

	// Region is the session's current region id; empty when unknown.
	Region string
}

// Ranker selects relevant snippets from an immutable pack corpus.
//
// A nil similarity backend is valid: the ranker then scores on keyword and
// constant signals alone. Ranker is stateless and safe for concurrent use.
type Ranker struct {
	searcher search.Searcher // may be nil
}

// NewRanker creates a Ranker over the given similarity backend, which may be
// nil for keyword-only operation.
func NewRanker(searcher search.Searcher) *Ranker {
	return &Ranker{searcher: searcher}
}

// Rank returns the at most five snippets from pack most relevant to q,
// ordered by score descending then snippet order ascending. It never returns
// an error: similarity-backend failures degrade to the keyword-plus-constant
// fallback.
func (r *Ranker) Rank(ctx context.Context, pack *knowledge.Pack, q Query) []Scored {
	terms := tokenize(q.Text)

	// Keyword pass.
	scores := make(map[int]*Scored)
	for _, sn := range pack.Snippets {
		if snippetMatchesTerms(sn, terms) {
			scores[sn.UID] = &Scored{
				Snippet:      sn,
				Score:        keywordWeight,
				KeywordMatch: true,
			}
		}
	}

	// Vector pass. A configured backend that errors triggers the degraded
	// ordering; an absent backend just contributes no hits.
	if r.searcher != nil {
		lang := detectLanguage(q.Text, pack.DefaultLanguage)
		hits, err := r.searcher.Search(ctx, pack.ID, q.Text, vectorK, search.Filter{Language: lang})
		if err != nil {
			slog.Warn("similarity backend failed, using keyword fallback",
				"pack_id", pack.ID, "err", err)
			return r.fallback(pack, terms, q)
		}
		for _, h := range hits {
			sn := pack.SnippetByUID(h.UID)
			if sn == nil {
				continue
			}
			similarity := 1 - min(h.Distance, 1)
			if entry, ok := scores[sn.UID]; ok {
				entry.Score *= dualBoost
				entry.VectorMatch = true
			} else {
				scores[sn.UID] = &Scored{
					Snippet:     sn,
					Score:       vectorWeight * similarity,
					VectorMatch: true,
				}
			}
		}
	}

	// Constant snippets are always present at the fixed score.
	for _, sn := range pack.Snippets {
		if sn.Constant {
			if _, ok := scores[sn.UID]; !ok {
				scores[sn.UID] = &Scored{Snippet: sn, Score: constantScore}
			}
		}
	}

	results := make([]Scored, 0, len(scores))
	for _, entry := range scores {
		if !passesFilters(entry.Snippet, q) {
			continue
		}
		results = append(results, *entry)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Snippet.Order != results[j].Snippet.Order {
			return results[i].Snippet.Order < results[j].Snippet.Order
		}
		return results[i].Snippet.UID < results[j].Snippet.UID
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// fallback is the degraded keyword-plus-constant path used when the
// similarity backend errors: same filters, ordered by snippet order
// ascending, no scoring.
func (r *Ranker) fallback(pack *knowledge.Pack, terms []string, q Query) []Scored {
	var results []Scored
	for _, sn := range pack.Snippets {
		keyword := snippetMatchesTerms(sn, terms)
		if !keyword && !sn.Constant {
			continue
		}
		if !passesFilters(sn, q) {
			continue
		}
		results = append(results, Scored{Snippet: sn, KeywordMatch: keyword})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Snippet.Order != results[j].Snippet.Order {
			return results[i].Snippet.Order < results[j].Snippet.Order
		}
		return results[i].Snippet.UID < results[j].Snippet.UID
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// passesFilters applies the visibility and location/region applicability
// rules to sn under query q.
func passesFilters(sn *knowledge.Snippet, q Query) bool {
	if sn.Visibility != knowledge.VisibilityBasic && !sn.Constant {
		return false
	}
	if len(sn.ApplicableLocations) > 0 && !containsString(sn.ApplicableLocations, q.Location) {
		return false
	}
	if len(sn.ApplicableRegions) > 0 && !containsString(sn.ApplicableRegions, q.Region) {
		return false
	}
	return true
}

// snippetMatchesTerms reports whether any term hits any primary or secondary
// key of sn.
func snippetMatchesTerms(sn *knowledge.Snippet, terms []string) bool {
	for _, term := range terms {
		for _, key := range sn.Keys {
			if termMatchesKey(term, key) {
				return true
			}
		}
		for _, key := range sn.SecondaryKeys {
			if termMatchesKey(term, key) {
				return true
			}
		}
	}
	return false
}

// termMatchesKey reports whether a single search term matches a snippet key.
// CJK compounds rarely split on whitespace, so containment in either
// direction counts; latin near-misses are accepted above a Jaro-Winkler
// threshold (grounded in how players misspell proper nouns).
func termMatchesKey(term, key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if term == key {
		return true
	}
	if utf8.RuneCountInString(key) >= 2 &&
		(strings.Contains(term, key) || strings.Contains(key, term)) {
		return true
	}
	if isASCII(term) && isASCII(key) {
		return matchr.JaroWinkler(term, key, false) >= fuzzyThreshold
	}
	return false
}

// isASCII reports whether s contains only ASCII bytes.
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// containsString reports whether needle is in haystack. An empty needle never
// matches — a snippet restricted to locations is dropped when the session
// has no current location.
func containsString(haystack []string, needle string) bool {
	if needle == "" {
		return false
	}
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
