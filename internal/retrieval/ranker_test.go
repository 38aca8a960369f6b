package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/Rene-Zhou/Astinus-sub001/internal/knowledge"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/search"
	searchmock "github.com/Rene-Zhou/Astinus-sub001/pkg/search/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func snippet(uid int, keys []string, opts ...func(*knowledge.Snippet)) *knowledge.Snippet {
	s := &knowledge.Snippet{
		UID:        uid,
		Keys:       keys,
		Content:    map[string]string{"en": "content"},
		Visibility: knowledge.VisibilityBasic,
		Order:      uid,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func constant(s *knowledge.Snippet)  { s.Constant = true }
func detailed(s *knowledge.Snippet)  { s.Visibility = knowledge.VisibilityDetailed }
func order(n int) func(*knowledge.Snippet) {
	return func(s *knowledge.Snippet) { s.Order = n }
}
func atLocations(ids ...string) func(*knowledge.Snippet) {
	return func(s *knowledge.Snippet) { s.ApplicableLocations = ids }
}
func atRegions(ids ...string) func(*knowledge.Snippet) {
	return func(s *knowledge.Snippet) { s.ApplicableRegions = ids }
}

func pack(snippets ...*knowledge.Snippet) *knowledge.Pack {
	return &knowledge.Pack{
		ID:              "test-pack",
		DefaultLanguage: "en",
		Snippets:        snippets,
		Locations: map[string]*knowledge.Location{
			"study":  {ID: "study", Region: "manor"},
			"cellar": {ID: "cellar", Region: "manor"},
		},
	}
}

func uids(results []Scored) []int {
	out := make([]int, len(results))
	for i, r := range results {
		out[i] = r.Snippet.UID
	}
	return out
}

// ── tokenization ─────────────────────────────────────────────────────────────

func TestTokenize(t *testing.T) {
	t.Parallel()

	t.Run("strips punctuation and stop words", func(t *testing.T) {
		t.Parallel()
		got := tokenize("What is hidden in the cellar, exactly?")
		want := []string{"hidden", "cellar", "exactly"}
		if len(got) != len(want) {
			t.Fatalf("want %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("want %v, got %v", want, got)
			}
		}
	})

	t.Run("drops short terms", func(t *testing.T) {
		t.Parallel()
		got := tokenize("I x searched")
		if len(got) != 1 || got[0] != "searched" {
			t.Fatalf("want [searched], got %v", got)
		}
	})

	t.Run("caps at five terms", func(t *testing.T) {
		t.Parallel()
		got := tokenize("alpha bravo charlie delta echo foxtrot golf")
		if len(got) != 5 {
			t.Fatalf("want 5 terms, got %v", got)
		}
	})

	t.Run("cjk query survives as one term", func(t *testing.T) {
		t.Parallel()
		got := tokenize("书房里有什么秘密？")
		if len(got) != 1 || got[0] != "书房里有什么秘密" {
			t.Fatalf("got %v", got)
		}
	})
}

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	if got := detectLanguage("书房里有什么秘密？", "en"); got != "zh" {
		t.Fatalf("want zh, got %s", got)
	}
	if got := detectLanguage("what is in the study?", "en"); got != "en" {
		t.Fatalf("want en, got %s", got)
	}
	if got := detectLanguage("plain", ""); got != "en" {
		t.Fatalf("want en default, got %s", got)
	}
}

// ── ranking ──────────────────────────────────────────────────────────────────

func TestRankKeywordOnly(t *testing.T) {
	t.Parallel()

	p := pack(
		snippet(1, []string{"cellar"}),
		snippet(2, []string{"attic"}),
	)
	r := NewRanker(nil)

	results := r.Rank(context.Background(), p, Query{Text: "what lies in the cellar?"})
	if len(results) != 1 || results[0].Snippet.UID != 1 {
		t.Fatalf("want [1], got %v", uids(results))
	}
	if !results[0].KeywordMatch || results[0].Score != keywordWeight {
		t.Fatalf("unexpected entry: %+v", results[0])
	}
}

func TestRankSecondaryKeys(t *testing.T) {
	t.Parallel()

	p := pack(snippet(1, []string{"portrait"}, func(s *knowledge.Snippet) {
		s.SecondaryKeys = []string{"painting"}
	}))
	r := NewRanker(nil)

	results := r.Rank(context.Background(), p, Query{Text: "examine the painting"})
	if len(results) != 1 {
		t.Fatalf("want secondary key hit, got %v", uids(results))
	}
}

func TestRankChineseScenario(t *testing.T) {
	t.Parallel()

	// Constant "庄园" snippet plus a keyword-matching "书房" snippet, no
	// similarity backend: both returned, constant first by score.
	p := pack(
		snippet(10, []string{"书房"}, order(2)),
		snippet(20, []string{"庄园"}, constant, order(9)),
	)
	r := NewRanker(nil)

	results := r.Rank(context.Background(), p, Query{Text: "书房里有什么秘密？"})
	got := uids(results)
	if len(got) != 2 || got[0] != 20 || got[1] != 10 {
		t.Fatalf("want [20 10], got %v", got)
	}
	if results[0].Score != constantScore {
		t.Fatalf("want constant score %v, got %v", constantScore, results[0].Score)
	}
}

func TestRankDualMatchBoost(t *testing.T) {
	t.Parallel()

	p := pack(
		snippet(1, []string{"cellar"}),
		snippet(2, []string{"cellar"}),
	)
	// Vector backend returns only snippet 1, at perfect similarity.
	ms := &searchmock.Searcher{Hits: []search.Hit{{UID: 1, Distance: 0}}}
	r := NewRanker(ms)

	results := r.Rank(context.Background(), p, Query{Text: "cellar secrets"})
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %v", uids(results))
	}
	if results[0].Snippet.UID != 1 {
		t.Fatalf("dual match must rank first, got %v", uids(results))
	}
	dual, single := results[0], results[1]
	if !dual.KeywordMatch || !dual.VectorMatch {
		t.Fatalf("want dual flags, got %+v", dual)
	}
	if dual.Score <= single.Score {
		t.Fatalf("dual score %v must exceed single %v", dual.Score, single.Score)
	}
	if dual.Score != keywordWeight*dualBoost {
		t.Fatalf("want %v, got %v", keywordWeight*dualBoost, dual.Score)
	}
}

func TestRankVectorOnlyScore(t *testing.T) {
	t.Parallel()

	p := pack(snippet(7, []string{"unrelated"}))
	ms := &searchmock.Searcher{Hits: []search.Hit{{UID: 7, Distance: 0.4}}}
	r := NewRanker(ms)

	results := r.Rank(context.Background(), p, Query{Text: "something else"})
	if len(results) != 1 || results[0].Snippet.UID != 7 {
		t.Fatalf("want vector hit, got %v", uids(results))
	}
	want := vectorWeight * (1 - 0.4)
	if diff := results[0].Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("want %v, got %v", want, results[0].Score)
	}
	if results[0].KeywordMatch || !results[0].VectorMatch {
		t.Fatalf("want vector-only flags, got %+v", results[0])
	}
}

func TestRankDistanceClamped(t *testing.T) {
	t.Parallel()

	p := pack(snippet(7, []string{"unrelated"}))
	ms := &searchmock.Searcher{Hits: []search.Hit{{UID: 7, Distance: 1.8}}}
	r := NewRanker(ms)

	results := r.Rank(context.Background(), p, Query{Text: "anything"})
	if len(results) != 1 || results[0].Score != 0 {
		t.Fatalf("distance > 1 must clamp to similarity 0, got %v", results)
	}
}

func TestRankLanguageFilterPassedToBackend(t *testing.T) {
	t.Parallel()

	ms := &searchmock.Searcher{}
	r := NewRanker(ms)
	p := pack(snippet(1, []string{"书房"}))

	r.Rank(context.Background(), p, Query{Text: "书房的暗门"})
	if len(ms.Calls) != 1 {
		t.Fatalf("want 1 backend call, got %d", len(ms.Calls))
	}
	if ms.Calls[0].Filter.Language != "zh" {
		t.Fatalf("want zh filter, got %q", ms.Calls[0].Filter.Language)
	}
	if ms.Calls[0].K != vectorK {
		t.Fatalf("want k=%d, got %d", vectorK, ms.Calls[0].K)
	}
}

func TestRankFilters(t *testing.T) {
	t.Parallel()

	t.Run("detailed snippets dropped unless constant", func(t *testing.T) {
		t.Parallel()
		p := pack(
			snippet(1, []string{"cellar"}, detailed),
			snippet(2, []string{"cellar"}, detailed, constant),
		)
		r := NewRanker(nil)
		results := r.Rank(context.Background(), p, Query{Text: "cellar"})
		if len(results) != 1 || results[0].Snippet.UID != 2 {
			t.Fatalf("want only constant detailed snippet, got %v", uids(results))
		}
	})

	t.Run("location restriction", func(t *testing.T) {
		t.Parallel()
		p := pack(snippet(1, []string{"cellar"}, atLocations("study")))
		r := NewRanker(nil)

		if got := r.Rank(context.Background(), p, Query{Text: "cellar"}); len(got) != 0 {
			t.Fatalf("no location set: want drop, got %v", uids(got))
		}
		if got := r.Rank(context.Background(), p, Query{Text: "cellar", Location: "cellar"}); len(got) != 0 {
			t.Fatalf("other location: want drop, got %v", uids(got))
		}
		if got := r.Rank(context.Background(), p, Query{Text: "cellar", Location: "study"}); len(got) != 1 {
			t.Fatalf("matching location: want hit, got %v", uids(got))
		}
	})

	t.Run("region restriction", func(t *testing.T) {
		t.Parallel()
		p := pack(snippet(1, []string{"cellar"}, atRegions("manor")))
		r := NewRanker(nil)

		if got := r.Rank(context.Background(), p, Query{Text: "cellar"}); len(got) != 0 {
			t.Fatalf("no region set: want drop, got %v", uids(got))
		}
		if got := r.Rank(context.Background(), p, Query{Text: "cellar", Region: "manor"}); len(got) != 1 {
			t.Fatalf("matching region: want hit, got %v", uids(got))
		}
	})
}

func TestRankCapAndTieBreak(t *testing.T) {
	t.Parallel()

	p := pack(
		snippet(1, []string{"cellar"}, order(5)),
		snippet(2, []string{"cellar"}, order(1)),
		snippet(3, []string{"cellar"}, order(4)),
		snippet(4, []string{"cellar"}, order(2)),
		snippet(5, []string{"cellar"}, order(3)),
		snippet(6, []string{"cellar"}, order(6)),
		snippet(7, []string{"cellar"}, order(7)),
	)
	r := NewRanker(nil)

	results := r.Rank(context.Background(), p, Query{Text: "cellar"})
	if len(results) != maxResults {
		t.Fatalf("want %d results, got %d", maxResults, len(results))
	}
	// Equal scores: order ascending decides.
	want := []int{2, 4, 5, 3, 1}
	got := uids(results)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
}

func TestRankBackendFailureFallback(t *testing.T) {
	t.Parallel()

	p := pack(
		snippet(1, []string{"cellar"}, order(9)),
		snippet(2, []string{"庄园"}, constant, order(1)),
		snippet(3, []string{"attic"}, order(2)),
	)
	ms := &searchmock.Searcher{Err: errors.New("vector store down")}
	r := NewRanker(ms)

	results := r.Rank(context.Background(), p, Query{Text: "inspect the cellar"})
	// Fallback: keyword + constant, ordered by snippet order ascending.
	got := uids(results)
	if len(got) != 2 || got[0] != 2 || got[1] != 1 {
		t.Fatalf("want [2 1], got %v", got)
	}
}

func TestRankFuzzyLatinMatch(t *testing.T) {
	t.Parallel()

	p := pack(snippet(1, []string{"greymantle"}))
	r := NewRanker(nil)

	results := r.Rank(context.Background(), p, Query{Text: "ask greymantel about the key"})
	if len(results) != 1 {
		t.Fatalf("want fuzzy hit, got %v", uids(results))
	}
}
