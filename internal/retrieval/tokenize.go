package retrieval

import (
	"strings"
	"unicode"
)

// maxTerms caps how many search terms a query contributes.
const maxTerms = 5

// stopWords is the fixed set of terms that never participate in keyword
// matching. It covers common English function words plus the Chinese
// particles that survive whitespace tokenization as standalone tokens.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "at": true,
	"be": true, "but": true, "by": true, "do": true, "for": true,
	"from": true, "has": true, "have": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "than": true,
	"the": true, "then": true, "this": true, "to": true, "was": true,
	"what": true, "where": true, "who": true, "will": true, "with": true,
	"的": true, "了": true, "是": true, "在": true, "和": true,
	"吗": true, "呢": true, "这": true, "那": true,
}

// tokenize splits query into candidate search terms: whitespace-separated,
// surrounding punctuation stripped, lowercased, terms shorter than 2 runes
// and stop words dropped, capped at [maxTerms].
func tokenize(query string) []string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		t = strings.ToLower(t)
		if len([]rune(t)) < 2 || stopWords[t] {
			continue
		}
		terms = append(terms, t)
		if len(terms) == maxTerms {
			break
		}
	}
	return terms
}

// detectLanguage returns "zh" when query contains CJK code points, otherwise
// fallback. The heuristic only needs to separate the CJK corpus slice from
// the default one.
func detectLanguage(query, fallback string) string {
	for _, r := range query {
		if unicode.Is(unicode.Han, r) {
			return "zh"
		}
	}
	if fallback == "" {
		return "en"
	}
	return fallback
}
