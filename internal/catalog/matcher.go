package catalog

import (
	"sort"
	"strings"
)

// Method names the cascade stage that produced a match.
type Method string

const (
	MethodExact     Method = "exact"
	MethodFuzzy     Method = "fuzzy"
	MethodWordBased Method = "word-based"
	MethodPartial   Method = "partial"
	MethodNone      Method = "none"
)

// Alternative is a runner-up candidate.
type Alternative struct {
	Entry      Entry   `json:"entry"`
	Similarity float64 `json:"similarity"`
}

// MatchResult is the outcome of resolving one extracted name.
type MatchResult struct {
	Entry        *Entry        `json:"entry,omitempty"`
	Confidence   float64       `json:"confidence"`
	Method       Method        `json:"method"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Matched reports whether an entry was found.
func (r MatchResult) Matched() bool {
	return r.Entry != nil && r.Method != MethodNone
}

// Matcher resolves noisy names against a catalog through a fixed cascade:
// exact, fuzzy, word-based, partial. The first stage that produces a
// candidate wins. Results are deterministic for a given catalog order.
type Matcher struct {
	FuzzyThreshold    float64
	WordOverlap       float64
	WordWeight        float64
	PartialConfidence float64
	MaxAlternatives   int
}

// NewMatcher returns a matcher with the standard thresholds.
func NewMatcher() *Matcher {
	return &Matcher{
		FuzzyThreshold:    0.75,
		WordOverlap:       0.5,
		WordWeight:        0.8,
		PartialConfidence: 0.65,
		MaxAlternatives:   3,
	}
}

var defaultMatcher = NewMatcher()

// Match resolves name with the standard thresholds.
func Match(name string, entries []Entry) MatchResult {
	return defaultMatcher.Match(name, entries)
}

type scored struct {
	idx   int
	score float64
}

// Match runs the cascade for one name.
func (m *Matcher) Match(name string, entries []Entry) MatchResult {
	none := MatchResult{Confidence: 0, Method: MethodNone}

	query := Normalize(name)
	if query == "" || len(entries) == 0 {
		return none
	}

	normalized := make([]string, len(entries))
	for i, e := range entries {
		normalized[i] = Normalize(e.Name)
	}

	for i, n := range normalized {
		if n == query {
			return MatchResult{Entry: entryRef(entries, i), Confidence: 1.0, Method: MethodExact}
		}
	}

	var fuzzy []scored
	for i, n := range normalized {
		if sim := Similarity(query, n); sim > m.FuzzyThreshold {
			fuzzy = append(fuzzy, scored{idx: i, score: sim})
		}
	}
	if len(fuzzy) > 0 {
		return m.rank(entries, fuzzy, MethodFuzzy, 1.0)
	}

	if queryTokens := tokens(query); len(queryTokens) > 0 {
		var words []scored
		for i, n := range normalized {
			ratio := tokenOverlap(queryTokens, tokens(n))
			if ratio >= m.WordOverlap {
				words = append(words, scored{idx: i, score: ratio})
			}
		}
		if len(words) > 0 {
			return m.rank(entries, words, MethodWordBased, m.WordWeight)
		}
	}

	if len([]rune(query)) >= 3 {
		var partial []scored
		for i, n := range normalized {
			if n != "" && (strings.Contains(n, query) || strings.Contains(query, n)) {
				partial = append(partial, scored{idx: i, score: m.PartialConfidence})
			}
		}
		if len(partial) > 0 {
			return m.rank(entries, partial, MethodPartial, 1.0)
		}
	}

	return none
}

// MatchAll resolves several names against the same catalog.
func (m *Matcher) MatchAll(names []string, entries []Entry) []MatchResult {
	out := make([]MatchResult, len(names))
	for i, n := range names {
		out[i] = m.Match(n, entries)
	}
	return out
}

// rank sorts candidates by score, keeping catalog order on ties, and returns
// the winner with up to MaxAlternatives runners-up.
func (m *Matcher) rank(entries []Entry, cands []scored, method Method, weight float64) MatchResult {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	res := MatchResult{
		Entry:      entryRef(entries, cands[0].idx),
		Confidence: cands[0].score * weight,
		Method:     method,
	}
	for _, c := range cands[1:] {
		if len(res.Alternatives) >= m.MaxAlternatives {
			break
		}
		res.Alternatives = append(res.Alternatives, Alternative{Entry: entries[c.idx], Similarity: c.score})
	}
	return res
}

// tokenOverlap is the share of query tokens found, by containment in either
// direction, among the candidate's tokens.
func tokenOverlap(query, candidate []string) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	hits := 0
	for _, q := range query {
		for _, c := range candidate {
			if strings.Contains(c, q) || strings.Contains(q, c) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(query))
}

// entryRef returns a pointer to a copy so callers cannot mutate the catalog.
func entryRef(entries []Entry, i int) *Entry {
	e := entries[i]
	return &e
}
