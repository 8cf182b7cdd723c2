package rerank

import (
	"context"
	"strings"
	"unicode"
)

const (
	coverageWeight = 0.6
	densityWeight  = 0.3
	titleWeight    = 0.1
	densityScale   = 10.0
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "with": {}, "what": {}, "how": {},
}

// LexicalScorer is an in-process Scorer based on token overlap. It stands in
// for a cross-encoder model when none is configured.
type LexicalScorer struct{}

func (LexicalScorer) Score(ctx context.Context, query string, docs []Document) ([]float64, error) {
	queryTokens := uniqueTokens(filterStopwords(tokenize(query)))
	scores := make([]float64, len(docs))
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores[i] = lexicalScore(queryTokens, d)
	}
	return scores, nil
}

// lexicalScore blends query coverage, match density and title hits into
// [0,1].
func lexicalScore(queryTokens []string, doc Document) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	docTokens := tokenize(doc.Text)

	freq := make(map[string]int, len(docTokens))
	for _, tok := range docTokens {
		freq[tok]++
	}

	var covered, raw int
	for _, tok := range queryTokens {
		if n := freq[tok]; n > 0 {
			covered++
			raw += n
		}
	}
	coverage := float64(covered) / float64(len(queryTokens))
	density := min(1, float64(raw)/(1+float64(len(docTokens)))*densityScale)

	var title float64
	if titleTokens := tokenize(doc.Title); len(titleTokens) > 0 {
		set := make(map[string]struct{}, len(titleTokens))
		for _, tok := range titleTokens {
			set[tok] = struct{}{}
		}
		var hits int
		for _, tok := range queryTokens {
			if _, ok := set[tok]; ok {
				hits++
			}
		}
		title = float64(hits) / float64(len(queryTokens))
	}

	score := coverageWeight*coverage + densityWeight*density + titleWeight*title
	return max(0, min(1, score))
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

func filterStopwords(tokens []string) []string {
	out := tokens[:0:0]
	for _, tok := range tokens {
		if _, stop := stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
