package rerank

import (
	"context"
	"strings"
	"unicode"
)

// Lexical scores passages by query token overlap. It needs no model server
// and keeps the relative order of equal scores.
type Lexical struct{}

func NewLexical() *Lexical {
	return &Lexical{}
}

// Score is 0.8 * share of query tokens present in the text, plus 0.2 when
// the whole query phrase appears verbatim.
func (Lexical) Score(_ context.Context, query string, texts []string) ([]float64, error) {
	queryTokens := toTokenSet(query)
	phrase := strings.Join(splitWordsLower(query), " ")

	scores := make([]float64, len(texts))
	for i, text := range texts {
		overlap := tokenOverlap(queryTokens, toTokenSet(text))
		var phraseHit float64
		if phrase != "" && strings.Contains(strings.Join(splitWordsLower(text), " "), phrase) {
			phraseHit = 1
		}
		scores[i] = 0.80*overlap + 0.20*phraseHit
	}
	return scores, nil
}

func tokenOverlap(query, text map[string]struct{}) float64 {
	if len(query) == 0 || len(text) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := text[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitWordsLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// splitWordsLower splits on anything that is not a letter or digit, so Hangul
// and Greek text tokenize too.
func splitWordsLower(s string) []string {
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
