package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "can": {}, "do": {}, "does": {}, "for": {},
	"from": {}, "has": {}, "have": {}, "how": {}, "i": {}, "in": {}, "is": {},
	"it": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "say": {},
	"says": {}, "show": {}, "tell": {}, "that": {}, "the": {}, "this": {},
	"to": {}, "us": {}, "was": {}, "we": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "who": {}, "why": {}, "with": {}, "you": {}, "verse": {},
	"verses": {}, "bible": {},
}

// stripStopwords removes filler words. If nothing is left the trimmed input is
// returned unchanged.
func stripStopwords(query string) string {
	fields := strings.Fields(query)
	kept := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.ToLower(strings.Trim(field, ".,;:!?\"'()"))
		if token == "" {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		kept = append(kept, field)
	}
	if len(kept) == 0 {
		return strings.TrimSpace(query)
	}
	return strings.Join(kept, " ")
}

// fullTextSignal runs lexical search and falls back to substring containment
// when the ranked query finds nothing.
func (uc *SearchUseCase) fullTextSignal(ctx context.Context, signal, query string, translationIDs []string, filters domain.SearchFilters, limit int) (domain.RankedList, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.tuning.FullTextTimeout)
	defer cancel()

	text := stripStopwords(query)
	rows, err := uc.store.FullTextSearch(ctx, text, translationIDs, filters, limit)
	if err != nil {
		return domain.RankedList{}, fmt.Errorf("full-text search: %w", err)
	}
	if len(rows) == 0 {
		rows, err = uc.store.SubstringSearch(ctx, text, translationIDs, filters, limit)
		if err != nil {
			return domain.RankedList{}, fmt.Errorf("substring search: %w", err)
		}
	}
	return rankRows(signal, rows), nil
}
