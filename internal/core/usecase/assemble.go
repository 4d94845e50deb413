package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

const assembleConcurrency = 8

// assemble resolves every requested translation per passage and attaches
// enrichment. Output order matches the ranked input exactly.
func (uc *SearchUseCase) assemble(
	ctx context.Context,
	ranked []domain.FusedPassage,
	translations []domain.Translation,
	includeOriginal bool,
	includeCrossRefs bool,
) ([]domain.SearchResult, error) {
	translationIDs := make([]string, len(translations))
	abbrevByID := make(map[string]string, len(translations))
	for i, t := range translations {
		translationIDs[i] = t.ID
		abbrevByID[t.ID] = t.Abbrev
	}

	results := make([]domain.SearchResult, len(ranked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(assembleConcurrency)
	for i, passage := range ranked {
		g.Go(func() error {
			rows, err := uc.store.FetchSiblingTranslations(gctx, passage.Ref, translationIDs)
			if err != nil {
				return fmt.Errorf("fetch translations for %s: %w", passage.Ref, err)
			}
			results[i] = buildResult(passage, rows, abbrevByID)
			uc.enrich(gctx, &results[i], passage.Row.VerseID, includeOriginal, includeCrossRefs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func buildResult(passage domain.FusedPassage, rows []domain.PassageRow, abbrevByID map[string]string) domain.SearchResult {
	book := passage.Row.Book
	result := domain.SearchResult{
		Translations:   make(map[string]string, len(rows)+1),
		RelevanceScore: passage.Score,
	}
	for _, row := range rows {
		if row.Ref != passage.Ref {
			continue
		}
		abbrev := row.TranslationAbbrev
		if abbrev == "" {
			abbrev = abbrevByID[row.TranslationID]
		}
		if abbrev == "" {
			continue
		}
		result.Translations[abbrev] = row.Text
		if book.Name == "" {
			book = row.Book
		}
	}
	if len(result.Translations) == 0 && passage.Row.Text != "" {
		abbrev := passage.Row.TranslationAbbrev
		if abbrev == "" {
			abbrev = abbrevByID[passage.Row.TranslationID]
		}
		if abbrev != "" {
			result.Translations[abbrev] = passage.Row.Text
		}
	}
	result.Reference = domain.Reference{
		Book:       book.Name,
		BookKorean: book.NameKorean,
		BookAbbrev: book.Abbrev,
		Chapter:    passage.Ref.Chapter,
		Verse:      passage.Ref.Verse,
		Testament:  book.Testament,
		Genre:      book.Genre,
	}
	return result
}

// enrich failures are logged and leave the field empty.
func (uc *SearchUseCase) enrich(ctx context.Context, result *domain.SearchResult, verseID string, includeOriginal, includeCrossRefs bool) {
	if verseID == "" || (!includeOriginal && !includeCrossRefs) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, uc.tuning.EnrichTimeout)
	defer cancel()

	if includeCrossRefs && uc.crossRefs != nil {
		refs, err := uc.crossRefs.FetchCrossReferences(ctx, verseID, uc.tuning.CrossRefLimit)
		if err != nil {
			slog.Warn("cross_references_failed", "verse_id", verseID, "error", err)
		} else {
			result.CrossReferences = refs
		}
	}
	if includeOriginal {
		original, err := uc.store.FetchOriginalWords(ctx, verseID)
		if err != nil {
			slog.Warn("original_words_failed", "verse_id", verseID, "error", err)
		} else {
			result.Original = original
		}
	}
}
