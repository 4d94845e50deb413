package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/core/ports"
)

// LookupUseCase serves reference lookups and corpus metadata. It shares the
// passage store and cross-reference source with the search pipeline.
type LookupUseCase struct {
	catalog       ports.CatalogStore
	store         ports.PassageStore
	crossRefs     ports.CrossReferenceSource
	crossRefLimit int
	enrichTimeout time.Duration
}

// NewLookupUseCase wires reference lookups. crossRefs may be nil.
func NewLookupUseCase(catalog ports.CatalogStore, store ports.PassageStore, crossRefs ports.CrossReferenceSource, tuning domain.SearchTuning) *LookupUseCase {
	if tuning.CrossRefLimit <= 0 {
		tuning.CrossRefLimit = 5
	}
	if tuning.EnrichTimeout <= 0 {
		tuning.EnrichTimeout = 5 * time.Second
	}
	return &LookupUseCase{
		catalog:       catalog,
		store:         store,
		crossRefs:     crossRefs,
		crossRefLimit: tuning.CrossRefLimit,
		enrichTimeout: tuning.EnrichTimeout,
	}
}

func (uc *LookupUseCase) GetVerse(ctx context.Context, req domain.VerseLookup) (*domain.VerseDetail, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	book, err := uc.findBook(ctx, req.Book)
	if err != nil {
		return nil, err
	}
	rows, err := uc.catalog.FetchChapterRows(ctx, book.ID, req.Chapter, req.Verse, req.Translations)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "fetch verse", err)
	}
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "get verse",
			fmt.Errorf("%s %d:%d", book.Name, req.Chapter, req.Verse))
	}

	first := rows[0]
	detail := &domain.VerseDetail{
		Reference: domain.Reference{
			Book:       book.Name,
			BookKorean: book.NameKorean,
			BookAbbrev: book.Abbrev,
			Chapter:    req.Chapter,
			Verse:      req.Verse,
			Testament:  book.Testament,
			Genre:      book.Genre,
		},
		Translations: make(map[string]string, len(rows)),
	}
	for _, row := range rows {
		detail.Translations[row.TranslationAbbrev] = row.Text
	}

	enrichCtx, cancel := context.WithTimeout(ctx, uc.enrichTimeout)
	defer cancel()
	if req.IncludeCrossRefs && uc.crossRefs != nil {
		refs, err := uc.crossRefs.FetchCrossReferences(enrichCtx, first.VerseID, uc.crossRefLimit)
		if err != nil {
			slog.Warn("cross_references_failed", "verse_id", first.VerseID, "error", err)
		} else {
			detail.CrossReferences = refs
		}
	}
	if req.IncludeOriginal {
		original, err := uc.store.FetchOriginalWords(enrichCtx, first.VerseID)
		if err != nil {
			slog.Warn("original_words_failed", "verse_id", first.VerseID, "error", err)
		} else {
			detail.Original = original
		}
	}

	neighbours, err := uc.catalog.FetchVerseContext(enrichCtx, first.Ref, first.TranslationID)
	if err != nil {
		slog.Warn("verse_context_failed", "verse_id", first.VerseID, "error", err)
	}
	detail.Context = snippetContext(neighbours)
	return detail, nil
}

func (uc *LookupUseCase) GetChapter(ctx context.Context, req domain.ChapterLookup) (*domain.ChapterDetail, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	book, err := uc.findBook(ctx, req.Book)
	if err != nil {
		return nil, err
	}
	rows, err := uc.catalog.FetchChapterRows(ctx, book.ID, req.Chapter, 0, req.Translations)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "fetch chapter", err)
	}
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "get chapter",
			fmt.Errorf("%s %d", book.Name, req.Chapter))
	}

	// Rows arrive ordered by verse; group consecutive rows.
	verses := make([]domain.ChapterVerse, 0, len(rows))
	for _, row := range rows {
		if n := len(verses); n == 0 || verses[n-1].Verse != row.Ref.Verse {
			verses = append(verses, domain.ChapterVerse{
				VerseID:      row.VerseID,
				Verse:        row.Ref.Verse,
				Translations: map[string]string{},
			})
		}
		verses[len(verses)-1].Translations[row.TranslationAbbrev] = row.Text
	}

	if req.IncludeOriginal {
		uc.attachOriginal(ctx, verses)
	}
	return &domain.ChapterDetail{
		Reference: domain.ChapterReference{
			Book:       book.Name,
			BookKorean: book.NameKorean,
			Chapter:    req.Chapter,
			Testament:  book.Testament,
		},
		Verses: verses,
	}, nil
}

// attachOriginal leaves Original empty for verses whose lookup fails.
func (uc *LookupUseCase) attachOriginal(ctx context.Context, verses []domain.ChapterVerse) {
	ctx, cancel := context.WithTimeout(ctx, uc.enrichTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(assembleConcurrency)
	for i := range verses {
		g.Go(func() error {
			original, err := uc.store.FetchOriginalWords(gctx, verses[i].VerseID)
			if err != nil {
				slog.Warn("original_words_failed", "verse_id", verses[i].VerseID, "error", err)
				return nil
			}
			verses[i].Original = original
			return nil
		})
	}
	_ = g.Wait()
}

func (uc *LookupUseCase) ListTranslations(ctx context.Context, language string) ([]domain.TranslationInfo, error) {
	out, err := uc.catalog.ListTranslations(ctx, strings.ToLower(strings.TrimSpace(language)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "list translations", err)
	}
	return out, nil
}

// ListBooks accepts testament OT or NT in any case, or empty for both.
func (uc *LookupUseCase) ListBooks(ctx context.Context, testament, genre string) ([]domain.BookInfo, error) {
	testament = strings.ToUpper(strings.TrimSpace(testament))
	switch testament {
	case "", domain.TestamentOld, domain.TestamentNew:
	default:
		return nil, fmt.Errorf("%w: testament must be OT or NT", domain.ErrInvalidInput)
	}
	out, err := uc.catalog.ListBooks(ctx, testament, genre)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "list books", err)
	}
	return out, nil
}

func (uc *LookupUseCase) findBook(ctx context.Context, name string) (*domain.Book, error) {
	book, err := uc.catalog.FindBook(ctx, name)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "find book", err)
	}
	if book == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "find book", fmt.Errorf("unknown book %q", name))
	}
	return book, nil
}

func snippetContext(c domain.VerseContext) domain.VerseContext {
	for _, cv := range []*domain.ContextVerse{c.Previous, c.Next} {
		if cv != nil {
			cv.Text = domain.Snippet(cv.Text)
		}
	}
	return c
}
