package ports

import (
	"context"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

// SearchService is the inbound contract for verse retrieval.
type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error)
}

// CacheAdmin is the inbound contract for cache maintenance.
type CacheAdmin interface {
	FlushCache(ctx context.Context) (int, error)
	CacheStats(ctx context.Context) (domain.CacheStats, error)
}

// LookupService reads verses by reference and lists corpus metadata.
type LookupService interface {
	GetVerse(ctx context.Context, req domain.VerseLookup) (*domain.VerseDetail, error)
	GetChapter(ctx context.Context, req domain.ChapterLookup) (*domain.ChapterDetail, error)
	ListTranslations(ctx context.Context, language string) ([]domain.TranslationInfo, error)
	ListBooks(ctx context.Context, testament, genre string) ([]domain.BookInfo, error)
}

type HealthChecker interface {
	Health(ctx context.Context) domain.HealthReport
}
