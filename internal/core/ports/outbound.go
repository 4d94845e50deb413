package ports

import (
	"context"
	"time"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

// PassageStore reads the verse corpus.
type PassageStore interface {
	ResolveTranslations(ctx context.Context, abbrevs []string) ([]domain.Translation, error)
	FullTextSearch(ctx context.Context, queryText string, translationIDs []string, filters domain.SearchFilters, limit int) ([]domain.PassageRow, error)
	SubstringSearch(ctx context.Context, queryText string, translationIDs []string, filters domain.SearchFilters, limit int) ([]domain.PassageRow, error)
	FetchSiblingTranslations(ctx context.Context, ref domain.PassageRef, translationIDs []string) ([]domain.PassageRow, error)
	FetchOriginalWords(ctx context.Context, passageID string) (*domain.OriginalLanguage, error)
}

// CatalogStore answers reference lookups and corpus metadata queries.
type CatalogStore interface {
	// FindBook returns nil when no book matches name, Korean name or abbreviation.
	FindBook(ctx context.Context, name string) (*domain.Book, error)
	// FetchChapterRows returns every translation row of a chapter, or of a
	// single verse when verse > 0. Empty abbrevs means all translations.
	FetchChapterRows(ctx context.Context, bookID string, chapter, verse int, abbrevs []string) ([]domain.PassageRow, error)
	FetchVerseContext(ctx context.Context, ref domain.PassageRef, translationID string) (domain.VerseContext, error)
	ListTranslations(ctx context.Context, language string) ([]domain.TranslationInfo, error)
	ListBooks(ctx context.Context, testament, genre string) ([]domain.BookInfo, error)
	CorpusStats(ctx context.Context) (domain.CorpusStats, error)
	Ping(ctx context.Context) error
}

// CrossReferenceSource returns related passages ordered by confidence.
type CrossReferenceSource interface {
	FetchCrossReferences(ctx context.Context, passageID string, limit int) ([]domain.CrossReference, error)
}

// VectorIndex performs similarity search over verse embeddings.
type VectorIndex interface {
	VectorSearch(ctx context.Context, queryVector []float32, translationIDs []string, filters domain.SearchFilters, threshold float64, limit int) ([]domain.PassageRow, error)
	HasVectors(ctx context.Context) (bool, error)
}

// Embedder builds query vectors.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// Reranker scores each text against the query; output length equals input length.
type Reranker interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// QueryExpander produces alternative phrasings of a query.
type QueryExpander interface {
	Expand(ctx context.Context, query string, max int) ([]string, error)
}

// ResponseCache stores assembled responses by fingerprint.
type ResponseCache interface {
	Get(ctx context.Context, fingerprint string) (*domain.SearchResponse, bool, error)
	Set(ctx context.Context, fingerprint string, resp *domain.SearchResponse, ttl time.Duration) error
	Flush(ctx context.Context) (int, error)
	Stats(ctx context.Context) (domain.CacheStats, error)
}

// RateLimiter enforces per-provider request budgets without blocking.
type RateLimiter interface {
	TryAcquire(provider string) bool
}

// IndexEvents publishes and consumes corpus index change notifications.
type IndexEvents interface {
	PublishIndexUpdated(ctx context.Context, source string) error
	SubscribeIndexUpdated(ctx context.Context, handler func(context.Context, domain.IndexUpdatedEvent) error) error
}
