package domain

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	TestamentOld  = "OT"
	TestamentNew  = "NT"
	TestamentBoth = "both"
)

const (
	SignalVector          = "vector"
	SignalFullText        = "full-text"
	SignalExpansionPrefix = "expansion:"
)

const (
	MethodFullText = "full-text"
	MethodVector   = "vector"
	MethodHybrid   = "hybrid"
	MethodNone     = "none"

	RerankSuffix        = "+rerank"
	RerankSkippedSuffix = "+rerank-skipped"
)

const (
	ModeHybrid  = "hybrid"
	ModeNoIndex = "no-index"
)

type SearchFilters struct {
	Testament string   `json:"testament,omitempty" yaml:"testament"`
	Genre     string   `json:"genre,omitempty" yaml:"genre"`
	Books     []string `json:"books,omitempty" yaml:"books"`
}

func (f SearchFilters) Validate() error {
	switch f.Testament {
	case "", TestamentOld, TestamentNew, TestamentBoth:
	default:
		return fmt.Errorf("%w: testament must be OT, NT or both", ErrInvalidInput)
	}
	return nil
}

// Pairs returns the active filters as sorted key=value strings.
func (f SearchFilters) Pairs() []string {
	pairs := make([]string, 0, 2+len(f.Books))
	if f.Testament != "" && f.Testament != TestamentBoth {
		pairs = append(pairs, "testament="+f.Testament)
	}
	if genre := strings.TrimSpace(f.Genre); genre != "" {
		pairs = append(pairs, "genre="+strings.ToLower(genre))
	}
	for _, book := range f.Books {
		book = strings.TrimSpace(book)
		if book == "" {
			continue
		}
		pairs = append(pairs, "book="+strings.ToLower(book))
	}
	slices.Sort(pairs)
	return slices.Compact(pairs)
}

type SearchRequest struct {
	Query            string        `json:"query"`
	Translations     []string      `json:"translations"`
	MaxResults       int           `json:"max_results"`
	Filters          SearchFilters `json:"filters"`
	IncludeOriginal  bool          `json:"include_original"`
	IncludeCrossRefs bool          `json:"include_cross_refs"`
	ExpandedQueries  []string      `json:"expanded_queries,omitempty"`
	// APIKey is an optional caller-supplied embedding credential.
	APIKey string `json:"-"`
}

type Reference struct {
	Book       string `json:"book"`
	BookKorean string `json:"book_korean,omitempty"`
	BookAbbrev string `json:"book_abbreviation"`
	Chapter    int    `json:"chapter"`
	Verse      int    `json:"verse"`
	Testament  string `json:"testament"`
	Genre      string `json:"genre,omitempty"`
}

type SearchResult struct {
	Reference       Reference         `json:"reference"`
	Translations    map[string]string `json:"translations"`
	RelevanceScore  float64           `json:"relevance_score"`
	CrossReferences []CrossReference  `json:"cross_references,omitempty"`
	Original        *OriginalLanguage `json:"original,omitempty"`
}

type SearchMetadata struct {
	TotalResults   int      `json:"total_results"`
	SearchMethod   string   `json:"search_method"`
	Mode           string   `json:"mode,omitempty"`
	Signals        []string `json:"signals"`
	ExpansionsUsed []string `json:"expansions_used,omitempty"`
	EmbeddingModel string   `json:"embedding_model,omitempty"`
	Reranked       bool     `json:"reranked"`
	RerankSkipped  bool     `json:"rerank_skipped,omitempty"`
	Cached         bool     `json:"cached"`
	Error          string   `json:"error,omitempty"`
}

type SearchResponse struct {
	Query        string         `json:"query"`
	Translations []string       `json:"translations"`
	QueryTimeMS  int64          `json:"query_time_ms"`
	Results      []SearchResult `json:"results"`
	Metadata     SearchMetadata `json:"search_metadata"`
}

type apiKeyContextKey struct{}

// WithAPIKey attaches a caller-supplied embedding credential to ctx.
func WithAPIKey(ctx context.Context, key string) context.Context {
	if strings.TrimSpace(key) == "" {
		return ctx
	}
	return context.WithValue(ctx, apiKeyContextKey{}, strings.TrimSpace(key))
}

func APIKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(apiKeyContextKey{}).(string)
	return key
}

// IndexUpdatedEvent announces that corpus or embeddings changed and cached
// responses are stale.
type IndexUpdatedEvent struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	OccurredAt string `json:"occurred_at"`
}

// SearchTuning holds the ranking and degradation knobs of the search pipeline.
// Zero values are replaced with defaults by the use case.
type SearchTuning struct {
	RRFK                 int
	OverRetrieve         int
	RerankTopN           int
	RerankEnabled        bool
	FullTextEnabled      bool
	FullTextPerExpansion bool
	SimilarityThreshold  float64
	DefaultResults       int
	MaxResults           int
	CrossRefLimit        int
	MaxExpansions        int
	AutoExpand           bool
	CacheTTL             time.Duration

	EmbedTimeout    time.Duration
	VectorTimeout   time.Duration
	FullTextTimeout time.Duration
	RerankTimeout   time.Duration
	ExpandTimeout   time.Duration
	EnrichTimeout   time.Duration
}
