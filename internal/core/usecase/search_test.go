package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

var translationsFixture = []domain.Translation{
	{ID: "t-niv", Abbrev: "NIV", Name: "New International Version", Language: "en"},
	{ID: "t-krv", Abbrev: "KRV", Name: "Korean Revised Version", Language: "ko"},
}

func verseRow(book string, chapter, verse int, translationID string, score float64) domain.PassageRow {
	return domain.PassageRow{
		VerseID:       fmt.Sprintf("%s-%d-%d-%s", book, chapter, verse, translationID),
		TranslationID: translationID,
		Ref:           ref(book, chapter, verse),
		Book:          domain.Book{ID: book, Name: book + "-name", Abbrev: book, Testament: "NT"},
		Text:          fmt.Sprintf("%s %d:%d text", book, chapter, verse),
		Score:         score,
	}
}

type storeFake struct {
	mu            sync.Mutex
	translations  []domain.Translation
	resolveErr    error
	fullText      []domain.PassageRow
	fullTextErr   error
	substring     []domain.PassageRow
	siblingErr    error
	fullTextCalls int
	fullTextQuery string
	substringUsed bool
}

func (s *storeFake) ResolveTranslations(_ context.Context, abbrevs []string) ([]domain.Translation, error) {
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	out := make([]domain.Translation, 0, len(abbrevs))
	for _, t := range s.translations {
		if slices.Contains(abbrevs, t.Abbrev) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *storeFake) FullTextSearch(_ context.Context, query string, _ []string, _ domain.SearchFilters, _ int) ([]domain.PassageRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fullTextCalls++
	s.fullTextQuery = query
	if s.fullTextErr != nil {
		return nil, s.fullTextErr
	}
	return s.fullText, nil
}

func (s *storeFake) SubstringSearch(context.Context, string, []string, domain.SearchFilters, int) ([]domain.PassageRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.substringUsed = true
	return s.substring, nil
}

func (s *storeFake) FetchSiblingTranslations(_ context.Context, r domain.PassageRef, ids []string) ([]domain.PassageRow, error) {
	if s.siblingErr != nil {
		return nil, s.siblingErr
	}
	rows := make([]domain.PassageRow, 0, len(ids))
	for _, t := range s.translations {
		if slices.Contains(ids, t.ID) {
			row := verseRow(r.BookID, r.Chapter, r.Verse, t.ID, 0)
			row.TranslationAbbrev = t.Abbrev
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (s *storeFake) FetchOriginalWords(_ context.Context, verseID string) (*domain.OriginalLanguage, error) {
	return &domain.OriginalLanguage{Language: "greek", Words: []domain.OriginalWord{{Word: verseID}}}, nil
}

func (s *storeFake) FetchCrossReferences(context.Context, string, int) ([]domain.CrossReference, error) {
	return []domain.CrossReference{{Book: "Romans", Chapter: 5, Verse: 8, Confidence: 0.9}}, nil
}

// embedderFake maps query text to a one-dimensional vector the vector fake
// can look up.
type embedderFake struct {
	mu     sync.Mutex
	ids    map[string]float32
	errs   map[string]error
	called []string
}

func (e *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.called = append(e.called, text)
	if err := e.errs[text]; err != nil {
		return nil, err
	}
	return []float32{e.ids[text]}, nil
}

func (e *embedderFake) ModelName() string { return "fake-embed" }

type vectorFake struct {
	indexed  bool
	indexErr error
	rows     map[float32][]domain.PassageRow
}

func (v *vectorFake) VectorSearch(_ context.Context, q []float32, _ []string, _ domain.SearchFilters, _ float64, limit int) ([]domain.PassageRow, error) {
	rows := v.rows[q[0]]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (v *vectorFake) HasVectors(context.Context) (bool, error) { return v.indexed, v.indexErr }

type rerankerFake struct {
	err    error
	scores func(texts []string) []float64
}

func (r *rerankerFake) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.scores(texts), nil
}

type cacheFake struct {
	mu      sync.Mutex
	entries map[string]domain.SearchResponse
	getErr   error
	setErr   error
	statsErr error
	sets     int
}

func (c *cacheFake) Get(_ context.Context, key string) (*domain.SearchResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	resp, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &resp, true, nil
}

func (c *cacheFake) Set(_ context.Context, key string, resp *domain.SearchResponse, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	if c.entries == nil {
		c.entries = map[string]domain.SearchResponse{}
	}
	c.entries[key] = *resp
	return nil
}

func (c *cacheFake) Flush(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = nil
	return n, nil
}

func (c *cacheFake) Stats(context.Context) (domain.CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CacheStats{Backend: "fake", Entries: int64(len(c.entries))}, c.statsErr
}

type limiterFake struct {
	deny map[string]bool
}

func (l limiterFake) TryAcquire(provider string) bool { return !l.deny[provider] }

func hybridFixture() (*storeFake, *embedderFake, *vectorFake) {
	store := &storeFake{
		translations: translationsFixture,
		fullText: []domain.PassageRow{
			verseRow("JHN", 3, 16, "t-niv", 0.5),
			verseRow("ROM", 8, 28, "t-niv", 0.4),
		},
	}
	embedder := &embedderFake{ids: map[string]float32{"love": 1}}
	vectors := &vectorFake{
		indexed: true,
		rows:    map[float32][]domain.PassageRow{
			1: {
				verseRow("GEN", 1, 1, "t-niv", 0.91),
				verseRow("JHN", 3, 16, "t-krv", 0.90),
				verseRow("JHN", 3, 16, "t-niv", 0.89),
			},
		},
	}
	return store, embedder, vectors
}

func tuningFixture() domain.SearchTuning {
	return domain.SearchTuning{RRFK: 60, FullTextEnabled: true, SimilarityThreshold: 0.7}
}

func refsOf(results []domain.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = fmt.Sprintf("%s %d:%d", r.Reference.BookAbbrev, r.Reference.Chapter, r.Reference.Verse)
	}
	return out
}

func TestSearchEmptyIndexUsesFullText(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	vectors.indexed = false
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	resp, err := uc.Search(context.Background(), domain.SearchRequest{
		Query: "love", Translations: []string{"NIV"}, MaxResults: 10, IncludeCrossRefs: true,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Metadata.SearchMethod != domain.MethodFullText {
		t.Fatalf("expected full-text, got %s", resp.Metadata.SearchMethod)
	}
	if resp.Metadata.Mode != domain.ModeNoIndex {
		t.Fatalf("expected no-index mode, got %s", resp.Metadata.Mode)
	}
	if len(embedder.called) != 0 {
		t.Fatalf("embedder should not be called without an index")
	}
	if len(resp.Results) != 2 || len(resp.Results[0].CrossReferences) != 1 {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
}

func TestSearchHybridFusesSignals(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	resp, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV", "KRV"}, MaxResults: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	got := refsOf(resp.Results)
	want := []string{"JHN 3:16", "GEN 1:1", "ROM 8:28"}
	if !slices.Equal(got, want) {
		t.Fatalf("unexpected order %v, want %v", got, want)
	}
	if resp.Metadata.SearchMethod != domain.MethodHybrid {
		t.Fatalf("expected hybrid, got %s", resp.Metadata.SearchMethod)
	}
	if !slices.Equal(resp.Metadata.Signals, []string{"vector", "full-text"}) {
		t.Fatalf("unexpected signals %v", resp.Metadata.Signals)
	}
	top := resp.Results[0]
	if len(top.Translations) != 2 || top.Translations["KRV"] == "" || top.Translations["NIV"] == "" {
		t.Fatalf("expected both translations, got %v", top.Translations)
	}
	if resp.Metadata.TotalResults != 3 {
		t.Fatalf("expected total 3, got %d", resp.Metadata.TotalResults)
	}
}

func TestSearchRerankFailureKeepsFusedOrder(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	tuning := tuningFixture()
	tuning.RerankEnabled = true
	reranker := &rerankerFake{err: errors.New("model unavailable")}
	uc := NewSearchUseCase(store, vectors, store, embedder, reranker, nil, nil, nil, tuning)

	resp, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV"}, MaxResults: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got := refsOf(resp.Results); !slices.Equal(got, []string{"JHN 3:16", "GEN 1:1"}) {
		t.Fatalf("expected fused order truncated to 2, got %v", got)
	}
	if resp.Metadata.SearchMethod != domain.MethodHybrid+domain.RerankSkippedSuffix {
		t.Fatalf("unexpected method %s", resp.Metadata.SearchMethod)
	}
	if !resp.Metadata.RerankSkipped || resp.Metadata.Reranked {
		t.Fatalf("expected rerank skipped flag")
	}
}

func TestSearchRerankReordersHead(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	tuning := tuningFixture()
	tuning.RerankEnabled = true
	reranker := &rerankerFake{scores: func(texts []string) []float64 {
		out := make([]float64, len(texts))
		for i := range texts {
			out[i] = float64(i)
		}
		return out
	}}
	uc := NewSearchUseCase(store, vectors, store, embedder, reranker, nil, nil, nil, tuning)

	resp, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV"}, MaxResults: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got := refsOf(resp.Results); !slices.Equal(got, []string{"ROM 8:28", "GEN 1:1", "JHN 3:16"}) {
		t.Fatalf("expected reversed order, got %v", got)
	}
	if resp.Metadata.SearchMethod != domain.MethodHybrid+domain.RerankSuffix {
		t.Fatalf("unexpected method %s", resp.Metadata.SearchMethod)
	}
}

func TestSearchFailedExpansionIsSkipped(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	embedder.ids["charity"] = 2
	embedder.errs = map[string]error{"grace": errors.New("embedding timeout")}
	vectors.rows[2] = []domain.PassageRow{verseRow("1CO", 13, 4, "t-niv", 0.88)}
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	resp, err := uc.Search(context.Background(), domain.SearchRequest{
		Query: "love", Translations: []string{"NIV"}, MaxResults: 10,
		ExpandedQueries: []string{"grace", "charity"},
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !slices.Equal(resp.Metadata.ExpansionsUsed, []string{"charity"}) {
		t.Fatalf("unexpected expansions used %v", resp.Metadata.ExpansionsUsed)
	}
	if !slices.Equal(resp.Metadata.Signals, []string{"vector", "expansion:2", "full-text"}) {
		t.Fatalf("unexpected signals %v", resp.Metadata.Signals)
	}
	if len(resp.Results) != 4 {
		t.Fatalf("expected 4 results, got %v", refsOf(resp.Results))
	}
}

func TestSearchNeverExceedsMaxResults(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	for v := 1; v <= 30; v++ {
		store.fullText = append(store.fullText, verseRow("PSA", 119, v, "t-niv", 0.3))
	}
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	resp, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV"}, MaxResults: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) != 5 || resp.Metadata.TotalResults != 5 {
		t.Fatalf("expected 5 results, got %d", len(resp.Results))
	}
}

func TestSearchNoValidTranslations(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	resp, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"XYZ"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Metadata.Error != errNoValidTranslations || len(resp.Results) != 0 {
		t.Fatalf("unexpected response: %+v", resp.Metadata)
	}
	if store.fullTextCalls != 0 {
		t.Fatalf("retrieval should not run without translations")
	}
}

func TestSearchStoreFailurePropagates(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	store.resolveErr = errors.New("connection refused")
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	_, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV"}})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	_, err := uc.Search(context.Background(), domain.SearchRequest{Query: "   "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSearchAllSignalsFailReturnsEmpty(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	store.fullTextErr = errors.New("statement timeout")
	embedder.errs = map[string]error{"love": domain.ErrMissingCredential}
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	resp, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) != 0 || resp.Metadata.TotalResults != 0 {
		t.Fatalf("expected empty results, got %d", len(resp.Results))
	}
	if resp.Metadata.SearchMethod != domain.MethodNone {
		t.Fatalf("expected none, got %s", resp.Metadata.SearchMethod)
	}
}

func TestSearchCacheHitSkipsRetrieval(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	cache := &cacheFake{}
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, cache, nil, tuningFixture())
	req := domain.SearchRequest{Query: "love", Translations: []string{"NIV", "KRV"}, MaxResults: 10}

	first, err := uc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("first Search() error = %v", err)
	}
	if first.Metadata.Cached {
		t.Fatalf("first response must not be marked cached")
	}

	req.Query = "  LOVE "
	req.Translations = []string{"KRV", "NIV"}
	second, err := uc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("second Search() error = %v", err)
	}
	if !second.Metadata.Cached {
		t.Fatalf("expected cache hit")
	}
	if store.fullTextCalls != 1 {
		t.Fatalf("expected retrieval once, got %d", store.fullTextCalls)
	}
	if !slices.Equal(refsOf(first.Results), refsOf(second.Results)) {
		t.Fatalf("cached results differ")
	}
}

func TestSearchCacheFailuresAreIgnored(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	cache := &cacheFake{getErr: errors.New("cache down"), setErr: errors.New("cache down")}
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, cache, nil, tuningFixture())

	resp, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) == 0 || cache.sets != 1 {
		t.Fatalf("expected results and one cache write attempt, got %d results, %d sets", len(resp.Results), cache.sets)
	}
}

func TestSearchRateLimitedEmbeddingDegradesToFullText(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	embedder.errs = map[string]error{
		"love": domain.WrapError(domain.ErrRateLimited, "embed query", errors.New("provider embedding budget exhausted")),
	}
	cache := &cacheFake{}
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, cache, nil, tuningFixture())

	resp, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Metadata.SearchMethod != domain.MethodFullText {
		t.Fatalf("expected full-text, got %s", resp.Metadata.SearchMethod)
	}
	if cache.sets != 0 {
		t.Fatalf("degraded responses must not be cached")
	}
}

func TestSearchLeavesEmbeddingBudgetToEmbedder(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	limiter := limiterFake{deny: map[string]bool{"embedding": true}}
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, limiter, tuningFixture())

	resp, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Metadata.SearchMethod != domain.MethodHybrid {
		t.Fatalf("a cached or budgeted embedder decides admission, got %s", resp.Metadata.SearchMethod)
	}
	if len(embedder.called) != 1 {
		t.Fatalf("expected one embed call, got %v", embedder.called)
	}
}

func TestSearchIndexCheckFailureUsesFullText(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	vectors.indexErr = errors.New("relation \"embeddings\" does not exist")
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	resp, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Metadata.SearchMethod != domain.MethodFullText || len(embedder.called) != 0 {
		t.Fatalf("expected full-text without embedding, got %s %v", resp.Metadata.SearchMethod, embedder.called)
	}
}

func TestSearchFullTextFallsBackToSubstring(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	vectors.indexed = false
	store.fullText = nil
	store.substring = []domain.PassageRow{verseRow("1JN", 4, 8, "t-niv", 0)}
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	resp, err := uc.Search(context.Background(), domain.SearchRequest{Query: "what is love", Translations: []string{"NIV"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !store.substringUsed || len(resp.Results) != 1 {
		t.Fatalf("expected substring fallback result, got %v", refsOf(resp.Results))
	}
	if store.fullTextQuery != "love" {
		t.Fatalf("expected stopwords stripped, got %q", store.fullTextQuery)
	}
}

func TestSearchSiblingFailurePropagates(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	store.siblingErr = errors.New("connection reset")
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	_, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV"}})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestSearchIncludesOriginalWords(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	resp, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV"}, IncludeOriginal: true})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, r := range resp.Results {
		if r.Original == nil || r.Original.Language != "greek" {
			t.Fatalf("expected original words on every result")
		}
		if r.CrossReferences != nil {
			t.Fatalf("cross references not requested")
		}
	}
}

func TestHandleIndexUpdatedFlushesCache(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	cache := &cacheFake{entries: map[string]domain.SearchResponse{"search:a": {}, "search:b": {}}}
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, cache, nil, tuningFixture())

	if err := uc.HandleIndexUpdated(context.Background(), domain.IndexUpdatedEvent{ID: "evt-1"}); err != nil {
		t.Fatalf("HandleIndexUpdated() error = %v", err)
	}
	if len(cache.entries) != 0 {
		t.Fatalf("expected empty cache")
	}
}

func TestSearchDegradedResponseIsNotCached(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	tuning := tuningFixture()
	tuning.RerankEnabled = true
	cache := &cacheFake{}
	reranker := &rerankerFake{err: errors.New("model unavailable")}
	uc := NewSearchUseCase(store, vectors, store, embedder, reranker, nil, cache, nil, tuning)

	req := domain.SearchRequest{Query: "love", Translations: []string{"NIV"}}
	if _, err := uc.Search(context.Background(), req); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if cache.sets != 0 {
		t.Fatalf("expected degraded response to skip the cache, got %d writes", cache.sets)
	}

	reranker.err = nil
	reranker.scores = func(texts []string) []float64 { return make([]float64, len(texts)) }
	if _, err := uc.Search(context.Background(), req); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected healthy response cached once, got %d writes", cache.sets)
	}
}

func TestCacheStatsWithoutCache(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, nil, nil, tuningFixture())

	stats, err := uc.CacheStats(context.Background())
	if err != nil || stats.Backend != "none" {
		t.Fatalf("expected disabled cache stats, got %+v, %v", stats, err)
	}
}

func TestCacheStatsCountsEntries(t *testing.T) {
	store, embedder, vectors := hybridFixture()
	cache := &cacheFake{}
	uc := NewSearchUseCase(store, vectors, store, embedder, nil, nil, cache, nil, tuningFixture())

	if _, err := uc.Search(context.Background(), domain.SearchRequest{Query: "love", Translations: []string{"NIV"}}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	stats, err := uc.CacheStats(context.Background())
	if err != nil || stats.Entries != 1 {
		t.Fatalf("expected one cached entry, got %+v, %v", stats, err)
	}

	cache.statsErr = errors.New("cache offline")
	if _, err := uc.CacheStats(context.Background()); err == nil {
		t.Fatalf("expected stats error")
	}
}
