package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/core/ports"
)

const errNoValidTranslations = "No valid translations found"

type SearchUseCase struct {
	store     ports.PassageStore
	vectors   ports.VectorIndex
	crossRefs ports.CrossReferenceSource
	embedder  ports.Embedder
	reranker  ports.Reranker
	expander  ports.QueryExpander
	cache     ports.ResponseCache
	limiter   ports.RateLimiter
	tuning    domain.SearchTuning
	now       func() time.Time
}

// NewSearchUseCase wires the retrieval pipeline. reranker, expander, cache,
// limiter and crossRefs may be nil.
func NewSearchUseCase(
	store ports.PassageStore,
	vectors ports.VectorIndex,
	crossRefs ports.CrossReferenceSource,
	embedder ports.Embedder,
	reranker ports.Reranker,
	expander ports.QueryExpander,
	cache ports.ResponseCache,
	limiter ports.RateLimiter,
	tuning domain.SearchTuning,
) *SearchUseCase {
	if tuning.RRFK <= 0 {
		tuning.RRFK = defaultRRFK
	}
	if tuning.OverRetrieve <= 0 {
		tuning.OverRetrieve = 3
	}
	if tuning.RerankTopN <= 0 {
		tuning.RerankTopN = 20
	}
	if tuning.DefaultResults <= 0 {
		tuning.DefaultResults = 10
	}
	if tuning.MaxResults <= 0 {
		tuning.MaxResults = 100
	}
	if tuning.CrossRefLimit <= 0 {
		tuning.CrossRefLimit = 5
	}
	if tuning.MaxExpansions <= 0 {
		tuning.MaxExpansions = 3
	}
	if tuning.CacheTTL <= 0 {
		tuning.CacheTTL = 24 * time.Hour
	}
	if tuning.EmbedTimeout <= 0 {
		tuning.EmbedTimeout = 10 * time.Second
	}
	if tuning.VectorTimeout <= 0 {
		tuning.VectorTimeout = 5 * time.Second
	}
	if tuning.FullTextTimeout <= 0 {
		tuning.FullTextTimeout = 5 * time.Second
	}
	if tuning.RerankTimeout <= 0 {
		tuning.RerankTimeout = 8 * time.Second
	}
	if tuning.ExpandTimeout <= 0 {
		tuning.ExpandTimeout = 15 * time.Second
	}
	if tuning.EnrichTimeout <= 0 {
		tuning.EnrichTimeout = 5 * time.Second
	}

	return &SearchUseCase{
		store:     store,
		vectors:   vectors,
		crossRefs: crossRefs,
		embedder:  embedder,
		reranker:  reranker,
		expander:  expander,
		cache:     cache,
		limiter:   limiter,
		tuning:    tuning,
		now:       time.Now,
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	start := uc.now()

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}
	if err := req.Filters.Validate(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	req.MaxResults = uc.clampResults(req.MaxResults)
	req.Translations = normalizeTranslations(req.Translations)

	fingerprint := Fingerprint(req)
	if cached, ok := uc.lookup(ctx, fingerprint); ok {
		cached.Metadata.Cached = true
		cached.QueryTimeMS = uc.now().Sub(start).Milliseconds()
		return cached, nil
	}

	translations, err := uc.store.ResolveTranslations(ctx, req.Translations)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "resolve translations", err)
	}
	if len(translations) == 0 {
		resp := newResponse(req)
		resp.Metadata.SearchMethod = domain.MethodNone
		resp.Metadata.Error = errNoValidTranslations
		resp.QueryTimeMS = uc.now().Sub(start).Milliseconds()
		return resp, nil
	}
	translationIDs := make([]string, len(translations))
	for i, t := range translations {
		translationIDs[i] = t.ID
	}

	ctx = domain.WithAPIKey(ctx, req.APIKey)
	perSignal := req.MaxResults * uc.tuning.OverRetrieve
	if uc.rerankEnabled() && perSignal < uc.tuning.RerankTopN {
		perSignal = uc.tuning.RerankTopN
	}

	resp := newResponse(req)
	mode := uc.selectMode(ctx)
	resp.Metadata.Mode = mode

	var outcome retrievalOutcome
	if mode == domain.ModeNoIndex {
		outcome = uc.retrieveFullTextOnly(ctx, req.Query, translationIDs, req.Filters, perSignal)
	} else {
		expansions := uc.resolveExpansions(ctx, req)
		outcome = uc.retrieveHybrid(ctx, req.Query, expansions, translationIDs, req.Filters, perSignal)
		resp.Metadata.EmbeddingModel = uc.embedder.ModelName()
	}
	resp.Metadata.Signals = outcome.signals()
	resp.Metadata.ExpansionsUsed = outcome.expansionsUsed
	method := outcome.method(mode)

	fused := FuseRRF(outcome.lists, uc.tuning.RRFK)
	degraded := outcome.failed > 0

	var ranked []domain.FusedPassage
	if uc.rerankEnabled() && len(fused) > 1 {
		ranked, err = uc.rerankFused(ctx, req.Query, fused, req.MaxResults)
		if err != nil {
			slog.Warn("rerank_skipped", "error", err)
			method += domain.RerankSkippedSuffix
			resp.Metadata.RerankSkipped = true
			degraded = true
		} else {
			method += domain.RerankSuffix
			resp.Metadata.Reranked = true
		}
	} else {
		ranked = trimFused(fused, req.MaxResults)
	}
	resp.Metadata.SearchMethod = method

	results, err := uc.assemble(ctx, ranked, translations, req.IncludeOriginal, req.IncludeCrossRefs)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "assemble results", err)
	}
	resp.Results = results
	resp.Metadata.TotalResults = len(results)
	resp.QueryTimeMS = uc.now().Sub(start).Milliseconds()

	// Degraded responses are not cached so a recovered provider is used on the next request.
	if !degraded {
		uc.remember(ctx, fingerprint, resp)
	}

	slog.Debug("search_completed",
		"method", resp.Metadata.SearchMethod,
		"mode", mode,
		"results", resp.Metadata.TotalResults,
		"duration_ms", resp.QueryTimeMS,
	)
	return resp, nil
}

// FlushCache drops every cached response.
func (uc *SearchUseCase) FlushCache(ctx context.Context) (int, error) {
	if uc.cache == nil {
		return 0, nil
	}
	n, err := uc.cache.Flush(ctx)
	if err != nil {
		return 0, fmt.Errorf("flush cache: %w", err)
	}
	return n, nil
}

// CacheStats reports backend "none" when caching is disabled.
func (uc *SearchUseCase) CacheStats(ctx context.Context) (domain.CacheStats, error) {
	if uc.cache == nil {
		return domain.CacheStats{Backend: "none"}, nil
	}
	stats, err := uc.cache.Stats(ctx)
	if err != nil {
		return stats, fmt.Errorf("cache stats: %w", err)
	}
	return stats, nil
}

// HandleIndexUpdated invalidates cached responses after a corpus change.
func (uc *SearchUseCase) HandleIndexUpdated(ctx context.Context, event domain.IndexUpdatedEvent) error {
	n, err := uc.FlushCache(ctx)
	if err != nil {
		return err
	}
	slog.Info("cache_invalidated", "event_id", event.ID, "source", event.Source, "entries", n)
	return nil
}

// selectMode routes to full-text only while the vector index is empty or
// unreachable.
func (uc *SearchUseCase) selectMode(ctx context.Context) string {
	if uc.vectors == nil || uc.embedder == nil {
		return domain.ModeNoIndex
	}
	indexCtx, cancel := context.WithTimeout(ctx, uc.tuning.VectorTimeout)
	defer cancel()
	indexed, err := uc.vectors.HasVectors(indexCtx)
	if err != nil {
		slog.Warn("vector_index_check_failed", "error", err)
		return domain.ModeNoIndex
	}
	if !indexed {
		return domain.ModeNoIndex
	}
	return domain.ModeHybrid
}

type retrievalOutcome struct {
	lists          []domain.RankedList
	expansionsUsed []string
	failed         int
}

func (o retrievalOutcome) signals() []string {
	out := make([]string, 0, len(o.lists))
	for _, list := range o.lists {
		if len(list.Candidates) > 0 {
			out = append(out, list.Signal)
		}
	}
	return out
}

func (o retrievalOutcome) method(mode string) string {
	if mode == domain.ModeNoIndex {
		return domain.MethodFullText
	}
	var vector, fullText bool
	for _, list := range o.lists {
		if len(list.Candidates) == 0 {
			continue
		}
		if strings.HasPrefix(list.Signal, domain.SignalFullText) {
			fullText = true
		} else {
			vector = true
		}
	}
	switch {
	case vector && fullText:
		return domain.MethodHybrid
	case vector:
		return domain.MethodVector
	case fullText:
		return domain.MethodFullText
	default:
		return domain.MethodNone
	}
}

func (uc *SearchUseCase) retrieveFullTextOnly(ctx context.Context, query string, translationIDs []string, filters domain.SearchFilters, limit int) retrievalOutcome {
	list, err := uc.fullTextSignal(ctx, domain.SignalFullText, query, translationIDs, filters, limit)
	if err != nil {
		slog.Warn("signal_failed", "signal", domain.SignalFullText, "error", err)
		return retrievalOutcome{failed: 1}
	}
	return retrievalOutcome{lists: []domain.RankedList{list}}
}

type signalJob struct {
	name      string
	expansion string
	run       func(context.Context) (domain.RankedList, error)
}

// retrieveHybrid runs every signal concurrently. Failed signals are dropped;
// surviving lists keep job order so fusion stays deterministic.
func (uc *SearchUseCase) retrieveHybrid(ctx context.Context, query string, expansions []string, translationIDs []string, filters domain.SearchFilters, limit int) retrievalOutcome {
	semantic := func(signal, text string) func(context.Context) (domain.RankedList, error) {
		return func(ctx context.Context) (domain.RankedList, error) {
			vector, err := uc.embed(ctx, text)
			if err != nil {
				return domain.RankedList{}, err
			}
			return uc.vectorSignal(ctx, signal, vector, translationIDs, filters, limit)
		}
	}
	lexical := func(signal, text string) func(context.Context) (domain.RankedList, error) {
		return func(ctx context.Context) (domain.RankedList, error) {
			return uc.fullTextSignal(ctx, signal, text, translationIDs, filters, limit)
		}
	}

	jobs := []signalJob{{name: domain.SignalVector, run: semantic(domain.SignalVector, query)}}
	for i, exp := range expansions {
		name := fmt.Sprintf("%s%d", domain.SignalExpansionPrefix, i+1)
		jobs = append(jobs, signalJob{name: name, expansion: exp, run: semantic(name, exp)})
	}
	if uc.tuning.FullTextEnabled {
		jobs = append(jobs, signalJob{name: domain.SignalFullText, run: lexical(domain.SignalFullText, query)})
		if uc.tuning.FullTextPerExpansion {
			for i, exp := range expansions {
				name := fmt.Sprintf("%s:%s%d", domain.SignalFullText, domain.SignalExpansionPrefix, i+1)
				jobs = append(jobs, signalJob{name: name, run: lexical(name, exp)})
			}
		}
	}

	lists := make([]domain.RankedList, len(jobs))
	errs := make([]error, len(jobs))
	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			lists[i], errs[i] = job.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var outcome retrievalOutcome
	for i, job := range jobs {
		if errs[i] != nil {
			slog.Warn("signal_failed", "signal", job.name, "error", errs[i])
			outcome.failed++
			continue
		}
		if job.expansion != "" {
			outcome.expansionsUsed = append(outcome.expansionsUsed, job.expansion)
		}
		outcome.lists = append(outcome.lists, lists[i])
	}
	return outcome
}

func (uc *SearchUseCase) rerankEnabled() bool {
	return uc.tuning.RerankEnabled && uc.reranker != nil
}

func (uc *SearchUseCase) acquire(provider string) bool {
	if uc.limiter == nil {
		return true
	}
	if uc.limiter.TryAcquire(provider) {
		return true
	}
	slog.Warn("rate_limited", "provider", provider)
	return false
}

func (uc *SearchUseCase) clampResults(n int) int {
	if n <= 0 {
		n = uc.tuning.DefaultResults
	}
	if n > uc.tuning.MaxResults {
		n = uc.tuning.MaxResults
	}
	return n
}

func (uc *SearchUseCase) lookup(ctx context.Context, fingerprint string) (*domain.SearchResponse, bool) {
	if uc.cache == nil {
		return nil, false
	}
	resp, ok, err := uc.cache.Get(ctx, fingerprint)
	if err != nil {
		slog.Warn("cache_read_failed", "error", err)
		return nil, false
	}
	if !ok || resp == nil {
		return nil, false
	}
	return resp, true
}

func (uc *SearchUseCase) remember(ctx context.Context, fingerprint string, resp *domain.SearchResponse) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Set(ctx, fingerprint, resp, uc.tuning.CacheTTL); err != nil {
		slog.Warn("cache_write_failed", "error", err)
	}
}

func normalizeTranslations(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		key := strings.ToUpper(t)
		if t == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func newResponse(req domain.SearchRequest) *domain.SearchResponse {
	return &domain.SearchResponse{
		Query:        req.Query,
		Translations: req.Translations,
		Results:      []domain.SearchResult{},
		Metadata: domain.SearchMetadata{
			Signals: []string{},
		},
	}
}
