package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/calebyhan/bible-rag/internal/config"
	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/core/ports"
	"github.com/calebyhan/bible-rag/internal/observability/metrics"
)

const (
	serviceName     = "api"
	apiKeyHeader    = "X-Gemini-API-Key"
	maxBodyBytes    = 64 << 10
	maxThemeLength  = 100
	backpressureMax = 250 * time.Millisecond
)

type Router struct {
	cfg     config.Config
	search  ports.SearchService
	lookup  ports.LookupService
	cache   ports.CacheAdmin
	health  ports.HealthChecker
	metrics *metrics.HTTPServerMetrics
}

// NewRouter wires the search API. lookup, cache, health and m may be nil;
// routes backed by a nil service are not registered.
func NewRouter(
	cfg config.Config,
	search ports.SearchService,
	lookup ports.LookupService,
	cache ports.CacheAdmin,
	health ports.HealthChecker,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:     cfg,
		search:  search,
		lookup:  lookup,
		cache:   cache,
		health:  health,
		metrics: m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/search", rt.searchVerses)
	mux.HandleFunc("/v1/themes", rt.searchTheme)
	mux.HandleFunc("/v1/cache", rt.flushCache)
	if rt.cache != nil {
		mux.HandleFunc("GET /v1/cache/stats", rt.cacheStats)
	}
	if rt.lookup != nil {
		mux.HandleFunc("GET /v1/verses/{book}/{chapter}/{verse}", rt.getVerse)
		mux.HandleFunc("GET /v1/verses/{book}/{chapter}", rt.getChapter)
		mux.HandleFunc("GET /v1/translations", rt.listTranslations)
		mux.HandleFunc("GET /v1/books", rt.listBooks)
	}
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var onReject func()
	if rt.metrics != nil {
		onReject = func() { rt.metrics.RecordRateLimited(serviceName) }
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.HTTPMaxInFlight, backpressureMax)
	handler = rateLimitMiddleware(handler, rt.cfg.HTTPRateLimitRPS, rt.cfg.HTTPRateLimitBurst, onReject)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

// healthz answers 503 only when a dependency is down; degraded stays 200.
func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if rt.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	report := rt.health.Health(r.Context())
	status := http.StatusOK
	if report.Status == domain.HealthUnhealthy {
		status = http.StatusServiceUnavailable
		slog.Warn("health_unhealthy", "services", report.Services, "errors", report.Errors)
	}
	writeJSON(w, status, report)
}

type searchRequestBody struct {
	Query            string               `json:"query"`
	Translations     []string             `json:"translations"`
	MaxResults       int                  `json:"max_results"`
	Filters          domain.SearchFilters `json:"filters"`
	IncludeOriginal  bool                 `json:"include_original"`
	IncludeCrossRefs *bool                `json:"include_cross_refs"`
	ExpandedQueries  []string             `json:"expanded_queries"`
}

func (rt *Router) searchVerses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body searchRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return
	}
	if len(body.Translations) == 0 {
		writeError(w, r, http.StatusBadRequest, "at least one translation is required")
		return
	}

	includeCrossRefs := true
	if body.IncludeCrossRefs != nil {
		includeCrossRefs = *body.IncludeCrossRefs
	}
	resp, ok := rt.runSearch(w, r, "/v1/search", domain.SearchRequest{
		Query:            body.Query,
		Translations:     body.Translations,
		MaxResults:       body.MaxResults,
		Filters:          body.Filters,
		IncludeOriginal:  body.IncludeOriginal,
		IncludeCrossRefs: includeCrossRefs,
		ExpandedQueries:  body.ExpandedQueries,
		APIKey:           r.Header.Get(apiKeyHeader),
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type themeRequestBody struct {
	Theme        string   `json:"theme"`
	Testament    string   `json:"testament"`
	Translations []string `json:"translations"`
	MaxResults   int      `json:"max_results"`
}

type themeResponse struct {
	Theme           string                `json:"theme"`
	TestamentFilter string                `json:"testament_filter,omitempty"`
	QueryTimeMS     int64                 `json:"query_time_ms"`
	Results         []domain.SearchResult `json:"results"`
	TotalResults    int                   `json:"total_results"`
	Metadata        domain.SearchMetadata `json:"search_metadata"`
}

// searchTheme runs the search pipeline with the theme as query and an
// optional testament filter.
func (rt *Router) searchTheme(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body themeRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	theme := strings.TrimSpace(body.Theme)
	if theme == "" || len([]rune(theme)) > maxThemeLength {
		writeError(w, r, http.StatusBadRequest, "theme must be 1-100 characters")
		return
	}
	if len(body.Translations) == 0 {
		writeError(w, r, http.StatusBadRequest, "at least one translation is required")
		return
	}
	testament := body.Testament
	if testament == domain.TestamentBoth {
		testament = ""
	}
	maxResults := body.MaxResults
	if maxResults == 0 {
		maxResults = 20
	}

	resp, ok := rt.runSearch(w, r, "/v1/themes", domain.SearchRequest{
		Query:        theme,
		Translations: body.Translations,
		MaxResults:   maxResults,
		Filters:      domain.SearchFilters{Testament: testament},
		APIKey:       r.Header.Get(apiKeyHeader),
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, themeResponse{
		Theme:           theme,
		TestamentFilter: testament,
		QueryTimeMS:     resp.QueryTimeMS,
		Results:         resp.Results,
		TotalResults:    resp.Metadata.TotalResults,
		Metadata:        resp.Metadata,
	})
}

func (rt *Router) runSearch(w http.ResponseWriter, r *http.Request, endpoint string, req domain.SearchRequest) (*domain.SearchResponse, bool) {
	start := time.Now()
	resp, err := rt.search.Search(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, "search_failed", err)
		return nil, false
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(serviceName, endpoint, resp.Metadata.SearchMethod, len(resp.Results), resp.Metadata.Cached, time.Since(start))
	}
	return resp, true
}

func (rt *Router) flushCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if rt.cache == nil {
		writeJSON(w, http.StatusOK, map[string]int{"flushed": 0})
		return
	}
	n, err := rt.cache.FlushCache(r.Context())
	if err != nil {
		writeDomainError(w, r, "cache_flush_failed", err)
		return
	}
	slog.Info("cache_flushed", "request_id", requestIDFromContext(r.Context()), "entries", n)
	writeJSON(w, http.StatusOK, map[string]int{"flushed": n})
}

func (rt *Router) cacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.cache.CacheStats(r.Context())
	if err != nil {
		writeDomainError(w, r, "cache_stats_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) getVerse(w http.ResponseWriter, r *http.Request) {
	chapter, ok := pathInt(w, r, "chapter")
	if !ok {
		return
	}
	verse, ok := pathInt(w, r, "verse")
	if !ok {
		return
	}
	includeOriginal, ok := queryBool(w, r, "include_original", false)
	if !ok {
		return
	}
	includeCrossRefs, ok := queryBool(w, r, "include_cross_refs", true)
	if !ok {
		return
	}

	detail, err := rt.lookup.GetVerse(r.Context(), domain.VerseLookup{
		Book:             r.PathValue("book"),
		Chapter:          chapter,
		Verse:            verse,
		Translations:     queryList(r, "translations"),
		IncludeOriginal:  includeOriginal,
		IncludeCrossRefs: includeCrossRefs,
	})
	if err != nil {
		writeDomainError(w, r, "verse_lookup_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *Router) getChapter(w http.ResponseWriter, r *http.Request) {
	chapter, ok := pathInt(w, r, "chapter")
	if !ok {
		return
	}
	includeOriginal, ok := queryBool(w, r, "include_original", false)
	if !ok {
		return
	}

	detail, err := rt.lookup.GetChapter(r.Context(), domain.ChapterLookup{
		Book:            r.PathValue("book"),
		Chapter:         chapter,
		Translations:    queryList(r, "translations"),
		IncludeOriginal: includeOriginal,
	})
	if err != nil {
		writeDomainError(w, r, "chapter_lookup_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type translationsResponse struct {
	Translations []domain.TranslationInfo `json:"translations"`
	TotalCount   int                      `json:"total_count"`
}

func (rt *Router) listTranslations(w http.ResponseWriter, r *http.Request) {
	out, err := rt.lookup.ListTranslations(r.Context(), r.URL.Query().Get("language"))
	if err != nil {
		writeDomainError(w, r, "list_translations_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, translationsResponse{Translations: out, TotalCount: len(out)})
}

type booksResponse struct {
	Books      []domain.BookInfo `json:"books"`
	TotalCount int               `json:"total_count"`
}

func (rt *Router) listBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := rt.lookup.ListBooks(r.Context(), q.Get("testament"), q.Get("genre"))
	if err != nil {
		writeDomainError(w, r, "list_books_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, booksResponse{Books: out, TotalCount: len(out)})
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.PathValue(name))
	if err != nil || n < 1 {
		writeError(w, r, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}

func queryBool(w http.ResponseWriter, r *http.Request, name string, def bool) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, name+" must be true or false")
		return false, false
	}
	return v, true
}

// queryList splits a comma-separated parameter and drops blanks.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, part := range strings.Split(r.URL.Query().Get(name), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, r, http.StatusBadRequest, "request body is required")
		default:
			writeError(w, r, http.StatusBadRequest, "invalid json")
		}
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeDomainError maps err to a status. Server-side failures are logged in
// full and answered with a generic message so driver and upstream detail
// never reaches the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error(event, "request_id", requestIDFromContext(r.Context()), "status", status, "error", err)
		message = "internal error"
		if status == http.StatusServiceUnavailable {
			message = "service temporarily unavailable"
		}
	}
	writeError(w, r, status, message)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"code":       errorCode(status),
		"request_id": requestIDFromContext(r.Context()),
	})
}
