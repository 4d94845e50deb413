package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calebyhan/bible-rag/internal/config"
	"github.com/calebyhan/bible-rag/internal/core/domain"
)

type searchFake struct {
	resp *domain.SearchResponse
	err  error
	got  domain.SearchRequest
}

func (f *searchFake) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &domain.SearchResponse{Query: req.Query, Results: []domain.SearchResult{}}, nil
}

type cacheAdminFake struct {
	n   int
	err error
}

func (f cacheAdminFake) FlushCache(context.Context) (int, error) { return f.n, f.err }

func (f cacheAdminFake) CacheStats(context.Context) (domain.CacheStats, error) {
	return domain.CacheStats{Backend: "memory", Entries: int64(f.n), Hits: 9}, f.err
}

func newTestHandler(cfg config.Config, search *searchFake) http.Handler {
	return NewRouter(cfg, search, nil, cacheAdminFake{n: 4}, nil, nil).Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestSearchMapsDomainErrorsToStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", domain.WrapError(domain.ErrInvalidInput, "search", errors.New("bad testament")), http.StatusBadRequest},
		{"credential", domain.WrapError(domain.ErrMissingCredential, "embed", errors.New("no key")), http.StatusUnauthorized},
		{"rate limited", domain.WrapError(domain.ErrRateLimited, "embed", errors.New("budget")), http.StatusTooManyRequests},
		{"store", domain.WrapError(domain.ErrStoreUnavailable, "resolve translations", errors.New("conn refused")), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(config.Config{}, &searchFake{err: tc.err})
			res := postJSON(t, handler, "/v1/search", map[string]any{"query": "love", "translations": []string{"KJV"}})
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["error"] == "" || body["request_id"] == "" {
				t.Fatalf("expected error and request id, got %v", body)
			}
		})
	}
}

func TestSearchRejectsMalformedRequests(t *testing.T) {
	handler := newTestHandler(config.Config{}, &searchFake{})

	if res := postJSON(t, handler, "/v1/search", map[string]any{"query": " ", "translations": []string{"KJV"}}); res.Code != http.StatusBadRequest {
		t.Fatalf("blank query: expected 400, got %d", res.Code)
	}
	if res := postJSON(t, handler, "/v1/search", map[string]any{"query": "love"}); res.Code != http.StatusBadRequest {
		t.Fatalf("no translations: expected 400, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader([]byte("{")))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("broken json: expected 400, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/search", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET: expected 405, got %d", res.Code)
	}
}

func TestServerErrorsHideInternalDetail(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"driver", errors.New(`pq: relation "verses" does not exist at 10.0.3.7:5432`), http.StatusInternalServerError, "internal error"},
		{"store", domain.WrapError(domain.ErrStoreUnavailable, "resolve translations", errors.New("dial tcp 10.0.3.7:5432: connection refused")), http.StatusServiceUnavailable, "service temporarily unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(config.Config{}, &searchFake{err: tc.err})
			res := postJSON(t, handler, "/v1/search", map[string]any{"query": "love", "translations": []string{"KJV"}})
			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
			if bytes.Contains(res.Body.Bytes(), []byte("10.0.3.7")) {
				t.Fatalf("response leaks internal detail: %s", res.Body.String())
			}
			var body map[string]string
			_ = json.NewDecoder(res.Body).Decode(&body)
			if body["error"] != tc.message {
				t.Fatalf("expected %q, got %q", tc.message, body["error"])
			}
		})
	}
}

func TestClientErrorsKeepMessage(t *testing.T) {
	handler := newTestHandler(config.Config{}, &searchFake{err: domain.WrapError(domain.ErrInvalidInput, "search", errors.New("testament must be OT, NT or both"))})
	res := postJSON(t, handler, "/v1/search", map[string]any{"query": "love", "translations": []string{"KJV"}})
	if res.Code != http.StatusBadRequest || !bytes.Contains(res.Body.Bytes(), []byte("testament must be")) {
		t.Fatalf("expected 400 with validation message, got %d %s", res.Code, res.Body.String())
	}
}

func TestFlushCacheFailureHidesDetail(t *testing.T) {
	handler := NewRouter(config.Config{}, &searchFake{}, nil, cacheAdminFake{err: errors.New("pq: permission denied for table query_cache")}, nil, nil).Handler()
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/cache", nil))
	if res.Code != http.StatusInternalServerError || bytes.Contains(res.Body.Bytes(), []byte("query_cache")) {
		t.Fatalf("expected generic 500, got %d %s", res.Code, res.Body.String())
	}
}
