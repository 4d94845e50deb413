package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calebyhan/bible-rag/internal/config"
	"github.com/calebyhan/bible-rag/internal/core/domain"
)

type lookupFake struct {
	verse   *domain.VerseDetail
	chapter *domain.ChapterDetail
	err     error

	gotVerse     domain.VerseLookup
	gotChapter   domain.ChapterLookup
	gotLanguage  string
	gotTestament string
	gotGenre     string
}

func (f *lookupFake) GetVerse(_ context.Context, req domain.VerseLookup) (*domain.VerseDetail, error) {
	f.gotVerse = req
	return f.verse, f.err
}

func (f *lookupFake) GetChapter(_ context.Context, req domain.ChapterLookup) (*domain.ChapterDetail, error) {
	f.gotChapter = req
	return f.chapter, f.err
}

func (f *lookupFake) ListTranslations(_ context.Context, language string) ([]domain.TranslationInfo, error) {
	f.gotLanguage = language
	if f.err != nil {
		return nil, f.err
	}
	return []domain.TranslationInfo{{Abbrev: "NIV", LanguageCode: "en", LanguageName: "English", VerseCount: 31102}}, nil
}

func (f *lookupFake) ListBooks(_ context.Context, testament, genre string) ([]domain.BookInfo, error) {
	f.gotTestament, f.gotGenre = testament, genre
	if f.err != nil {
		return nil, f.err
	}
	return []domain.BookInfo{{Book: domain.Book{Name: "Genesis", Abbrev: "GEN"}, BookNumber: 1, TotalChapters: 50}}, nil
}

type healthFake struct{ report domain.HealthReport }

func (f healthFake) Health(context.Context) domain.HealthReport { return f.report }

func newLookupHandler(lookup *lookupFake, health healthFake) http.Handler {
	return NewRouter(config.Config{}, &searchFake{}, lookup, cacheAdminFake{n: 4}, health, nil).Handler()
}

func doGet(handler http.Handler, target string) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, target, nil))
	return res
}

func TestGetVerseParsesReferenceAndOptions(t *testing.T) {
	lookup := &lookupFake{verse: &domain.VerseDetail{
		Reference:    domain.Reference{Book: "1 John", Chapter: 4, Verse: 8},
		Translations: map[string]string{"NIV": "God is love."},
		Context:      domain.VerseContext{Next: &domain.ContextVerse{Chapter: 4, Verse: 9, Text: "This is how God showed"}},
	}}
	handler := newLookupHandler(lookup, healthFake{})

	res := doGet(handler, "/v1/verses/1%20John/4/8?translations=NIV,%20KRV,&include_original=true")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	got := lookup.gotVerse
	if got.Book != "1 John" || got.Chapter != 4 || got.Verse != 8 {
		t.Fatalf("unexpected reference %+v", got)
	}
	if len(got.Translations) != 2 || got.Translations[1] != "KRV" {
		t.Fatalf("unexpected translations %v", got.Translations)
	}
	if !got.IncludeOriginal || !got.IncludeCrossRefs {
		t.Fatalf("expected original requested and cross refs on by default, got %+v", got)
	}

	var body domain.VerseDetail
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Translations["NIV"] != "God is love." || body.Context.Next.Verse != 9 || body.Context.Previous != nil {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestGetVerseKoreanBookName(t *testing.T) {
	lookup := &lookupFake{verse: &domain.VerseDetail{}}
	handler := newLookupHandler(lookup, healthFake{})

	if res := doGet(handler, "/v1/verses/%EC%9A%94%ED%95%9C%EB%B3%B5%EC%9D%8C/3/16?include_cross_refs=false"); res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if lookup.gotVerse.Book != "요한복음" || lookup.gotVerse.IncludeCrossRefs {
		t.Fatalf("unexpected lookup %+v", lookup.gotVerse)
	}
}

func TestGetVerseRejectsBadParameters(t *testing.T) {
	handler := newLookupHandler(&lookupFake{verse: &domain.VerseDetail{}}, healthFake{})
	for _, target := range []string{
		"/v1/verses/John/three/16",
		"/v1/verses/John/3/0",
		"/v1/verses/John/3/16?include_original=maybe",
	} {
		if res := doGet(handler, target); res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, res.Code)
		}
	}
}

func TestGetVerseNotFound(t *testing.T) {
	lookup := &lookupFake{err: domain.WrapError(domain.ErrNotFound, "get verse", errors.New("John 3:99"))}
	res := doGet(newLookupHandler(lookup, healthFake{}), "/v1/verses/John/3/99")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(res.Body).Decode(&body)
	if body["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND code, got %v", body)
	}
}

func TestGetChapter(t *testing.T) {
	lookup := &lookupFake{chapter: &domain.ChapterDetail{
		Reference: domain.ChapterReference{Book: "Psalms", Chapter: 23},
		Verses:    []domain.ChapterVerse{{Verse: 1}, {Verse: 2}},
	}}
	res := doGet(newLookupHandler(lookup, healthFake{}), "/v1/verses/Psalms/23?translations=KJV")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if lookup.gotChapter.Chapter != 23 || len(lookup.gotChapter.Translations) != 1 {
		t.Fatalf("unexpected lookup %+v", lookup.gotChapter)
	}
	var body domain.ChapterDetail
	_ = json.NewDecoder(res.Body).Decode(&body)
	if len(body.Verses) != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestListTranslationsAndBooks(t *testing.T) {
	lookup := &lookupFake{}
	handler := newLookupHandler(lookup, healthFake{})

	res := doGet(handler, "/v1/translations?language=en")
	if res.Code != http.StatusOK || lookup.gotLanguage != "en" {
		t.Fatalf("translations: status %d language %q", res.Code, lookup.gotLanguage)
	}
	var translations translationsResponse
	_ = json.NewDecoder(res.Body).Decode(&translations)
	if translations.TotalCount != 1 || translations.Translations[0].LanguageName != "English" {
		t.Fatalf("unexpected translations %+v", translations)
	}

	res = doGet(handler, "/v1/books?testament=OT&genre=Law")
	if res.Code != http.StatusOK || lookup.gotTestament != "OT" || lookup.gotGenre != "Law" {
		t.Fatalf("books: status %d filters %q %q", res.Code, lookup.gotTestament, lookup.gotGenre)
	}
	var books booksResponse
	_ = json.NewDecoder(res.Body).Decode(&books)
	if books.TotalCount != 1 || books.Books[0].Abbrev != "GEN" || books.Books[0].TotalChapters != 50 {
		t.Fatalf("unexpected books %+v", books)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/books", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /v1/books: expected 405, got %d", res.Code)
	}
}

func TestListBooksInvalidTestament(t *testing.T) {
	lookup := &lookupFake{err: errors.Join(domain.ErrInvalidInput, errors.New("testament must be OT or NT"))}
	if res := doGet(newLookupHandler(lookup, healthFake{}), "/v1/books?testament=XX"); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestLookupStoreFailureIsUnavailable(t *testing.T) {
	lookup := &lookupFake{err: domain.WrapError(domain.ErrStoreUnavailable, "list translations", errors.New("dial tcp: i/o timeout"))}
	res := doGet(newLookupHandler(lookup, healthFake{}), "/v1/translations")
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestLookupRoutesAbsentWithoutService(t *testing.T) {
	handler := newTestHandler(config.Config{}, &searchFake{})
	if res := doGet(handler, "/v1/books"); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without lookup service, got %d", res.Code)
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	res := doGet(newTestHandler(config.Config{}, &searchFake{}), "/v1/cache/stats")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var stats domain.CacheStats
	_ = json.NewDecoder(res.Body).Decode(&stats)
	if stats.Entries != 4 || stats.Hits != 9 || stats.Backend != "memory" {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestHealthzReportsDependencies(t *testing.T) {
	healthy := healthFake{report: domain.HealthReport{
		Status:   domain.HealthDegraded,
		Services: map[string]string{"database": domain.HealthHealthy, "cache": domain.HealthHealthy},
		Stats:    map[string]int64{"cache_keys": 3},
	}}
	res := doGet(newLookupHandler(&lookupFake{}, healthy), "/healthz")
	if res.Code != http.StatusOK {
		t.Fatalf("degraded must stay 200, got %d", res.Code)
	}
	var report domain.HealthReport
	_ = json.NewDecoder(res.Body).Decode(&report)
	if report.Services["database"] != domain.HealthHealthy || report.Stats["cache_keys"] != 3 {
		t.Fatalf("unexpected report %+v", report)
	}

	down := healthFake{report: domain.HealthReport{
		Status:   domain.HealthUnhealthy,
		Services: map[string]string{"database": domain.HealthUnhealthy},
	}}
	if res := doGet(newLookupHandler(&lookupFake{}, down), "/healthz"); res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when unhealthy, got %d", res.Code)
	}
}
