package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

func newCacheRepoWithMock(t *testing.T) (*QueryCacheRepository, sqlmock.Sqlmock, time.Time, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(arrayConverter{}))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	repo := NewQueryCacheRepository(db)
	repo.now = func() time.Time { return now }
	return repo, mock, now, func() { _ = db.Close() }
}

func TestQueryCacheGetHit(t *testing.T) {
	repo, mock, now, done := newCacheRepoWithMock(t)
	defer done()

	payload, _ := json.Marshal(domain.SearchResponse{Query: "love", Metadata: domain.SearchMetadata{TotalResults: 3}})
	mock.ExpectQuery("UPDATE query_cache").
		WithArgs("search:abc", now).
		WillReturnRows(sqlmock.NewRows([]string{"results"}).AddRow(payload))

	resp, ok, err := repo.Get(context.Background(), "search:abc")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if resp.Query != "love" || resp.Metadata.TotalResults != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryCacheGetMissOnExpiredOrAbsent(t *testing.T) {
	repo, mock, _, done := newCacheRepoWithMock(t)
	defer done()

	mock.ExpectQuery("UPDATE query_cache").WillReturnError(sql.ErrNoRows)

	_, ok, err := repo.Get(context.Background(), "search:missing")
	if err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestQueryCacheSetUpserts(t *testing.T) {
	repo, mock, now, done := newCacheRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO query_cache").
		WithArgs("search:abc", "love", []string{"NIV"}, sqlmock.AnyArg(), now, now.Add(24*time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Set(context.Background(), "search:abc", &domain.SearchResponse{Query: "love", Translations: []string{"NIV"}}, 24*time.Hour)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryCacheSetFailureIsReturned(t *testing.T) {
	repo, mock, _, done := newCacheRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO query_cache").WillReturnError(errors.New("disk full"))
	if err := repo.Set(context.Background(), "k", &domain.SearchResponse{}, time.Hour); err == nil {
		t.Fatalf("expected error")
	}
}

func TestQueryCachePurgeExpired(t *testing.T) {
	repo, mock, now, done := newCacheRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM query_cache WHERE expires_at").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.PurgeExpired(context.Background())
	if err != nil || n != 4 {
		t.Fatalf("unexpected purge result %d, %v", n, err)
	}
}

func TestQueryCacheFlush(t *testing.T) {
	repo, mock, _, done := newCacheRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM query_cache").WillReturnResult(sqlmock.NewResult(0, 9))
	n, err := repo.Flush(context.Background())
	if err != nil || n != 9 {
		t.Fatalf("unexpected flush result %d, %v", n, err)
	}
}

func TestQueryCacheEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, _, done := newCacheRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(int64(2026101901)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS query_cache`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryCacheStatsReadsHitCount(t *testing.T) {
	repo, mock, now, done := newCacheRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`SUM\(hit_count - 1\).*expires_at > \$1`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"count", "hits"}).AddRow(int64(12), int64(40)))

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Backend != "postgres" || stats.Entries != 12 || stats.Hits != 40 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestQueryCacheStatsWrapsError(t *testing.T) {
	repo, mock, _, done := newCacheRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`FROM query_cache`).WillReturnError(errors.New("relation does not exist"))
	if _, err := repo.Stats(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
