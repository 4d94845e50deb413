package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

// QueryCacheRepository stores search responses in the query_cache table so
// every API replica shares one cache.
type QueryCacheRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewQueryCacheRepository(db *sql.DB) *QueryCacheRepository {
	return &QueryCacheRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *QueryCacheRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS query_cache (
	query_hash TEXT PRIMARY KEY,
	query_text TEXT NOT NULL,
	language_code TEXT,
	translations TEXT[],
	results JSONB NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT now(),
	last_accessed TIMESTAMP NOT NULL DEFAULT now(),
	hit_count INTEGER NOT NULL DEFAULT 1,
	expires_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_cache_expires ON query_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_query_cache_hit_count ON query_cache(hit_count);
`
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *QueryCacheRepository) Get(ctx context.Context, fingerprint string) (*domain.SearchResponse, bool, error) {
	now := r.now()
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
UPDATE query_cache
SET hit_count = hit_count + 1, last_accessed = $2
WHERE query_hash = $1 AND expires_at > $2
RETURNING results
`, fingerprint, now).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read query cache: %w", err)
	}

	var resp domain.SearchResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, false, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, true, nil
}

func (r *QueryCacheRepository) Set(ctx context.Context, fingerprint string, resp *domain.SearchResponse, ttl time.Duration) error {
	if resp == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	now := r.now()

	_, err = r.db.ExecContext(ctx, `
INSERT INTO query_cache (query_hash, query_text, translations, results, created_at, last_accessed, hit_count, expires_at)
VALUES ($1, $2, $3, $4, $5, $5, 1, $6)
ON CONFLICT (query_hash) DO UPDATE
SET results = EXCLUDED.results,
	translations = EXCLUDED.translations,
	last_accessed = EXCLUDED.last_accessed,
	expires_at = EXCLUDED.expires_at
`, fingerprint, resp.Query, resp.Translations, payload, now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("write query cache: %w", err)
	}
	return nil
}

func (r *QueryCacheRepository) Flush(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM query_cache`)
	if err != nil {
		return 0, fmt.Errorf("flush query cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("flush query cache rows affected: %w", err)
	}
	return int(n), nil
}

// Stats counts live entries. hit_count starts at 1 on insert, so hits are
// the increments beyond that.
func (r *QueryCacheRepository) Stats(ctx context.Context) (domain.CacheStats, error) {
	stats := domain.CacheStats{Backend: "postgres"}
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(hit_count - 1), 0)
FROM query_cache
WHERE expires_at > $1
`, r.now()).Scan(&stats.Entries, &stats.Hits)
	if err != nil {
		return stats, fmt.Errorf("query cache stats: %w", err)
	}
	return stats, nil
}

// PurgeExpired deletes entries whose TTL has passed.
func (r *QueryCacheRepository) PurgeExpired(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM query_cache WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, fmt.Errorf("purge query cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge query cache rows affected: %w", err)
	}
	return int(n), nil
}
