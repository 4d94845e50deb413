package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/core/ports"
)

const defaultHealthTimeout = 2 * time.Second

type HealthUseCase struct {
	catalog  ports.CatalogStore
	cache    ports.ResponseCache
	embedder ports.Embedder
	version  string
	timeout  time.Duration
	now      func() time.Time
}

// NewHealthUseCase checks the database and response cache. cache and
// embedder may be nil.
func NewHealthUseCase(catalog ports.CatalogStore, cache ports.ResponseCache, embedder ports.Embedder, version string) *HealthUseCase {
	return &HealthUseCase{
		catalog:  catalog,
		cache:    cache,
		embedder: embedder,
		version:  version,
		timeout:  defaultHealthTimeout,
		now:      time.Now,
	}
}

// Health is unhealthy when the database or an enabled cache is unreachable
// and degraded when only the statistics queries fail.
func (uc *HealthUseCase) Health(ctx context.Context) domain.HealthReport {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	report := domain.HealthReport{
		Timestamp: uc.now().UTC(),
		Version:   uc.version,
		Services:  map[string]string{},
		Stats:     map[string]int64{},
	}
	degraded := false

	if err := uc.catalog.Ping(ctx); err != nil {
		report.Services["database"] = domain.HealthUnhealthy
		slog.Error("health_database_failed", "error", err)
		report.Errors = append(report.Errors, "database: unreachable")
	} else {
		report.Services["database"] = domain.HealthHealthy
		stats, err := uc.catalog.CorpusStats(ctx)
		if err != nil {
			degraded = true
			slog.Warn("health_stats_failed", "error", err)
			report.Errors = append(report.Errors, "corpus stats: unavailable")
		} else {
			report.Stats["total_verses"] = stats.Verses
			report.Stats["total_translations"] = stats.Translations
			report.Stats["total_embeddings"] = stats.Embeddings
		}
	}

	if uc.cache == nil {
		report.Services["cache"] = "disabled"
	} else if stats, err := uc.cache.Stats(ctx); err != nil {
		report.Services["cache"] = domain.HealthUnhealthy
		slog.Error("health_cache_failed", "error", err)
		report.Errors = append(report.Errors, "cache: unreachable")
	} else {
		report.Services["cache"] = domain.HealthHealthy
		report.Stats["cache_keys"] = stats.Entries
		report.Stats["cache_hits"] = stats.Hits
	}

	if uc.embedder != nil {
		report.Services["embedding_model"] = uc.embedder.ModelName()
	} else {
		report.Services["embedding_model"] = "none"
	}

	switch {
	case report.Services["database"] == domain.HealthUnhealthy, report.Services["cache"] == domain.HealthUnhealthy:
		report.Status = domain.HealthUnhealthy
	case degraded:
		report.Status = domain.HealthDegraded
	default:
		report.Status = domain.HealthHealthy
	}
	return report
}
