package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calebyhan/bible-rag/internal/bootstrap"
	"github.com/calebyhan/bible-rag/internal/config"
	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/observability/logging"
	"github.com/calebyhan/bible-rag/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	m := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if app.QueryCache != nil {
		go purgeLoop(ctx, app, m)
	}

	if app.Events == nil {
		slog.Warn("worker_without_index_events", "reason", "NATS_URL is empty")
		<-ctx.Done()
		return
	}

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Events.SubscribeIndexUpdated(ctx, func(handlerCtx context.Context, event domain.IndexUpdatedEvent) error {
		if at, err := time.Parse(time.RFC3339, event.OccurredAt); err == nil {
			m.ObserveEventLag(service, time.Since(at))
		}
		start := time.Now()
		flushCtx, cancel := context.WithTimeout(handlerCtx, time.Minute)
		defer cancel()
		n, err := app.Search.FlushCache(flushCtx)
		m.FinishInvalidation(service, time.Since(start), n, err)
		if err != nil {
			return err
		}
		slog.Info("cache_invalidated", "event_id", event.ID, "source", event.Source, "entries", n)
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func purgeLoop(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics) {
	ticker := time.NewTicker(app.Config.CachePurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.QueryCache.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("cache_purge_failed", "error", err)
				continue
			}
			m.AddPurged(int64(n))
			if n > 0 {
				slog.Info("cache_purged", "rows", n)
			}
		}
	}
}
