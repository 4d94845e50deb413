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

	httpadapter "github.com/calebyhan/bible-rag/internal/adapters/http"
	"github.com/calebyhan/bible-rag/internal/bootstrap"
	"github.com/calebyhan/bible-rag/internal/config"
	"github.com/calebyhan/bible-rag/internal/observability/logging"
	"github.com/calebyhan/bible-rag/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// A process-local cache must hear every index update; the shared
	// postgres cache is flushed by the worker instead.
	if app.Events != nil && cfg.CacheBackend == "memory" {
		go func() {
			if err := app.Events.Broadcast().SubscribeIndexUpdated(ctx, app.Search.HandleIndexUpdated); err != nil {
				slog.Error("index_events_subscribe_failed", "error", err)
			}
		}()
	}

	m := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(cfg, app.Search, app.Lookup, app.Search, app.Health, m).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
