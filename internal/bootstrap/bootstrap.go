package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/calebyhan/bible-rag/internal/config"
	"github.com/calebyhan/bible-rag/internal/core/ports"
	"github.com/calebyhan/bible-rag/internal/core/usecase"
	"github.com/calebyhan/bible-rag/internal/infrastructure/cache/memory"
	"github.com/calebyhan/bible-rag/internal/infrastructure/embedding/gemini"
	"github.com/calebyhan/bible-rag/internal/infrastructure/graph/neo4j"
	"github.com/calebyhan/bible-rag/internal/infrastructure/llm/ollama"
	"github.com/calebyhan/bible-rag/internal/infrastructure/queue/nats"
	"github.com/calebyhan/bible-rag/internal/infrastructure/ratelimit"
	"github.com/calebyhan/bible-rag/internal/infrastructure/repository/postgres"
	"github.com/calebyhan/bible-rag/internal/infrastructure/rerank"
	"github.com/calebyhan/bible-rag/internal/infrastructure/resilience"
	"github.com/calebyhan/bible-rag/internal/infrastructure/vector/qdrant"
)

// Version is reported by the health endpoint; release builds set it with
// -ldflags "-X github.com/calebyhan/bible-rag/internal/bootstrap.Version=...".
var Version = "dev"

type App struct {
	Config config.Config

	Search   *usecase.SearchUseCase
	Lookup   *usecase.LookupUseCase
	Health   *usecase.HealthUseCase
	Passages *postgres.PassageRepository
	// Events is nil when NATS_URL is empty.
	Events *nats.Queue
	// QueryCache is set only for CACHE_BACKEND=postgres.
	QueryCache *postgres.QueryCacheRepository
	// Qdrant is set only for VECTOR_BACKEND=qdrant.
	Qdrant  *qdrant.Client
	Limiter *ratelimit.Limiter

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN, postgres.PoolConfig{
		MaxOpenConns:    cfg.PostgresMaxOpen,
		MaxIdleConns:    cfg.PostgresMaxIdle,
		ConnMaxLifetime: cfg.PostgresConnMaxLife,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })

	app.Passages = postgres.NewPassageRepository(db, postgres.PassageOptions{
		Probes:           cfg.VectorProbes,
		TextSearchConfig: cfg.TextSearchConfig,
	})
	app.Limiter = ratelimit.New(cfg.RateBudgets())
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	ollamaClient := ollama.New(ollama.Config{
		BaseURL:     cfg.OllamaURL,
		EmbedModel:  cfg.OllamaEmbedModel,
		ExpandModel: cfg.OllamaExpandModel,
		QueryPrefix: cfg.EmbedQueryPrefix,
		Timeout:     max(cfg.TimeoutEmbed, cfg.TimeoutExpand),
	}, executor)

	embedder := newEmbedder(cfg, ollamaClient, app.Limiter, executor)

	vectors, err := app.newVectorIndex(cfg, executor)
	if err != nil {
		return nil, err
	}

	crossRefs, err := app.newCrossRefSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cache, err := app.newResponseCache(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	var expander ports.QueryExpander
	if cfg.SearchAutoExpand {
		expander = ollama.NewExpander(ollamaClient)
	}

	app.Search = usecase.NewSearchUseCase(
		app.Passages,
		vectors,
		crossRefs,
		embedder,
		newReranker(cfg, executor),
		expander,
		cache,
		app.Limiter,
		cfg.Tuning(),
	)
	app.Lookup = usecase.NewLookupUseCase(app.Passages, app.Passages, crossRefs, cfg.Tuning())
	app.Health = usecase.NewHealthUseCase(app.Passages, cache, embedder, Version)

	if cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init index events: %w", err)
		}
		app.Events = queue
		app.onClose(queue.Close)
	}

	slog.Info("search_pipeline_ready",
		"vector_backend", cfg.VectorBackend,
		"embed_provider", cfg.EmbedProvider,
		"rerank_provider", cfg.RerankProvider,
		"cache_backend", cfg.CacheBackend,
		"crossref_backend", cfg.CrossRefBackend,
		"index_events", app.Events != nil,
	)
	ok = true
	return app, nil
}

// newEmbedder stacks cache over budget over provider, so cached vectors
// never spend the embedding budget.
func newEmbedder(cfg config.Config, ollamaClient *ollama.Client, limiter *ratelimit.Limiter, executor *resilience.Executor) ports.Embedder {
	var embedder ports.Embedder
	switch cfg.EmbedProvider {
	case "gemini":
		embedder = gemini.NewEmbedder(gemini.Config{
			BaseURL:    cfg.GeminiURL,
			Model:      cfg.GeminiModel,
			APIKey:     cfg.GeminiAPIKey,
			Dimensions: cfg.EmbedDimensions,
			Timeout:    cfg.TimeoutEmbed,
		}, executor)
	default:
		embedder = ollama.NewEmbedder(ollamaClient)
	}
	embedder = ratelimit.NewEmbedder(embedder, limiter)
	if cfg.EmbedCacheSize > 0 {
		embedder = memory.NewCachedEmbedder(embedder, cfg.EmbedCacheSize, cfg.EmbedCacheTTL)
	}
	return embedder
}

func (a *App) newVectorIndex(cfg config.Config, executor *resilience.Executor) (ports.VectorIndex, error) {
	switch cfg.VectorBackend {
	case "qdrant":
		a.Qdrant = qdrant.New(qdrant.Config{
			BaseURL:    cfg.QdrantURL,
			Collection: cfg.QdrantCollection,
			APIKey:     cfg.QdrantAPIKey,
			HNSWEf:     cfg.QdrantHNSWEf,
			Timeout:    cfg.TimeoutVector,
		}, executor)
		return a.Qdrant, nil
	case "postgres":
		return a.Passages, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func (a *App) newCrossRefSource(ctx context.Context, cfg config.Config) (ports.CrossReferenceSource, error) {
	if cfg.CrossRefBackend != "neo4j" {
		return a.Passages, nil
	}
	store, err := neo4j.New(ctx, neo4j.Config{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	})
	if err != nil {
		return nil, fmt.Errorf("init neo4j cross references: %w", err)
	}
	a.onClose(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	})
	return store, nil
}

func (a *App) newResponseCache(ctx context.Context, cfg config.Config, db *sql.DB) (ports.ResponseCache, error) {
	switch cfg.CacheBackend {
	case "postgres":
		repo := postgres.NewQueryCacheRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure query cache schema: %w", err)
		}
		a.QueryCache = repo
		return repo, nil
	case "memory":
		cache, err := memory.NewResponseCache(cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("init response cache: %w", err)
		}
		return cache, nil
	default:
		return nil, nil
	}
}

func newReranker(cfg config.Config, executor *resilience.Executor) ports.Reranker {
	switch cfg.RerankProvider {
	case "http":
		return rerank.NewCrossEncoder(cfg.RerankURL, cfg.RerankModel, cfg.TimeoutRerank, executor)
	case "lexical":
		return rerank.NewLexical()
	default:
		return nil
	}
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
