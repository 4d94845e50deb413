package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/calebyhan/bible-rag/internal/bootstrap"
	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/infrastructure/repository/postgres"
	"github.com/calebyhan/bible-rag/internal/infrastructure/resilience"
	"github.com/calebyhan/bible-rag/internal/infrastructure/vector/qdrant"
)

type embeddingSource interface {
	EmbeddingBatch(ctx context.Context, afterVerseID string, limit int) ([]postgres.EmbeddedPassage, error)
}

type passageSink interface {
	UpsertPassages(ctx context.Context, rows []domain.PassageRow, vectors [][]float32) error
}

type indexPublisher interface {
	PublishIndexUpdated(ctx context.Context, source string) error
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index maintenance and change notification",
	}
	cmd.AddCommand(newIndexPublishCmd())
	cmd.AddCommand(newIndexSyncQdrantCmd())
	return cmd
}

func newIndexPublishCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Announce that the verse index changed",
		Long: `Publish an index-updated event so running API replicas and the worker
drop cached responses. Requires NATS_URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				if app.Events == nil {
					return errors.New("NATS_URL is not configured")
				}
				if err := app.Events.PublishIndexUpdated(ctx, source); err != nil {
					return fmt.Errorf("publish index event: %w", err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "index update published")
				return err
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "Event source label")
	return cmd
}

func newIndexSyncQdrantCmd() *cobra.Command {
	var batch int
	var notify bool
	cmd := &cobra.Command{
		Use:   "sync-qdrant",
		Short: "Copy stored embeddings from PostgreSQL into Qdrant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				sink := app.Qdrant
				if sink == nil {
					cfg := app.Config
					sink = qdrant.New(qdrant.Config{
						BaseURL:    cfg.QdrantURL,
						Collection: cfg.QdrantCollection,
						APIKey:     cfg.QdrantAPIKey,
						HNSWEf:     cfg.QdrantHNSWEf,
						Timeout:    cfg.TimeoutVector,
					}, resilience.NewExecutor(resilience.DefaultConfig()))
				}
				var pub indexPublisher
				if notify && app.Events != nil {
					pub = app.Events
				}
				return runSyncQdrant(ctx, cmd.OutOrStdout(), app.Passages, sink, pub, batch)
			})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 500, "Verses per upsert batch")
	cmd.Flags().BoolVar(&notify, "notify", true, "Publish an index-updated event when done (needs NATS_URL)")
	return cmd
}

func runSyncQdrant(ctx context.Context, out io.Writer, src embeddingSource, sink passageSink, pub indexPublisher, batch int) error {
	if batch <= 0 {
		return fmt.Errorf("%w: batch must be positive", domain.ErrInvalidInput)
	}
	cursor := ""
	total := 0
	for {
		page, err := src.EmbeddingBatch(ctx, cursor, batch)
		if err != nil {
			return fmt.Errorf("read embeddings after %q: %w", cursor, err)
		}
		if len(page) == 0 {
			break
		}
		rows := make([]domain.PassageRow, len(page))
		vectors := make([][]float32, len(page))
		for i, p := range page {
			rows[i] = p.Row
			vectors[i] = p.Vector
		}
		if err := sink.UpsertPassages(ctx, rows, vectors); err != nil {
			return fmt.Errorf("upsert batch after %q: %w", cursor, err)
		}
		total += len(page)
		cursor = page[len(page)-1].Row.VerseID
		slog.Info("qdrant_sync_batch", "verses", len(page), "total", total, "cursor", cursor)
		if len(page) < batch {
			break
		}
	}

	if pub != nil && total > 0 {
		if err := pub.PublishIndexUpdated(ctx, "qdrant-sync"); err != nil {
			return fmt.Errorf("publish index event: %w", err)
		}
	}
	_, err := fmt.Fprintf(out, "synced %d verses\n", total)
	return err
}
