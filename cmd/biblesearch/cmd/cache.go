package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/calebyhan/bible-rag/internal/bootstrap"
	"github.com/calebyhan/bible-rag/internal/core/ports"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Response cache maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Drop every cached search response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				return runCacheFlush(ctx, cmd.OutOrStdout(), app.Search)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cached entry and hit counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				return runCacheStats(ctx, cmd.OutOrStdout(), app.Search)
			})
		},
	})
	return cmd
}

func runCacheFlush(ctx context.Context, out io.Writer, admin ports.CacheAdmin) error {
	removed, err := admin.FlushCache(ctx)
	if err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	_, err = fmt.Fprintf(out, "flushed %d cached responses\n", removed)
	return err
}

func runCacheStats(ctx context.Context, out io.Writer, admin ports.CacheAdmin) error {
	stats, err := admin.CacheStats(ctx)
	if err != nil {
		return fmt.Errorf("cache stats: %w", err)
	}
	_, err = fmt.Fprintf(out, "backend=%s entries=%d hits=%d\n", stats.Backend, stats.Entries, stats.Hits)
	return err
}
