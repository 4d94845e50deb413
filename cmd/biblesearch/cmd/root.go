// Package cmd provides the CLI commands for biblesearch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/calebyhan/bible-rag/internal/bootstrap"
	"github.com/calebyhan/bible-rag/internal/config"
	"github.com/calebyhan/bible-rag/internal/observability/logging"
)

var logLevel string

// NewRootCmd creates the root command for the biblesearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "biblesearch",
		Short: "Hybrid verse search and index maintenance",
		Long: `biblesearch runs the verse retrieval pipeline from the command line.

It reads the same configuration as the API server (environment variables,
optionally layered over the YAML file named by BIBLE_RAG_CONFIG).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := logLevel
			if level == "" {
				level = os.Getenv("LOG_LEVEL")
			}
			// stdout is reserved for command output.
			slog.SetDefault(logging.NewJSONLoggerTo(cmd.ErrOrStderr(), "biblesearch", level))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL)")

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newVerseCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newIndexCmd())
	return cmd
}

// Execute runs the root command with a signal-aware context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// withApp loads configuration, wires the application and hands it to fn.
func withApp(ctx context.Context, fn func(context.Context, *bootstrap.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()
	return fn(ctx, app)
}
