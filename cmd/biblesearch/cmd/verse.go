package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/calebyhan/bible-rag/internal/bootstrap"
	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/core/ports"
)

type verseOptions struct {
	translations []string
	original     bool
	crossRefs    bool
}

func newVerseCmd() *cobra.Command {
	var opts verseOptions

	cmd := &cobra.Command{
		Use:   "verse <book> <chapter> [verse]",
		Short: "Read a verse or a whole chapter by reference",
		Long: `Read a verse, or a whole chapter when the verse is omitted.

Examples:
  biblesearch verse John 3 16 --translations NIV,KRV
  biblesearch verse 요한복음 3 16 --original
  biblesearch verse "1 Corinthians" 13`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				return runVerse(ctx, cmd.OutOrStdout(), app.Lookup, args, opts)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&opts.translations, "translations", "t", nil, "Translation abbreviations (default all)")
	cmd.Flags().BoolVar(&opts.original, "original", false, "Include original language data")
	cmd.Flags().BoolVar(&opts.crossRefs, "cross-refs", true, "Include cross references (single verse only)")
	return cmd
}

func runVerse(ctx context.Context, out io.Writer, lookup ports.LookupService, args []string, opts verseOptions) error {
	chapter, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: chapter %q is not a number", domain.ErrInvalidInput, args[1])
	}

	var result any
	if len(args) == 2 {
		result, err = lookup.GetChapter(ctx, domain.ChapterLookup{
			Book:            args[0],
			Chapter:         chapter,
			Translations:    opts.translations,
			IncludeOriginal: opts.original,
		})
	} else {
		verse, convErr := strconv.Atoi(args[2])
		if convErr != nil {
			return fmt.Errorf("%w: verse %q is not a number", domain.ErrInvalidInput, args[2])
		}
		result, err = lookup.GetVerse(ctx, domain.VerseLookup{
			Book:             args[0],
			Chapter:          chapter,
			Verse:            verse,
			Translations:     opts.translations,
			IncludeOriginal:  opts.original,
			IncludeCrossRefs: opts.crossRefs,
		})
	}
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(result)
}
