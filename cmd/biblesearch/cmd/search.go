package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calebyhan/bible-rag/internal/bootstrap"
	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/core/ports"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	translations []string
	maxResults   int
	testament    string
	genre        string
	books        []string
	expansions   []string
	original     bool
	crossRefs    bool
	apiKey       string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search verses with the hybrid pipeline",
		Long: `Search verses across one or more translations.

Examples:
  biblesearch search "love your neighbor"
  biblesearch search "사랑" --translations KRV,NIV --max 5
  biblesearch search "shepherd" --testament OT --genre poetry`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := buildSearchRequest(strings.Join(args, " "), opts)
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				return runSearch(ctx, cmd.OutOrStdout(), app.Search, req)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&opts.translations, "translations", "t", []string{"NIV"}, "Translation abbreviations (comma separated)")
	cmd.Flags().IntVarP(&opts.maxResults, "max", "n", 10, "Maximum number of results")
	cmd.Flags().StringVar(&opts.testament, "testament", "", "Restrict to OT, NT or both")
	cmd.Flags().StringVar(&opts.genre, "genre", "", "Restrict to a book genre")
	cmd.Flags().StringSliceVar(&opts.books, "books", nil, "Restrict to book abbreviations")
	cmd.Flags().StringSliceVar(&opts.expansions, "expand", nil, "Extra query expansions (repeatable)")
	cmd.Flags().BoolVar(&opts.original, "original", false, "Include original language data")
	cmd.Flags().BoolVar(&opts.crossRefs, "cross-refs", true, "Include cross references")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "Caller embedding credential")

	return cmd
}

func buildSearchRequest(query string, opts searchOptions) domain.SearchRequest {
	return domain.SearchRequest{
		Query:        query,
		Translations: opts.translations,
		MaxResults:   opts.maxResults,
		Filters: domain.SearchFilters{
			Testament: strings.ToUpper(strings.TrimSpace(opts.testament)),
			Genre:     opts.genre,
			Books:     opts.books,
		},
		IncludeOriginal:  opts.original,
		IncludeCrossRefs: opts.crossRefs,
		ExpandedQueries:  opts.expansions,
		APIKey:           opts.apiKey,
	}
}

func runSearch(ctx context.Context, out io.Writer, search ports.SearchService, req domain.SearchRequest) error {
	if req.Filters.Testament == "BOTH" {
		req.Filters.Testament = domain.TestamentBoth
	}
	resp, err := search.Search(ctx, req)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}
