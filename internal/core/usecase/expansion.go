package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

const providerExpansion = "expansion"

// normalizeExpansions trims, drops blanks and duplicates of the query, and
// caps the list when max > 0.
func normalizeExpansions(query string, expansions []string, max int) []string {
	base := strings.ToLower(strings.TrimSpace(query))
	seen := map[string]struct{}{base: {}}
	out := make([]string, 0, len(expansions))
	for _, exp := range expansions {
		exp = strings.TrimSpace(exp)
		key := strings.ToLower(exp)
		if exp == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, exp)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func (uc *SearchUseCase) resolveExpansions(ctx context.Context, req domain.SearchRequest) []string {
	if len(req.ExpandedQueries) > 0 {
		return normalizeExpansions(req.Query, req.ExpandedQueries, uc.tuning.MaxExpansions)
	}
	if !uc.tuning.AutoExpand || uc.expander == nil {
		return nil
	}
	if !uc.acquire(providerExpansion) {
		return nil
	}

	expandCtx, cancel := context.WithTimeout(ctx, uc.tuning.ExpandTimeout)
	defer cancel()
	generated, err := uc.expander.Expand(expandCtx, req.Query, uc.tuning.MaxExpansions)
	if err != nil {
		slog.Warn("query_expansion_failed", "error", err)
		return nil
	}
	return normalizeExpansions(req.Query, generated, uc.tuning.MaxExpansions)
}
