package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

// embed leaves the embedding budget to the embedder chain, which charges
// only calls that reach the provider.
func (uc *SearchUseCase) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.tuning.EmbedTimeout)
	defer cancel()

	vector, err := uc.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("embed query: empty vector")
	}
	return vector, nil
}

// vectorSignal returns the best row per passage above the similarity threshold.
func (uc *SearchUseCase) vectorSignal(ctx context.Context, signal string, vector []float32, translationIDs []string, filters domain.SearchFilters, limit int) (domain.RankedList, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.tuning.VectorTimeout)
	defer cancel()

	rows, err := uc.vectors.VectorSearch(ctx, vector, translationIDs, filters, uc.tuning.SimilarityThreshold, limit)
	if err != nil {
		return domain.RankedList{}, fmt.Errorf("vector search: %w", err)
	}

	kept := rows[:0:0]
	for _, row := range rows {
		if row.Score > uc.tuning.SimilarityThreshold {
			kept = append(kept, row)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	return rankRows(signal, kept), nil
}
