package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

const providerReranker = "reranker"

// rerankFused rescores the head of the fused ranking and returns the final
// ordering truncated to limit. On any failure it returns the fused order
// truncated to limit along with the error.
func (uc *SearchUseCase) rerankFused(ctx context.Context, query string, fused []domain.FusedPassage, limit int) ([]domain.FusedPassage, error) {
	topN := uc.tuning.RerankTopN
	if topN > len(fused) {
		topN = len(fused)
	}
	head := make([]domain.FusedPassage, topN)
	copy(head, fused[:topN])

	if !uc.acquire(providerReranker) {
		return trimFused(fused, limit), domain.WrapError(domain.ErrRateLimited, "rerank", fmt.Errorf("provider %s budget exhausted", providerReranker))
	}

	texts := make([]string, len(head))
	for i, p := range head {
		texts[i] = p.Row.Text
	}

	rerankCtx, cancel := context.WithTimeout(ctx, uc.tuning.RerankTimeout)
	defer cancel()
	scores, err := uc.reranker.Score(rerankCtx, query, texts)
	if err != nil {
		return trimFused(fused, limit), fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(head) {
		return trimFused(fused, limit), fmt.Errorf("rerank: got %d scores for %d passages", len(scores), len(head))
	}

	for i := range head {
		head[i].Score = scores[i]
	}
	sort.SliceStable(head, func(i, j int) bool {
		return head[i].Score > head[j].Score
	})

	out := make([]domain.FusedPassage, 0, len(fused))
	out = append(out, head...)
	out = append(out, fused[topN:]...)
	return trimFused(out, limit), nil
}
