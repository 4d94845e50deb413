// Package rerank provides query-passage relevance scorers.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/infrastructure/resilience"
)

// CrossEncoder calls a text-embeddings-inference style /rerank endpoint
// serving a cross-encoder model.
type CrossEncoder struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewCrossEncoder(baseURL, model string, timeout time.Duration, executor *resilience.Executor) *CrossEncoder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &CrossEncoder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns one score per text in input order.
func (c *CrossEncoder) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}
	body, err := json.Marshal(rerankRequest{Model: c.model, Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	hits, err := resilience.Do(ctx, c.executor, "rerank", func(ctx context.Context) ([]rerankHit, error) {
		return c.post(ctx, body)
	}, resilience.ClassifyHTTP)
	if err != nil {
		if resilience.ClassifyHTTP(err).Retryable || resilience.IsCircuitOpen(err) {
			return nil, domain.WrapError(domain.ErrTemporary, "rerank", err)
		}
		return nil, err
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, hit := range hits {
		if hit.Index < 0 || hit.Index >= len(texts) {
			return nil, fmt.Errorf("rerank: index %d out of range", hit.Index)
		}
		scores[hit.Index] = hit.Score
		seen[hit.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank: missing score for text %d", i)
		}
	}
	return scores, nil
}

func (c *CrossEncoder) post(ctx context.Context, body []byte) ([]rerankHit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.HTTPStatusError{Service: "rerank", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	var hits []rerankHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return hits, nil
}
