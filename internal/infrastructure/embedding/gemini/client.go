// Package gemini embeds queries with the hosted Gemini embedding API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/infrastructure/resilience"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Config struct {
	BaseURL    string
	Model      string
	APIKey     string
	Dimensions int
	Timeout    time.Duration
}

type Embedder struct {
	baseURL    string
	model      string
	apiKey     string
	dimensions int
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewEmbedder(cfg Config, executor *resilience.Executor) *Embedder {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimPrefix(cfg.Model, "models/")
	if model == "" {
		model = "gemini-embedding-001"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Embedder{
		baseURL:    baseURL,
		model:      model,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

func (e *Embedder) ModelName() string {
	return e.model
}

type embedRequest struct {
	Model                string  `json:"model"`
	Content              content `json:"content"`
	TaskType             string  `json:"taskType"`
	OutputDimensionality int     `json:"outputDimensionality,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// EmbedQuery prefers a caller-supplied key from ctx over the configured one.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := domain.APIKeyFromContext(ctx)
	if key == "" {
		key = e.apiKey
	}
	if key == "" {
		return nil, domain.WrapError(domain.ErrMissingCredential, "gemini embed", errors.New("no API key configured or supplied"))
	}

	body, err := json.Marshal(embedRequest{
		Model:                "models/" + e.model,
		Content:              content{Parts: []part{{Text: text}}},
		TaskType:             "RETRIEVAL_QUERY",
		OutputDimensionality: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal gemini embed request: %w", err)
	}

	vector, err := resilience.Do(ctx, e.executor, "gemini.embed", func(ctx context.Context) ([]float32, error) {
		return e.post(ctx, key, body)
	}, classifyGeminiError)
	if err != nil {
		if classifyGeminiError(err).Retryable || resilience.IsCircuitOpen(err) {
			return nil, domain.WrapError(domain.ErrTemporary, "gemini embed", err)
		}
		return nil, err
	}
	return normalize(vector), nil
}

func (e *Embedder) post(ctx context.Context, key string, body []byte) ([]float32, error) {
	url := fmt.Sprintf("%s/models/%s:embedContent", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create gemini embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, domain.WrapError(domain.ErrMissingCredential, "gemini embed", fmt.Errorf("key rejected: %s", strings.TrimSpace(string(msg))))
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.HTTPStatusError{Service: "gemini embed", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode gemini embed response: %w", err)
	}
	if len(out.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding result")
	}
	return out.Embedding.Values, nil
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	if errors.Is(err, domain.ErrMissingCredential) {
		return resilience.ErrorClassification{}
	}
	return resilience.ClassifyHTTP(err)
}

// normalize scales to unit length; truncated Gemini outputs are not normalized
// by the API and the index stores unit vectors.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
