package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/calebyhan/bible-rag/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL     string
	EmbedModel  string
	ExpandModel string
	// QueryPrefix is prepended to queries for e5-style models.
	QueryPrefix string
	Timeout     time.Duration
}

type Client struct {
	baseURL     string
	embedModel  string
	expandModel string
	queryPrefix string
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		embedModel:  cfg.EmbedModel,
		expandModel: cfg.ExpandModel,
		queryPrefix: cfg.QueryPrefix,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) ModelName() string {
	return e.client.embedModel
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{e.client.queryPrefix + text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding result")
	}
	return response.Embeddings[0], nil
}

// Expander asks a local generation model for alternative phrasings.
type Expander struct {
	client *Client
}

func NewExpander(client *Client) *Expander {
	return &Expander{client: client}
}

func (x *Expander) Expand(ctx context.Context, query string, max int) ([]string, error) {
	if max <= 0 {
		return nil, nil
	}
	raw, err := x.client.generateJSON(ctx, buildExpansionPrompt(query, max))
	if err != nil {
		return nil, err
	}

	var result struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &result); err != nil {
		return nil, fmt.Errorf("parse expansion json: %w", err)
	}

	out := make([]string, 0, len(result.Queries))
	for _, q := range result.Queries {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
		if len(out) == max {
			break
		}
	}
	return out, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.expandModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
