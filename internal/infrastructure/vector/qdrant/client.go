package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/infrastructure/resilience"
)

// pointNamespace derives stable point ids from verse ids so re-syncing a
// verse overwrites its point.
var pointNamespace = uuid.MustParse("6f1c1c3e-3b0a-4f59-9a43-8f0b5b7c2d11")

type Config struct {
	BaseURL    string
	Collection string
	APIKey     string
	// HNSWEf overrides the search-time ef; zero keeps the collection default.
	HNSWEf  int
	Timeout time.Duration
}

// Client is a VectorIndex backed by a Qdrant collection with one point per
// verse row. Payload mirrors the verse and book columns used for filtering.
type Client struct {
	baseURL    string
	collection string
	apiKey     string
	hnswEf     int
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		collection: cfg.Collection,
		apiKey:     cfg.APIKey,
		hnswEf:     cfg.HNSWEf,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		executor:   executor,
	}
}

// UpsertPassages writes rows and their vectors, creating the collection on
// first use.
func (c *Client) UpsertPassages(ctx context.Context, rows []domain.PassageRow, vectors [][]float32) error {
	if len(rows) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(rows) != len(vectors) {
		return fmt.Errorf("rows/vectors mismatch")
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(rows))
	for i, row := range rows {
		points = append(points, point{
			ID:     uuid.NewSHA1(pointNamespace, []byte(row.VerseID)).String(),
			Vector: vectors[i],
			Payload: map[string]any{
				"verse_id":           row.VerseID,
				"translation_id":     row.TranslationID,
				"translation_abbrev": row.TranslationAbbrev,
				"book_id":            row.Ref.BookID,
				"chapter":            row.Ref.Chapter,
				"verse":              row.Ref.Verse,
				"text":               row.Text,
				"book_name":          row.Book.Name,
				"book_name_korean":   row.Book.NameKorean,
				"book_abbrev":        strings.ToUpper(row.Book.Abbrev),
				"testament":          row.Book.Testament,
				"genre":              strings.ToLower(row.Book.Genre),
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.executor.Execute(ctx, "qdrant.upsert", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPut, path, map[string]any{"points": points}, nil)
	}, resilience.ClassifyHTTP)
}

// VectorSearch returns at most limit passages with cosine similarity above
// threshold. When several translations of one verse match, the best scoring
// row represents it.
func (c *Client) VectorSearch(
	ctx context.Context,
	queryVector []float32,
	translationIDs []string,
	filters domain.SearchFilters,
	threshold float64,
	limit int,
) ([]domain.PassageRow, error) {
	if len(queryVector) == 0 || len(translationIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"vector":          queryVector,
		"limit":           limit * len(translationIDs),
		"with_payload":    true,
		"score_threshold": threshold,
		"filter":          buildFilter(translationIDs, filters),
	}
	if c.hnswEf > 0 {
		reqBody["params"] = map[string]any{"hnsw_ef": c.hnswEf}
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	err := c.executor.Execute(ctx, "qdrant.search", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, path, reqBody, &searchResp)
	}, resilience.ClassifyHTTP)
	if err != nil {
		return nil, err
	}

	out := make([]domain.PassageRow, 0, limit)
	seen := make(map[domain.PassageRef]struct{}, limit)
	for _, r := range searchResp.Result {
		// score_threshold is inclusive on Qdrant's side.
		if r.Score <= threshold {
			continue
		}
		row := rowFromPayload(r.Payload, r.Score)
		if _, dup := seen[row.Ref]; dup {
			continue
		}
		seen[row.Ref] = struct{}{}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// HasVectors reports whether the collection holds any points. An
// approximate count is enough for that.
func (c *Client) HasVectors(ctx context.Context) (bool, error) {
	var countResp struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", c.collection)
	err := c.executor.Execute(ctx, "qdrant.count", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, path, map[string]any{"exact": false}, &countResp)
	}, resilience.ClassifyHTTP)
	if err != nil {
		return false, err
	}
	return countResp.Result.Count > 0, nil
}

func buildFilter(translationIDs []string, filters domain.SearchFilters) map[string]any {
	must := []map[string]any{
		{"key": "translation_id", "match": map[string]any{"any": translationIDs}},
	}
	switch filters.Testament {
	case domain.TestamentOld, domain.TestamentNew:
		must = append(must, map[string]any{"key": "testament", "match": map[string]any{"value": filters.Testament}})
	}
	if genre := strings.TrimSpace(filters.Genre); genre != "" {
		must = append(must, map[string]any{"key": "genre", "match": map[string]any{"value": strings.ToLower(genre)}})
	}
	books := make([]string, 0, len(filters.Books))
	for _, book := range filters.Books {
		if book = strings.TrimSpace(book); book != "" {
			books = append(books, strings.ToUpper(book))
		}
	}
	if len(books) > 0 {
		must = append(must, map[string]any{"key": "book_abbrev", "match": map[string]any{"any": books}})
	}
	return map[string]any{"must": must}
}

func rowFromPayload(payload map[string]any, score float64) domain.PassageRow {
	bookID := getStringPayload(payload, "book_id")
	return domain.PassageRow{
		VerseID:           getStringPayload(payload, "verse_id"),
		TranslationID:     getStringPayload(payload, "translation_id"),
		TranslationAbbrev: getStringPayload(payload, "translation_abbrev"),
		Ref: domain.PassageRef{
			BookID:  bookID,
			Chapter: getIntPayload(payload, "chapter"),
			Verse:   getIntPayload(payload, "verse"),
		},
		Book: domain.Book{
			ID:         bookID,
			Name:       getStringPayload(payload, "book_name"),
			NameKorean: getStringPayload(payload, "book_name_korean"),
			Abbrev:     getStringPayload(payload, "book_abbrev"),
			Testament:  getStringPayload(payload, "testament"),
			Genre:      getStringPayload(payload, "genre"),
		},
		Text:  getStringPayload(payload, "text"),
		Score: score,
	}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.do(ctx, http.MethodPut, "/collections/"+c.collection, reqBody, nil)
	if err != nil {
		// 409 when the collection already exists.
		var statusErr *resilience.HTTPStatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusConflict {
			return fmt.Errorf("qdrant ensure collection: %w", err)
		}
	}
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody any, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal qdrant body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &resilience.HTTPStatusError{Service: "qdrant", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// getIntPayload handles JSON numbers decoded as float64.
func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
