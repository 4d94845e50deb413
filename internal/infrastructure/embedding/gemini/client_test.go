package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/infrastructure/resilience"
)

func newTestEmbedder(url, key string) *Embedder {
	return NewEmbedder(Config{BaseURL: url, APIKey: key, Dimensions: 1024}, resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    1,
		RetryInitialBackoff: time.Millisecond,
	}))
}

func TestEmbedQueryWithoutKeyReturnsMissingCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected without a key")
	}))
	defer server.Close()

	_, err := newTestEmbedder(server.URL, "").EmbedQuery(context.Background(), "grace")
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
}

func TestEmbedQueryUsesCallerKeyAndNormalizes(t *testing.T) {
	var gotKey, gotPath string
	var payload embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"embedding":{"values":[3,4]}}`))
	}))
	defer server.Close()

	ctx := domain.WithAPIKey(context.Background(), "caller-key")
	vector, err := newTestEmbedder(server.URL, "server-key").EmbedQuery(ctx, "grace")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if gotKey != "caller-key" {
		t.Fatalf("expected caller key, got %q", gotKey)
	}
	if gotPath != "/models/gemini-embedding-001:embedContent" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if payload.TaskType != "RETRIEVAL_QUERY" || payload.OutputDimensionality != 1024 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if math.Abs(float64(vector[0])-0.6) > 1e-6 || math.Abs(float64(vector[1])-0.8) > 1e-6 {
		t.Fatalf("expected unit vector, got %v", vector)
	}
}

func TestEmbedQueryRejectedKeyIsCredentialError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "API key not valid", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestEmbedder(server.URL, "bad").EmbedQuery(context.Background(), "grace")
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected credential error, got %v", err)
	}
}

func TestEmbedQueryServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestEmbedder(server.URL, "key").EmbedQuery(context.Background(), "grace")
	if !errors.Is(err, domain.ErrTemporary) || errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}
