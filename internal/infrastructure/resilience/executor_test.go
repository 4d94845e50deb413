package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastConfig(breaker bool) Config {
	return Config{
		RetryMaxAttempts:        3,
		RetryInitialBackoff:     time.Millisecond,
		RetryMaxBackoff:         2 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          breaker,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}
}

func TestExecuteRetriesRetryableFailure(t *testing.T) {
	exec := NewExecutor(fastConfig(false))

	attempts := 0
	err := exec.Execute(context.Background(), "embed", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &HTTPStatusError{Service: "ollama", StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	}, ClassifyHTTP)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryClientError(t *testing.T) {
	exec := NewExecutor(fastConfig(false))

	attempts := 0
	err := exec.Execute(context.Background(), "embed", func(context.Context) error {
		attempts++
		return &HTTPStatusError{Service: "gemini", StatusCode: http.StatusBadRequest}
	}, ClassifyHTTP)
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected status error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	cfg := fastConfig(true)
	cfg.RetryMaxAttempts = 1
	exec := NewExecutor(cfg)

	errDown := errors.New("reranker down")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "rerank", func(context.Context) error {
			return errDown
		}, nil)
		if !errors.Is(err, errDown) {
			t.Fatalf("expected failure on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "rerank", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}

	if err := exec.Execute(context.Background(), "embed", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("breakers must be per operation, got %v", err)
	}
}

func TestExecuteCanceledContextDoesNotTripBreaker(t *testing.T) {
	cfg := fastConfig(true)
	cfg.RetryMaxAttempts = 1
	exec := NewExecutor(cfg)

	for i := 0; i < 4; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		_ = exec.Execute(ctx, "vector", func(context.Context) error {
			cancel()
			return context.Canceled
		}, ClassifyHTTP)
	}

	called := false
	err := exec.Execute(context.Background(), "vector", func(context.Context) error {
		called = true
		return nil
	}, ClassifyHTTP)
	if err != nil || !called {
		t.Fatalf("expected closed circuit, got err=%v called=%v", err, called)
	}
}

func TestDoReturnsValue(t *testing.T) {
	exec := NewExecutor(fastConfig(false))
	got, err := Do(context.Background(), exec, "count", func(context.Context) (int64, error) {
		return 42, nil
	}, nil)
	if err != nil || got != 42 {
		t.Fatalf("unexpected result %d, %v", got, err)
	}
}

func TestClassifyHTTP(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		retry  bool
		record bool
	}{
		{name: "429", err: &HTTPStatusError{StatusCode: http.StatusTooManyRequests}, retry: true, record: true},
		{name: "502", err: &HTTPStatusError{StatusCode: http.StatusBadGateway}, retry: true, record: true},
		{name: "404", err: &HTTPStatusError{StatusCode: http.StatusNotFound}, retry: false, record: false},
		{name: "other", err: errors.New("decode failure"), retry: false, record: true},
	}
	for _, tc := range cases {
		got := ClassifyHTTP(tc.err)
		if got.Retryable != tc.retry || got.RecordFailure != tc.record {
			t.Fatalf("%s: unexpected classification %+v", tc.name, got)
		}
	}
}
