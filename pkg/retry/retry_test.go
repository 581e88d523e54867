package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}
}

type declaredError struct {
	msg       string
	retryable bool
}

func (e *declaredError) Error() string     { return e.msg }
func (e *declaredError) IsRetryable() bool { return e.retryable }

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 2

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("still down")
	})
	if err == nil || err.Error() != "still down" {
		t.Errorf("expected last error returned, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected initial attempt plus 2 retries, got %d", attempts)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		return errors.New("failing")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), fastConfig(), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("timeout")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limited", errors.New("HTTP 429: too many requests"), true},
		{"grpc unavailable", errors.New("rpc error: code = Unavailable"), true},
		{"bad sql", errors.New("pq: syntax error at or near SELECT"), false},
		{"auth failure", errors.New("password authentication failed"), false},
		{"declared retryable", &declaredError{msg: "custom", retryable: true}, true},
		{"declared permanent", &declaredError{msg: "HTTP 503", retryable: false}, false},
		{"wrapped declaration", fmt.Errorf("embed: %w", &declaredError{msg: "x", retryable: true}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDoIfRetryable_PermanentErrorFailsFast(t *testing.T) {
	attempts := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		attempts++
		return errors.New("password authentication failed")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("permanent failure must not be retried, got %d attempts", attempts)
	}
}

func TestDoIfRetryable_RetriesTransient(t *testing.T) {
	attempts := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoIfRetryable_RepeatedSameErrorEscalates(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 10
	cfg.MaxSameErrorType = 3

	attempts := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		attempts++
		return errors.New("HTTP 503: service unavailable")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "giving up") {
		t.Errorf("expected escalation message, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected escalation after 3 attempts, got %d", attempts)
	}
}

func TestDoWithResultIfRetryable_RecoversValue(t *testing.T) {
	attempts := 0
	got, err := DoWithResultIfRetryable(context.Background(), fastConfig(), func() ([]float32, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("i/o timeout")
		}
		return []float32{1, 2, 3}, nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected recovered value, got %v", got)
	}
}

func TestDoWithResultIfRetryable_DeclaredPermanentFailsFast(t *testing.T) {
	attempts := 0
	_, err := DoWithResultIfRetryable(context.Background(), fastConfig(), func() ([]float32, error) {
		attempts++
		// Declared retryability wins over the 503 in the message.
		return nil, &declaredError{msg: "HTTP 503", retryable: false}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("declared-permanent failure must not be retried, got %d attempts", attempts)
	}
}

func TestClassifyErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "nil"},
		{errors.New("HTTP 503: unavailable"), "503"},
		{errors.New("dial tcp: connection refused"), "connection"},
		{errors.New("context deadline exceeded: timeout"), "timeout"},
		{errors.New("rate limit exceeded"), "rate_limit"},
		{errors.New("rpc error: code = Unavailable"), "unavailable"},
		{errors.New("something else"), "unknown"},
	}

	for _, tt := range tests {
		if got := classifyErrorType(tt.err); got != tt.want {
			t.Errorf("classifyErrorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
