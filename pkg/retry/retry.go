// Package retry implements exponential-backoff retry for calls that cross a
// network boundary: the engine database, the vector store, and LLM endpoints.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines the backoff schedule.
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, +/- fraction of the delay
	MaxSameErrorType int     // consecutive same-type failures before giving up early
}

// DefaultConfig returns the schedule used for database and embedding calls:
// 3 retries starting at 100ms, doubling, capped at 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// backoff tracks the delay progression across attempts.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

func newBackoff(cfg *Config) *backoff {
	return &backoff{cfg: cfg, delay: cfg.InitialDelay}
}

// wait sleeps for the current delay with jitter applied, then advances the
// schedule. Returns the context error if ctx ends first.
func (b *backoff) wait(ctx context.Context) error {
	d := b.delay
	if b.cfg.JitterFactor > 0 {
		jitter := float64(d) * b.cfg.JitterFactor * (rand.Float64()*2 - 1)
		d = time.Duration(float64(d) + jitter)
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
		return ctx.Err()
	}

	b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
	if b.delay > b.cfg.MaxDelay {
		b.delay = b.cfg.MaxDelay
	}
	return nil
}

// Do retries fn until it succeeds or the budget is spent. Use it where any
// failure is plausibly transient, like pinging a database that is still
// starting up.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that return a value, like pgxpool.New.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	b := newBackoff(cfg)

	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result = r
		lastErr = err

		if attempt < cfg.MaxRetries {
			if werr := b.wait(ctx); werr != nil {
				return result, werr
			}
		}
	}

	return result, lastErr
}

// RetryableError is implemented by errors that declare their own
// retryability, like llm.Error. IsRetryable consults it before falling back
// to pattern matching.
type RetryableError interface {
	error
	IsRetryable() bool
}

// retryablePatterns match transient failures from Postgres, Qdrant's gRPC
// transport, and HTTP LLM endpoints. Anything else is treated as permanent.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"i/o timeout",
	"network is unreachable",
	"conn busy",
	"unavailable",
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"too many requests",
	"service busy",
	"overloaded",
}

// IsRetryable reports whether err is transient. Permanent failures, like bad
// credentials or invalid SQL, are not worth a second attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// classifyErrorType buckets an error so repeated failures of one kind can be
// detected and escalated.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}

	msg := strings.ToLower(err.Error())

	for _, code := range []string{"503", "502", "504", "500", "429", "404", "403", "401", "400"} {
		if strings.Contains(msg, code) {
			return code
		}
	}
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return "connection"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "broken pipe"):
		return "broken_pipe"
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return "rate_limit"
	case strings.Contains(msg, "unavailable"):
		return "unavailable"
	}
	return "unknown"
}

// DoIfRetryable retries fn only while its error is transient. Permanent
// failures return immediately.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResultIfRetryable(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResultIfRetryable is DoIfRetryable for functions that return a
// value. After MaxSameErrorType consecutive failures of one error type the
// failure is treated as permanent even if the budget is not spent: an
// endpoint answering 503 five times in a row is down, not flaky.
func DoWithResultIfRetryable[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	b := newBackoff(cfg)

	var result T
	var lastErr error
	sameCount := 0
	lastType := ""

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result = r
		lastErr = err

		if !IsRetryable(err) {
			return result, err
		}

		errType := classifyErrorType(err)
		if errType == lastType {
			sameCount++
			if cfg.MaxSameErrorType > 0 && sameCount >= cfg.MaxSameErrorType {
				return result, fmt.Errorf("giving up after %d consecutive %s errors: %w", sameCount, errType, err)
			}
		} else {
			sameCount = 1
			lastType = errType
		}

		if attempt < cfg.MaxRetries {
			if werr := b.wait(ctx); werr != nil {
				return result, werr
			}
		}
	}

	return result, lastErr
}
