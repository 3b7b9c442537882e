package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 500 * time.Millisecond
)

var (
	// ErrMalformedResponse marks replies that could not be parsed; these are
	// retried within the attempt budget.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrInvalidAnalysis marks replies that parsed but failed validation.
	ErrInvalidAnalysis = errors.New("invalid analysis")
)

// APIError is a non-200 reply carrying a well-formed error body. It is
// terminal and never retried.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

type retryPolicy struct {
	attempts int
	delay    time.Duration
}

func newRetryPolicy(attempts int, delay time.Duration) retryPolicy {
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	if delay < 0 {
		delay = 0
	}
	return retryPolicy{attempts: attempts, delay: delay}
}

// do runs fn until it succeeds, returns an *APIError, the context ends, or
// the attempt budget is spent. Waits grow linearly with the attempt number.
func (p retryPolicy) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			slog.Warn("retrying analysis request",
				"op", op, "attempt", attempt, "max_attempts", p.attempts, "error", lastErr)

			if err := sleep(ctx, p.delay*time.Duration(attempt-1)); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		lastErr = err
	}

	return fmt.Errorf("analysis failed after %d attempts: %w", p.attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// errorMessage extracts the message from an upstream error body. Both the
// OpenAI-style {"error":{"message":...}} and a bare {"message":...} are
// accepted; anything else is reported as not well-formed.
func errorMessage(body []byte) (string, bool) {
	var wrapped struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return "", false
	}

	msg := wrapped.Message
	if wrapped.Error != nil && wrapped.Error.Message != "" {
		msg = wrapped.Error.Message
	}
	msg = strings.TrimSpace(msg)

	return msg, msg != ""
}
