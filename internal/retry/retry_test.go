package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

// newTestExecutor creates an executor with sleeping stubbed out,
// recording the computed delays.
func newTestExecutor(t *testing.T, cfg Config) (*Executor, *[]time.Duration) {
	t.Helper()

	var delays []time.Duration
	e := NewExecutor(cfg, nil)
	e.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return e, &delays
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	e, delays := newTestExecutor(t, Config{MaxAttempts: 3})

	calls := 0
	err := e.Do(context.Background(), "get item", func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if len(*delays) != 0 {
		t.Errorf("expected no delays, got %v", *delays)
	}
}

func TestDoRetriesUntilExhaustion(t *testing.T) {
	// A call that always fails with HTTP 503 is attempted exactly
	// MaxAttempts times, with non-decreasing delays under factor > 1.
	cfg := Config{
		MaxAttempts: 4,
		MinTimeout:  10 * time.Millisecond,
		MaxTimeout:  10 * time.Second,
		Factor:      2,
		Randomize:   false,
	}
	e, delays := newTestExecutor(t, cfg)

	calls := 0
	err := e.Do(context.Background(), "push item", func(context.Context) error {
		calls++
		return &StatusError{StatusCode: http.StatusServiceUnavailable}
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 4 {
		t.Errorf("expected exactly 4 attempts, got %d", calls)
	}
	if len(*delays) != 3 {
		t.Fatalf("expected 3 inter-attempt delays, got %d", len(*delays))
	}
	for i := 1; i < len(*delays); i++ {
		if (*delays)[i] < (*delays)[i-1] {
			t.Errorf("delay %d (%v) decreased from delay %d (%v)",
				i, (*delays)[i], i-1, (*delays)[i-1])
		}
	}

	var st *StatusError
	if !errors.As(err, &st) {
		t.Errorf("expected wrapped StatusError, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed after 4 attempts") {
		t.Errorf("expected error annotated with attempt count, got %q", err)
	}
}

func TestDoTierForbiddenIsFatal(t *testing.T) {
	// A 403 whose body carries the tenant-tier code is never retried,
	// regardless of MaxAttempts.
	e, delays := newTestExecutor(t, Config{MaxAttempts: 10})

	calls := 0
	err := e.Do(context.Background(), "push site", func(context.Context) error {
		calls++
		return &StatusError{
			StatusCode: http.StatusForbidden,
			Code:       CodeTenantTierForbidden,
			Message:    "operation not permitted for tenant tier",
		}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", calls)
	}
	if len(*delays) != 0 {
		t.Errorf("expected no delays, got %v", *delays)
	}
}

func TestDoPlainForbiddenRetries(t *testing.T) {
	e, _ := newTestExecutor(t, Config{MaxAttempts: 3})

	calls := 0
	err := e.Do(context.Background(), "get asset", func(context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{StatusCode: http.StatusForbidden}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestShouldRetryClassification(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		err   error
		retry bool
	}{
		{"network timeout", Config{}, &timeoutError{}, true},
		{"429", Config{}, &StatusError{StatusCode: 429}, true},
		{"500", Config{}, &StatusError{StatusCode: 500}, true},
		{"502", Config{}, &StatusError{StatusCode: 502}, true},
		{"503", Config{}, &StatusError{StatusCode: 503}, true},
		{"504", Config{}, &StatusError{StatusCode: 504}, true},
		{"404 not allow-listed", Config{}, &StatusError{StatusCode: 404}, false},
		{"404 allow-listed", Config{StatusCodes: []int{404}}, &StatusError{StatusCode: 404}, true},
		{"409", Config{}, &StatusError{StatusCode: 409}, false},
		{"plain error", Config{}, fmt.Errorf("boom"), false},
		{"wrapped status", Config{}, fmt.Errorf("push: %w", &StatusError{StatusCode: 503}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(tt.cfg, nil)
			if got := e.shouldRetry(tt.err); got != tt.retry {
				t.Errorf("shouldRetry(%v) = %v, want %v", tt.err, got, tt.retry)
			}
		})
	}
}

func TestDelayRespectsMaxTimeout(t *testing.T) {
	e := NewExecutor(Config{
		MaxAttempts: 10,
		MinTimeout:  time.Second,
		MaxTimeout:  3 * time.Second,
		Factor:      2,
	}, nil)

	if d := e.Delay(1); d != time.Second {
		t.Errorf("Delay(1) = %v, want 1s", d)
	}
	if d := e.Delay(2); d != 2*time.Second {
		t.Errorf("Delay(2) = %v, want 2s", d)
	}
	if d := e.Delay(5); d != 3*time.Second {
		t.Errorf("Delay(5) = %v, want capped 3s", d)
	}
}

func TestDelayRandomizeBounds(t *testing.T) {
	e := NewExecutor(Config{
		MinTimeout: 100 * time.Millisecond,
		MaxTimeout: time.Hour,
		Factor:     2,
		Randomize:  true,
	}, nil)

	for i := 0; i < 50; i++ {
		d := e.Delay(1)
		if d < 100*time.Millisecond || d >= 200*time.Millisecond {
			t.Fatalf("jittered Delay(1) = %v outside [100ms, 200ms)", d)
		}
	}
}

func TestDoContextCanceledDuringSleep(t *testing.T) {
	e := NewExecutor(Config{MaxAttempts: 3, MinTimeout: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Do(ctx, "get item", func(context.Context) error {
		return &StatusError{StatusCode: 503}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// timeoutError implements net.Error for classification tests.
type timeoutError struct{}

func (*timeoutError) Error() string   { return "i/o timeout" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }
