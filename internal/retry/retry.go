// Package retry wraps single remote calls with a bounded-retry policy:
// it classifies failures as retryable or fatal, computes inter-attempt
// delays (exponential with optional jitter), and caps total attempts.
//
// Transient failures are invisible to callers unless attempts are
// exhausted, in which case the last error is surfaced annotated with the
// attempt count.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// Default policy values, overridable per service through the options layer.
const (
	DefaultMaxAttempts = 5
	DefaultMinTimeout  = 200 * time.Millisecond
	DefaultMaxTimeout  = 30 * time.Second
	DefaultFactor      = 2.0
)

// CodeTenantTierForbidden is the error body code the service returns when
// an operation is not permitted for the tenant's tier. Tier limits never
// succeed on retry, so a 403 carrying this code is fatal.
const CodeTenantTierForbidden = 3193

// StatusError is an HTTP-level failure from the remote service.
type StatusError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Code is the service error code from the response body, 0 when the
	// body carried none.
	Code int

	// Message is the service-provided description.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Config is the retry policy for one service.
type Config struct {
	// MaxAttempts caps the total number of attempts, including the first.
	MaxAttempts int

	// MinTimeout is the delay before the second attempt.
	MinTimeout time.Duration

	// MaxTimeout caps the computed delay.
	MaxTimeout time.Duration

	// Factor is the exponential backoff multiplier.
	Factor float64

	// Randomize multiplies each delay by a random factor in [1, 2).
	Randomize bool

	// StatusCodes is an extra allow-list of HTTP statuses to retry for
	// this service, beyond the built-in transient set.
	StatusCodes []int
}

// withDefaults fills zero fields with the package defaults.
func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MinTimeout <= 0 {
		c.MinTimeout = DefaultMinTimeout
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = DefaultMaxTimeout
	}
	if c.Factor <= 0 {
		c.Factor = DefaultFactor
	}
	return c
}

// Executor retries remote calls according to a Config.
type Executor struct {
	cfg    Config
	logger *log.Logger

	// sleep and rng are replaceable for tests.
	sleep func(context.Context, time.Duration) error
	rng   *rand.Rand
}

// NewExecutor creates an executor for one service. If logger is nil, a
// default logger writing to stderr is used.
func NewExecutor(cfg Config, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.New(os.Stderr, "[retry] ", log.LstdFlags)
	}
	return &Executor{
		cfg:    cfg.withDefaults(),
		logger: logger,
		sleep:  sleepCtx,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do runs fn until it succeeds, fails fatally, or attempts are exhausted.
// desc names the logical call for logging. Every attempt is logged with a
// correlation id so retried requests can be traced end to end.
func (e *Executor) Do(ctx context.Context, desc string, fn func(context.Context) error) error {
	correlation := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Printf("%s succeeded on attempt %d/%d [%s]",
					desc, attempt, e.cfg.MaxAttempts, correlation)
			}
			return nil
		}
		lastErr = err

		if !e.shouldRetry(err) {
			e.logger.Printf("%s failed fatally on attempt %d/%d: %v [%s]",
				desc, attempt, e.cfg.MaxAttempts, err, correlation)
			return err
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}

		delay := e.Delay(attempt)
		e.logger.Printf("%s failed on attempt %d/%d, retrying in %v: %v [%s]",
			desc, attempt, e.cfg.MaxAttempts, delay, err, correlation)

		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}

	e.logger.Printf("%s exhausted %d attempts [%s]", desc, e.cfg.MaxAttempts, correlation)
	return fmt.Errorf("failed after %d attempts: %w", e.cfg.MaxAttempts, lastErr)
}

// shouldRetry classifies one failure.
//
// Network-level errors and the transient HTTP statuses (429, 500, 502,
// 503, 504) retry. 403 retries unless the body carries the tenant-tier
// code. Anything else retries only when listed in the per-service
// allow-list.
func (e *Executor) shouldRetry(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var st *StatusError
	if !errors.As(err, &st) {
		return false
	}

	switch st.StatusCode {
	case http.StatusForbidden:
		return st.Code != CodeTenantTierForbidden
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	for _, code := range e.cfg.StatusCodes {
		if st.StatusCode == code {
			return true
		}
	}
	return false
}

// Delay computes the wait before attempt+1:
// min(MaxTimeout, MinTimeout * Factor^(attempt-1) * jitter).
func (e *Executor) Delay(attempt int) time.Duration {
	d := float64(e.cfg.MinTimeout)
	for i := 1; i < attempt; i++ {
		d *= e.cfg.Factor
	}
	if e.cfg.Randomize {
		d *= 1 + e.rng.Float64()
	}
	if max := float64(e.cfg.MaxTimeout); d > max {
		d = max
	}
	return time.Duration(d)
}

// sleepCtx waits for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
