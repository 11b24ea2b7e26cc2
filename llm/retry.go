package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryConfig controls retry behavior for a wrapped client. It is immutable
// once constructed and safe for concurrent use.
type RetryConfig struct {
	// MaxAttempts is the total attempt budget, including the first call.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps every computed delay, including provider retry-after hints.
	MaxDelay time.Duration
	// BackoffMultiplier scales the delay between consecutive retries. Must be > 1.
	BackoffMultiplier float64
	// JitterFraction perturbs each delay by a uniform random factor in
	// [1-JitterFraction, 1+JitterFraction]. Must be in [0, 1].
	JitterFraction float64
}

// DefaultRetryConfig returns the retry configuration used when callers do not
// supply their own.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		BaseDelay:         1 * time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.2,
	}
}

// Validate checks the config invariants.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive, got %v", c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max delay %v must not be less than base delay %v", c.MaxDelay, c.BaseDelay)
	}
	if c.BackoffMultiplier <= 1.0 {
		return fmt.Errorf("backoff multiplier must be greater than 1.0, got %v", c.BackoffMultiplier)
	}
	if c.JitterFraction < 0 || c.JitterFraction > 1 {
		return fmt.Errorf("jitter fraction must be in [0, 1], got %v", c.JitterFraction)
	}
	return nil
}

// newBackOff builds the exponential backoff schedule for one call:
// delay(attempt) = min(MaxDelay, BaseDelay * BackoffMultiplier^(attempt-1)),
// perturbed by the jitter fraction.
func (c RetryConfig) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.BaseDelay
	eb.Multiplier = c.BackoffMultiplier
	eb.RandomizationFactor = c.JitterFraction
	eb.MaxInterval = c.MaxDelay
	eb.MaxElapsedTime = 0 // The attempt budget is the only cutoff
	eb.Reset()
	return eb
}

// RetryStatus describes a retry decision, delivered to a RetryObserver
// before the engine waits.
type RetryStatus struct {
	Attempt     int // 1-indexed attempt that just failed
	MaxAttempts int
	Delay       time.Duration
	RateLimited bool
	Err         error
}

// RetryObserver receives a notification for every retry the engine schedules.
type RetryObserver func(RetryStatus)

// RetryOption configures the retry wrapper.
type RetryOption func(*retryClient)

// WithObserver registers a callback invoked before each retry wait.
func WithObserver(observer RetryObserver) RetryOption {
	return func(c *retryClient) {
		c.observer = observer
	}
}

// WithRetry wraps a Client so that retryable failures are retried according
// to cfg. The same request is re-issued unchanged on every attempt.
// Non-retryable errors surface immediately; once the attempt budget is spent
// the last error is wrapped as a retries_exhausted error.
func WithRetry(client Client, cfg RetryConfig, logger zerolog.Logger, opts ...RetryOption) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	rc := &retryClient{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "llmRetry").Logger(),
		sleep:  waitForRetry,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc, nil
}

type retryClient struct {
	client   Client
	cfg      RetryConfig
	logger   zerolog.Logger
	observer RetryObserver
	// sleep waits for a delay, respecting context cancellation. Replaced in tests.
	sleep func(ctx context.Context, delay time.Duration) error
}

// Synchronous implements Client.Synchronous with retry support.
func (c *retryClient) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	err := c.attempt(ctx, req, func() error {
		var callErr error
		resp, callErr = c.client.Synchronous(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream implements Client.Stream with retry support. Only stream
// establishment is retried; an error after the first event belongs to the
// stream consumer.
func (c *retryClient) Stream(ctx context.Context, req *Request) (Stream, error) {
	var stream Stream
	err := c.attempt(ctx, req, func() error {
		var callErr error
		stream, callErr = c.client.Stream(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// Capabilities implements Client.Capabilities.
func (c *retryClient) Capabilities() Capabilities {
	return c.client.Capabilities()
}

// attempt runs call up to cfg.MaxAttempts times. The classification rules:
// non-retryable errors surface immediately, unknown errors are retried at
// most once, and a provider retry-after hint overrides the backoff schedule
// (capped at MaxDelay).
func (c *retryClient) attempt(ctx context.Context, req *Request, call func() error) error {
	bo := c.cfg.newBackOff()
	unknownRetries := 0
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			c.logger.Debug().
				Err(err).
				Int("attempt", attempt).
				Str("session_id", req.SessionID).
				Msg("Non-retryable error, giving up")
			return err
		}

		if isUnknownError(err) {
			if unknownRetries >= 1 {
				return NewRetriesExhaustedError(attempt, lastErr)
			}
			unknownRetries++
		}

		if attempt >= c.cfg.MaxAttempts {
			return NewRetriesExhaustedError(attempt, lastErr)
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			return NewRetriesExhaustedError(attempt, lastErr)
		}
		retryAfter := ExtractRetryAfter(err)
		if retryAfter != nil {
			delay = *retryAfter
			if delay > c.cfg.MaxDelay {
				delay = c.cfg.MaxDelay
			}
		}

		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", c.cfg.MaxAttempts).
			Dur("delay", delay).
			Str("session_id", req.SessionID).
			Msg("Retryable LLM error, waiting before retry")

		if c.observer != nil {
			c.observer(RetryStatus{
				Attempt:     attempt,
				MaxAttempts: c.cfg.MaxAttempts,
				Delay:       delay,
				RateLimited: IsRateLimitError(err),
				Err:         err,
			})
		}

		if waitErr := c.sleep(ctx, delay); waitErr != nil {
			return waitErr
		}
	}
}

// isUnknownError reports whether err is unclassified: either an explicit
// unknown llm.Error or an error that is not an llm.Error at all.
func isUnknownError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeUnknown
	}
	return true
}

// waitForRetry waits for the specified delay, respecting context cancellation.
func waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Client = (*retryClient)(nil)
