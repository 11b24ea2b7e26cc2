package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClient returns canned errors until they run out, then succeeds.
type fakeClient struct {
	errs  []error
	calls int
	caps  Capabilities
}

func (f *fakeClient) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return &Response{
		Content:    []ContentBlock{{Type: ContentBlockTypeText, Text: "ok"}},
		StopReason: StopReasonEndTurn,
	}, nil
}

func (f *fakeClient) Stream(ctx context.Context, req *Request) (Stream, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return &sliceStream{}, nil
}

func (f *fakeClient) Capabilities() Capabilities {
	return f.caps
}

// wrapWithCapturedSleep wraps fake with retry and replaces the wait with a
// recorder so tests run instantly.
func wrapWithCapturedSleep(t *testing.T, fake *fakeClient, cfg RetryConfig, opts ...RetryOption) (Client, *[]time.Duration) {
	t.Helper()
	wrapped, err := WithRetry(fake, cfg, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("WithRetry failed: %v", err)
	}
	delays := &[]time.Duration{}
	wrapped.(*retryClient).sleep = func(ctx context.Context, delay time.Duration) error {
		*delays = append(*delays, delay)
		return nil
	}
	return wrapped, delays
}

func deterministicConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          1 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0,
	}
}

func TestRetryExhaustsAttemptBudget(t *testing.T) {
	fake := &fakeClient{errs: []error{
		NewTransientError("503", nil),
		NewTransientError("503", nil),
		NewTransientError("503", nil),
	}}
	client, delays := wrapWithCapturedSleep(t, fake, deterministicConfig())

	_, err := client.Synchronous(context.Background(), &Request{Model: "m", Messages: []Message{NewTextMessage(RoleUser, "hi")}})
	if !IsErrorType(err, ErrorTypeRetriesExhausted) {
		t.Fatalf("Expected retries_exhausted, got %v", err)
	}
	var llmErr *Error
	if !errors.As(err, &llmErr) {
		t.Fatal("Expected an llm.Error")
	}
	if llmErr.Attempts != 3 {
		t.Errorf("Expected 3 attempts recorded, got %d", llmErr.Attempts)
	}
	if fake.calls != 3 {
		t.Errorf("Expected 3 calls, got %d", fake.calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("Expected %d delays, got %v", len(want), *delays)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("Delay %d: expected %v, got %v", i, d, (*delays)[i])
		}
	}
}

func TestRetryNonRetryableSurfacesImmediately(t *testing.T) {
	authErr := NewAuthError("invalid api key", nil)
	fake := &fakeClient{errs: []error{authErr}}
	client, delays := wrapWithCapturedSleep(t, fake, deterministicConfig())

	_, err := client.Synchronous(context.Background(), &Request{Model: "m", Messages: []Message{NewTextMessage(RoleUser, "hi")}})
	if !errors.Is(err, authErr) {
		t.Errorf("Expected the auth error to surface unchanged, got %v", err)
	}
	if IsErrorType(err, ErrorTypeRetriesExhausted) {
		t.Error("Non-retryable errors must not be wrapped as retries_exhausted")
	}
	if fake.calls != 1 {
		t.Errorf("Expected exactly 1 call, got %d", fake.calls)
	}
	if len(*delays) != 0 {
		t.Errorf("Expected no waits, got %v", *delays)
	}
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	fake := &fakeClient{errs: []error{NewTransientError("502", nil)}}
	client, delays := wrapWithCapturedSleep(t, fake, deterministicConfig())

	resp, err := client.Synchronous(context.Background(), &Request{Model: "m", Messages: []Message{NewTextMessage(RoleUser, "hi")}})
	if err != nil {
		t.Fatalf("Expected success after retry, got %v", err)
	}
	if resp.Text() != "ok" {
		t.Errorf("Expected response text 'ok', got %q", resp.Text())
	}
	if fake.calls != 2 {
		t.Errorf("Expected 2 calls, got %d", fake.calls)
	}
	if len(*delays) != 1 || (*delays)[0] != 100*time.Millisecond {
		t.Errorf("Expected one 100ms wait, got %v", *delays)
	}
}

func TestRetryUnknownErrorsCappedAtOneRetry(t *testing.T) {
	fake := &fakeClient{errs: []error{
		errors.New("socket weirdness"),
		errors.New("socket weirdness"),
		errors.New("socket weirdness"),
	}}
	cfg := deterministicConfig()
	cfg.MaxAttempts = 5
	client, _ := wrapWithCapturedSleep(t, fake, cfg)

	_, err := client.Synchronous(context.Background(), &Request{Model: "m", Messages: []Message{NewTextMessage(RoleUser, "hi")}})
	if !IsErrorType(err, ErrorTypeRetriesExhausted) {
		t.Fatalf("Expected retries_exhausted, got %v", err)
	}
	var llmErr *Error
	errors.As(err, &llmErr)
	if llmErr.Attempts != 2 {
		t.Errorf("Expected unknown errors to stop after 2 attempts, got %d", llmErr.Attempts)
	}
	if fake.calls != 2 {
		t.Errorf("Expected 2 calls, got %d", fake.calls)
	}
}

func TestRetryHonorsRetryAfterHint(t *testing.T) {
	hint := 50 * time.Millisecond
	fake := &fakeClient{errs: []error{NewRateLimitError("429", &hint, nil)}}
	client, delays := wrapWithCapturedSleep(t, fake, deterministicConfig())

	if _, err := client.Synchronous(context.Background(), &Request{Model: "m", Messages: []Message{NewTextMessage(RoleUser, "hi")}}); err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if len(*delays) != 1 || (*delays)[0] != hint {
		t.Errorf("Expected retry-after hint %v to override backoff, got %v", hint, *delays)
	}
}

func TestRetryCapsRetryAfterAtMaxDelay(t *testing.T) {
	hint := 10 * time.Second
	fake := &fakeClient{errs: []error{NewRateLimitError("429", &hint, nil)}}
	cfg := deterministicConfig()
	client, delays := wrapWithCapturedSleep(t, fake, cfg)

	if _, err := client.Synchronous(context.Background(), &Request{Model: "m", Messages: []Message{NewTextMessage(RoleUser, "hi")}}); err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if len(*delays) != 1 || (*delays)[0] != cfg.MaxDelay {
		t.Errorf("Expected hint capped at %v, got %v", cfg.MaxDelay, *delays)
	}
}

func TestRetryInvalidConfigRejected(t *testing.T) {
	bad := []RetryConfig{
		{MaxAttempts: 0, BaseDelay: time.Second, MaxDelay: time.Minute, BackoffMultiplier: 2, JitterFraction: 0},
		{MaxAttempts: 3, BaseDelay: 0, MaxDelay: time.Minute, BackoffMultiplier: 2, JitterFraction: 0},
		{MaxAttempts: 3, BaseDelay: time.Minute, MaxDelay: time.Second, BackoffMultiplier: 2, JitterFraction: 0},
		{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, BackoffMultiplier: 1.0, JitterFraction: 0},
		{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, BackoffMultiplier: 2, JitterFraction: 1.5},
	}
	for i, cfg := range bad {
		if _, err := WithRetry(&fakeClient{}, cfg, zerolog.Nop()); err == nil {
			t.Errorf("Config %d: expected WithRetry to reject invalid config %+v", i, cfg)
		}
	}
}

func TestRetryStreamEstablishment(t *testing.T) {
	fake := &fakeClient{errs: []error{NewTransientError("503", nil)}}
	client, delays := wrapWithCapturedSleep(t, fake, deterministicConfig())

	stream, err := client.Stream(context.Background(), &Request{Model: "m", Messages: []Message{NewTextMessage(RoleUser, "hi")}})
	if err != nil {
		t.Fatalf("Expected stream after retry, got %v", err)
	}
	defer stream.Close()
	if fake.calls != 2 {
		t.Errorf("Expected 2 establishment attempts, got %d", fake.calls)
	}
	if len(*delays) != 1 {
		t.Errorf("Expected one wait, got %v", *delays)
	}
}

func TestRetryObserverNotified(t *testing.T) {
	fake := &fakeClient{errs: []error{
		NewRateLimitError("429", nil, nil),
		NewTransientError("503", nil),
	}}
	var statuses []RetryStatus
	observer := func(s RetryStatus) { statuses = append(statuses, s) }
	client, _ := wrapWithCapturedSleep(t, fake, deterministicConfig(), WithObserver(observer))

	if _, err := client.Synchronous(context.Background(), &Request{Model: "m", Messages: []Message{NewTextMessage(RoleUser, "hi")}}); err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 observer notifications, got %d", len(statuses))
	}
	if statuses[0].Attempt != 1 || !statuses[0].RateLimited {
		t.Errorf("First status: expected attempt 1 rate-limited, got %+v", statuses[0])
	}
	if statuses[1].Attempt != 2 || statuses[1].RateLimited {
		t.Errorf("Second status: expected attempt 2 not rate-limited, got %+v", statuses[1])
	}
	if statuses[0].MaxAttempts != 3 {
		t.Errorf("Expected max attempts 3 in status, got %d", statuses[0].MaxAttempts)
	}
}

func TestRetryContextCancellationDuringWait(t *testing.T) {
	fake := &fakeClient{errs: []error{
		NewTransientError("503", nil),
		NewTransientError("503", nil),
	}}
	wrapped, err := WithRetry(fake, deterministicConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("WithRetry failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = wrapped.Synchronous(ctx, &Request{Model: "m", Messages: []Message{NewTextMessage(RoleUser, "hi")}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("Expected 1 call before cancellation surfaced, got %d", fake.calls)
	}
}

func TestDefaultRetryConfigValid(t *testing.T) {
	if err := DefaultRetryConfig().Validate(); err != nil {
		t.Errorf("Default retry config should validate: %v", err)
	}
}
