package llm

import (
	"errors"
	"fmt"
	"time"
)

// Error represents a provider-neutral LLM error.
type Error struct {
	Type        ErrorType
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration // Provider-supplied retry hint, if any
	StatusCode  int
	Attempts    int   // Set on retries_exhausted errors
	ProviderErr error // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeRateLimit           ErrorType = "rate_limit"
	ErrorTypeTransient           ErrorType = "transient"
	ErrorTypeInvalidRequest      ErrorType = "invalid_request"
	ErrorTypeAuth                ErrorType = "auth"
	ErrorTypeContextTooLong      ErrorType = "context_too_long"
	ErrorTypeInvalidConversation ErrorType = "invalid_conversation"
	ErrorTypeStreamProtocol      ErrorType = "stream_protocol_violation"
	ErrorTypeRetriesExhausted    ErrorType = "retries_exhausted"
	ErrorTypeUnknown             ErrorType = "unknown"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// IsErrorType checks if an error is an llm.Error of the given type.
func IsErrorType(err error, t ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == t
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	return IsErrorType(err, ErrorTypeRateLimit)
}

// IsContextTooLongError checks if an error indicates the request exceeded the
// provider's context window.
func IsContextTooLongError(err error) bool {
	return IsErrorType(err, ErrorTypeContextTooLong)
}

// IsRetryableError checks if an error is retryable. Errors that are not
// llm.Error values are unclassified and treated as retryable (bounded by the
// retry engine's unknown-error budget).
func IsRetryableError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return err != nil
}

// ExtractRetryAfter extracts the provider-supplied retry-after duration from
// an error, if present.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewRateLimitError creates a new rate limit error. retryAfter carries the
// provider's hint when it supplied one.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		RetryAfter:  retryAfter,
		ProviderErr: providerErr,
	}
}

// NewTransientError creates a new transient error (timeouts, connection
// resets, 5xx responses).
func NewTransientError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeTransient,
		Message:     message,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// NewInvalidRequestError creates a new invalid request error.
func NewInvalidRequestError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeInvalidRequest,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// NewAuthError creates a new authentication error.
func NewAuthError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeAuth,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// NewContextTooLongError creates a new context too long error.
func NewContextTooLongError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeContextTooLong,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// NewInvalidConversationError creates a new invalid conversation error.
// These indicate caller bugs (dangling tool references) and are never retried.
func NewInvalidConversationError(message string) *Error {
	return &Error{
		Type:      ErrorTypeInvalidConversation,
		Message:   message,
		Retryable: false,
	}
}

// NewStreamProtocolError creates a new stream protocol violation error.
// Fatal to the current stream only; the backend instance remains usable.
func NewStreamProtocolError(message string) *Error {
	return &Error{
		Type:      ErrorTypeStreamProtocol,
		Message:   message,
		Retryable: false,
	}
}

// NewUnknownError creates a new unclassified error. Unknown errors are
// treated as transient but the retry engine retries them at most once.
func NewUnknownError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeUnknown,
		Message:     message,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// NewRetriesExhaustedError wraps the last error seen after the retry budget
// ran out, preserving the attempt count for diagnostics.
func NewRetriesExhaustedError(attempts int, lastErr error) *Error {
	return &Error{
		Type:        ErrorTypeRetriesExhausted,
		Message:     fmt.Sprintf("retries exhausted after %d attempts", attempts),
		Retryable:   false,
		Attempts:    attempts,
		ProviderErr: lastErr,
	}
}
