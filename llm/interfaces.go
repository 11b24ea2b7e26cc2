package llm

import (
	"context"
)

// Client provides a provider-neutral interface for making LLM API calls.
// Implementations should handle provider-specific details internally.
type Client interface {
	// Synchronous sends a request and returns a complete response.
	// This is for non-streaming use cases.
	Synchronous(ctx context.Context, req *Request) (*Response, error)

	// Stream sends a request and returns a stream of events.
	// The caller should read from the returned Stream until it's done or an
	// error occurs. Backends that report Capabilities().Streaming == false
	// must return an invalid_request error here instead of emulating a
	// stream by buffering the full response.
	Stream(ctx context.Context, req *Request) (Stream, error)

	// Capabilities reports what this backend supports. Callers rely on the
	// advertised capabilities to choose their code path.
	Capabilities() Capabilities
}

// Capabilities describes what a backend implementation supports.
type Capabilities struct {
	Streaming    bool
	ToolCalling  bool
	DefaultModel string
}

// Stream represents a streaming response from an LLM. Streams are
// single-consumer and single-pass: once an event has been consumed it is gone.
type Stream interface {
	// Next advances to the next event in the stream.
	// Returns false when the stream is complete or an error occurs.
	Next() bool

	// Event returns the current event.
	// Should only be called after Next() returns true.
	Event() *StreamEvent

	// Err returns any error that occurred during streaming.
	Err() error

	// Close closes the stream and releases resources.
	Close() error
}
