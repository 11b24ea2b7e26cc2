package llm

import (
	"context"

	"github.com/rs/zerolog"
)

// Middleware provides hooks for decorating Client calls.
// This allows adding cross-cutting concerns like logging, rate limiting, etc.
type Middleware interface {
	// BeforeRequest is called before making an API request.
	// It can modify the request or return an error to abort the request.
	BeforeRequest(ctx context.Context, req *Request) (*Request, error)

	// AfterResponse is called after receiving a response.
	// It can modify the response or return an error.
	AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error)

	// OnError is called when an error occurs.
	// It can return a modified error or nil to swallow the error.
	OnError(ctx context.Context, req *Request, err error) error
}

// StreamMiddleware provides hooks for decorating streaming calls.
// A Middleware that also implements StreamMiddleware is applied to streams.
type StreamMiddleware interface {
	// BeforeStream is called before starting a stream.
	BeforeStream(ctx context.Context, req *Request) (*Request, error)

	// OnStreamEvent is called for each stream event.
	// It can modify the event or return an error to abort the stream.
	OnStreamEvent(ctx context.Context, req *Request, event *StreamEvent) (*StreamEvent, error)

	// OnStreamError is called when a stream error occurs.
	OnStreamError(ctx context.Context, req *Request, err error) error
}

// MiddlewareFunc is a function-field adapter that implements Middleware.
type MiddlewareFunc struct {
	BeforeRequestFunc func(ctx context.Context, req *Request) (*Request, error)
	AfterResponseFunc func(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnErrorFunc       func(ctx context.Context, req *Request, err error) error
}

// BeforeRequest calls the BeforeRequestFunc if set.
func (f MiddlewareFunc) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	if f.BeforeRequestFunc != nil {
		return f.BeforeRequestFunc(ctx, req)
	}
	return req, nil
}

// AfterResponse calls the AfterResponseFunc if set.
func (f MiddlewareFunc) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if f.AfterResponseFunc != nil {
		return f.AfterResponseFunc(ctx, req, resp)
	}
	return resp, nil
}

// OnError calls the OnErrorFunc if set.
func (f MiddlewareFunc) OnError(ctx context.Context, req *Request, err error) error {
	if f.OnErrorFunc != nil {
		return f.OnErrorFunc(ctx, req, err)
	}
	return err
}

// WrapWithMiddleware wraps a Client with middleware and returns a new Client.
// Capabilities pass through unchanged.
func WrapWithMiddleware(client Client, middleware ...Middleware) Client {
	if len(middleware) == 0 {
		return client
	}
	return &clientWithMiddleware{
		client:     client,
		middleware: middleware,
	}
}

type clientWithMiddleware struct {
	client     Client
	middleware []Middleware
}

// Synchronous implements Client.Synchronous with middleware support.
func (c *clientWithMiddleware) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	for _, mw := range c.middleware {
		var err error
		req, err = mw.BeforeRequest(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	resp, err := c.client.Synchronous(ctx, req)
	if err != nil {
		for _, mw := range c.middleware {
			err = mw.OnError(ctx, req, err)
			if err == nil {
				break // Middleware handled the error
			}
		}
		return nil, err
	}

	// AfterResponse runs in reverse registration order
	for i := len(c.middleware) - 1; i >= 0; i-- {
		var err error
		resp, err = c.middleware[i].AfterResponse(ctx, req, resp)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// Stream implements Client.Stream with middleware support.
func (c *clientWithMiddleware) Stream(ctx context.Context, req *Request) (Stream, error) {
	for _, mw := range c.middleware {
		if smw, ok := mw.(StreamMiddleware); ok {
			var err error
			req, err = smw.BeforeStream(ctx, req)
			if err != nil {
				return nil, err
			}
		}
	}

	stream, err := c.client.Stream(ctx, req)
	if err != nil {
		for _, mw := range c.middleware {
			if smw, ok := mw.(StreamMiddleware); ok {
				err = smw.OnStreamError(ctx, req, err)
				if err == nil {
					break
				}
			}
		}
		return nil, err
	}

	return &streamWithMiddleware{
		stream:     stream,
		middleware: c.middleware,
		req:        req,
		ctx:        ctx,
	}, nil
}

// Capabilities implements Client.Capabilities.
func (c *clientWithMiddleware) Capabilities() Capabilities {
	return c.client.Capabilities()
}

type streamWithMiddleware struct {
	stream     Stream
	middleware []Middleware
	req        *Request
	ctx        context.Context
	event      *StreamEvent
	err        error
}

// Next implements Stream.Next with middleware support. A middleware that
// returns an error terminates the stream; the error surfaces from Err.
// A middleware that returns a nil event filters it out and the stream
// advances to the next one.
func (s *streamWithMiddleware) Next() bool {
	if s.err != nil {
		return false
	}

	for s.stream.Next() {
		event := s.stream.Event()
		if event == nil {
			continue
		}

		filtered := false
		for _, mw := range s.middleware {
			smw, ok := mw.(StreamMiddleware)
			if !ok {
				continue
			}
			var err error
			event, err = smw.OnStreamEvent(s.ctx, s.req, event)
			if err != nil {
				s.err = err
				return false
			}
			if event == nil {
				filtered = true
				break
			}
		}
		if filtered {
			continue
		}

		s.event = event
		return true
	}
	return false
}

// Event implements Stream.Event.
func (s *streamWithMiddleware) Event() *StreamEvent {
	return s.event
}

// Err implements Stream.Err.
func (s *streamWithMiddleware) Err() error {
	if s.err != nil {
		return s.err
	}
	err := s.stream.Err()
	if err != nil {
		for _, mw := range s.middleware {
			if smw, ok := mw.(StreamMiddleware); ok {
				err = smw.OnStreamError(s.ctx, s.req, err)
				if err == nil {
					break
				}
			}
		}
	}
	return err
}

// Close implements Stream.Close.
func (s *streamWithMiddleware) Close() error {
	return s.stream.Close()
}

// LoggingMiddleware logs requests, responses, and errors with request
// metadata (model, message count, session ID) and usage counts.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger.With().Str("component", "llmLogging").Logger(),
	}
}

// BeforeRequest implements Middleware.BeforeRequest.
func (m *LoggingMiddleware) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	m.logger.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Str("session_id", req.SessionID).
		Msg("Sending LLM request")
	return req, nil
}

// AfterResponse implements Middleware.AfterResponse.
func (m *LoggingMiddleware) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	evt := m.logger.Debug().
		Str("model", resp.Model).
		Str("stop_reason", string(resp.StopReason)).
		Str("session_id", req.SessionID)
	if resp.Usage != nil {
		evt = evt.Int64("input_tokens", resp.Usage.InputTokens).
			Int64("output_tokens", resp.Usage.OutputTokens)
	}
	evt.Msg("Received LLM response")
	return resp, nil
}

// OnError implements Middleware.OnError.
func (m *LoggingMiddleware) OnError(ctx context.Context, req *Request, err error) error {
	m.logger.Warn().
		Err(err).
		Str("model", req.Model).
		Str("session_id", req.SessionID).
		Msg("LLM request failed")
	return err
}

var (
	_ Stream     = (*streamWithMiddleware)(nil)
	_ Client     = (*clientWithMiddleware)(nil)
	_ Middleware = (*LoggingMiddleware)(nil)
	_ Middleware = MiddlewareFunc{}
)
