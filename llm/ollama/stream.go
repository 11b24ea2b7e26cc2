package ollama

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/modelmux/modelmux/llm"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

// stream implements the llm.Stream interface for Ollama streaming responses.
// The chat callback runs in a producer goroutine; events are handed to the
// consumer through a condition variable.
type stream struct {
	ctx     context.Context
	client  *api.Client
	req     *api.ChatRequest
	events  []*llm.StreamEvent
	current int
	mu      sync.Mutex
	cond    *sync.Cond
	err     error
	done    bool
	started bool
	logger  zerolog.Logger
}

func newStream(ctx context.Context, client *api.Client, req *api.ChatRequest, logger zerolog.Logger) *stream {
	s := &stream{
		ctx:     ctx,
		client:  client,
		req:     req,
		events:  make([]*llm.StreamEvent, 0),
		current: -1,
		logger:  logger,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Next advances to the next event in the stream.
func (s *stream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.started = true
		go s.run()
	}

	s.current++

	for s.current >= len(s.events) && !s.done && s.err == nil {
		s.cond.Wait()
	}

	if s.err != nil {
		return false
	}
	return s.current < len(s.events)
}

// Event returns the current event.
func (s *stream) Event() *llm.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < 0 || s.current >= len(s.events) {
		return nil
	}
	return s.events[s.current]
}

// Err returns any error that occurred during streaming.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the stream and releases resources.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.cond.Broadcast()
	return nil
}

// emit appends an event and wakes the consumer. Callers must hold s.mu.
func (s *stream) emit(ev *llm.StreamEvent) {
	s.events = append(s.events, ev)
	s.cond.Broadcast()
}

// run issues the chat request and translates callback chunks into events.
// Ollama sends incremental text tokens and, unlike the hosted providers,
// complete tool calls with fully formed argument maps.
func (s *stream) run() {
	s.mu.Lock()
	s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeStart})
	s.mu.Unlock()

	textOpen := false
	blockIndex := -1
	toolCalls := 0

	err := s.client.Chat(s.ctx, s.req, func(resp api.ChatResponse) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if resp.Message.Content != "" {
			if !textOpen {
				blockIndex++
				textOpen = true
			}
			s.emit(&llm.StreamEvent{
				Type:       llm.StreamEventTypeContentDelta,
				BlockIndex: blockIndex,
				Delta: &llm.StreamDelta{
					Type: llm.StreamDeltaTypeText,
					Text: resp.Message.Content,
				},
			})
		}

		for _, toolCall := range resp.Message.ToolCalls {
			blockIndex++
			textOpen = false
			block := FromToolCall(toolCall, toolCalls)
			toolCalls++

			s.emit(&llm.StreamEvent{
				Type:       llm.StreamEventTypeContentBlock,
				BlockIndex: blockIndex,
				Delta: &llm.StreamDelta{
					Type: llm.StreamDeltaTypeToolUse,
					ToolUse: &llm.ToolUseBlock{
						ID:    block.ID,
						Name:  block.Name,
						Input: make(map[string]interface{}),
					},
				},
			})
			if argsJSON, err := json.Marshal(block.Input); err == nil {
				s.emit(&llm.StreamEvent{
					Type:       llm.StreamEventTypeContentDelta,
					BlockIndex: blockIndex,
					Delta: &llm.StreamDelta{
						Type:      llm.StreamDeltaTypeToolInput,
						ToolInput: string(argsJSON),
					},
				})
			}
		}

		if resp.Done {
			s.emit(&llm.StreamEvent{
				Type:       llm.StreamEventTypeStop,
				StopReason: fromDoneReason(resp.DoneReason, toolCalls > 0),
				Usage: &llm.Usage{
					InputTokens:  int64(resp.PromptEvalCount),
					OutputTokens: int64(resp.EvalCount),
				},
				Model: resp.Model,
				Done:  true,
			})
			s.done = true
		}
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !s.done {
		s.err = classifyError(err)
	}
	s.done = true
	s.cond.Broadcast()
}

var _ llm.Stream = (*stream)(nil)
