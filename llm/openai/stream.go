package openai

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/modelmux/modelmux/llm"
	openai "github.com/sashabaranov/go-openai"
)

// chatStreamReceiver is the part of the SDK stream the adapter consumes.
// *openai.ChatCompletionStream satisfies it.
type chatStreamReceiver interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// stream implements the llm.Stream interface for OpenAI streaming responses.
// A producer goroutine consumes the SDK stream and hands translated events to
// the consumer as they arrive.
type stream struct {
	ctx     context.Context
	stream  chatStreamReceiver
	events  []*llm.StreamEvent
	current int
	mu      sync.Mutex
	cond    *sync.Cond
	err     error
	done    bool
	started bool
}

func newStream(ctx context.Context, s chatStreamReceiver) *stream {
	os := &stream{
		ctx:     ctx,
		stream:  s,
		events:  make([]*llm.StreamEvent, 0),
		current: -1,
	}
	os.cond = sync.NewCond(&os.mu)
	return os
}

// Next advances to the next event in the stream.
func (s *stream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The producer goroutine starts lazily on the first Next call.
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
	if s.stream != nil {
		return s.stream.Close()
	}
	return nil
}

// emit appends an event and wakes the consumer. Callers must hold s.mu.
func (s *stream) emit(ev *llm.StreamEvent) {
	s.events = append(s.events, ev)
	s.cond.Broadcast()
}

// run consumes the SDK stream and translates its chunks. OpenAI interleaves
// text and tool call fragments without explicit block boundaries, so block
// indices are assigned as content switches between text and tool calls.
func (s *stream) run() {
	s.mu.Lock()
	s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeStart})
	s.mu.Unlock()

	const (
		openNone = iota
		openText
		openTool
	)
	openState := openNone
	blockIndex := -1
	currentToolID := ""

	var stopReason llm.StopReason
	var usage *llm.Usage
	var model string

	for {
		response, err := s.stream.Recv()
		if err != nil {
			s.mu.Lock()
			if errors.Is(err, io.EOF) {
				s.emit(&llm.StreamEvent{
					Type:       llm.StreamEventTypeStop,
					StopReason: stopReason,
					Usage:      usage,
					Model:      model,
					Done:       true,
				})
			} else {
				s.err = classifyError(err)
			}
			s.done = true
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}

		if response.Model != "" {
			model = response.Model
		}
		// With IncludeUsage set, the final chunk has no choices and carries
		// the usage totals.
		if response.Usage != nil {
			usage = &llm.Usage{
				InputTokens:  int64(response.Usage.PromptTokens),
				OutputTokens: int64(response.Usage.CompletionTokens),
			}
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			if openState != openText {
				blockIndex++
				openState = openText
			}
			s.mu.Lock()
			s.emit(&llm.StreamEvent{
				Type:       llm.StreamEventTypeContentDelta,
				BlockIndex: blockIndex,
				Delta: &llm.StreamDelta{
					Type: llm.StreamDeltaTypeText,
					Text: choice.Delta.Content,
				},
			})
			s.mu.Unlock()
		}

		for _, toolCallDelta := range choice.Delta.ToolCalls {
			// A fragment with an ID opens a new tool call; fragments without
			// one extend the current call's arguments.
			if toolCallDelta.ID != "" && toolCallDelta.ID != currentToolID {
				blockIndex++
				openState = openTool
				currentToolID = toolCallDelta.ID
				s.mu.Lock()
				s.emit(&llm.StreamEvent{
					Type:       llm.StreamEventTypeContentBlock,
					BlockIndex: blockIndex,
					Delta: &llm.StreamDelta{
						Type: llm.StreamDeltaTypeToolUse,
						ToolUse: &llm.ToolUseBlock{
							ID:    toolCallDelta.ID,
							Name:  toolCallDelta.Function.Name,
							Input: make(map[string]interface{}),
						},
					},
				})
				s.mu.Unlock()
			}
			if toolCallDelta.Function.Arguments != "" && openState == openTool {
				s.mu.Lock()
				s.emit(&llm.StreamEvent{
					Type:       llm.StreamEventTypeContentDelta,
					BlockIndex: blockIndex,
					Delta: &llm.StreamDelta{
						Type:      llm.StreamDeltaTypeToolInput,
						ToolInput: toolCallDelta.Function.Arguments,
					},
				})
				s.mu.Unlock()
			}
		}

		if choice.FinishReason != "" {
			stopReason = fromFinishReason(choice.FinishReason)
		}
	}
}

var _ llm.Stream = (*stream)(nil)
