package anthropic

import (
	"context"
	"sync"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/modelmux/modelmux/llm"
	"github.com/rs/zerolog"
)

// stream implements the llm.Stream interface for Anthropic streaming responses.
type stream struct {
	ctx     context.Context
	stream  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	events  []*llm.StreamEvent
	current int
	mu      sync.Mutex
	cond    *sync.Cond
	err     error
	done    bool
	started bool
	logger  zerolog.Logger
}

func newStream(ctx context.Context, s *ssestream.Stream[anthropic.MessageStreamEventUnion], logger zerolog.Logger) *stream {
	as := &stream{
		ctx:     ctx,
		stream:  s,
		events:  make([]*llm.StreamEvent, 0),
		current: -1,
		logger:  logger,
	}
	as.cond = sync.NewCond(&as.mu)
	return as
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

// run consumes the SDK stream and translates its events.
func (s *stream) run() {
	s.mu.Lock()
	s.emit(&llm.StreamEvent{Type: llm.StreamEventTypeStart})
	s.mu.Unlock()

	var usage *llm.Usage
	var model string
	var stopReason llm.StopReason

	for s.stream.Next() {
		event := s.stream.Current()

		s.mu.Lock()
		switch evt := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			model = string(evt.Message.Model)
			usage = &llm.Usage{
				InputTokens:              evt.Message.Usage.InputTokens,
				OutputTokens:             evt.Message.Usage.OutputTokens,
				CacheCreationInputTokens: evt.Message.Usage.CacheCreationInputTokens,
				CacheReadInputTokens:     evt.Message.Usage.CacheReadInputTokens,
			}

		case anthropic.ContentBlockStartEvent:
			switch block := evt.ContentBlock.AsAny().(type) {
			case anthropic.TextBlock:
				s.emit(&llm.StreamEvent{
					Type:       llm.StreamEventTypeContentBlock,
					BlockIndex: int(evt.Index),
					Delta: &llm.StreamDelta{
						Type: llm.StreamDeltaTypeText,
						Text: block.Text,
					},
				})
			case anthropic.ToolUseBlock:
				s.emit(&llm.StreamEvent{
					Type:       llm.StreamEventTypeContentBlock,
					BlockIndex: int(evt.Index),
					Delta: &llm.StreamDelta{
						Type: llm.StreamDeltaTypeToolUse,
						ToolUse: &llm.ToolUseBlock{
							ID:    block.ID,
							Name:  block.Name,
							Input: make(map[string]interface{}),
						},
					},
				})
			}

		case anthropic.ContentBlockDeltaEvent:
			switch d := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if d.Text != "" {
					s.emit(&llm.StreamEvent{
						Type:       llm.StreamEventTypeContentDelta,
						BlockIndex: int(evt.Index),
						Delta: &llm.StreamDelta{
							Type: llm.StreamDeltaTypeText,
							Text: d.Text,
						},
					})
				}
			case anthropic.InputJSONDelta:
				if d.PartialJSON != "" {
					s.emit(&llm.StreamEvent{
						Type:       llm.StreamEventTypeContentDelta,
						BlockIndex: int(evt.Index),
						Delta: &llm.StreamDelta{
							Type:      llm.StreamDeltaTypeToolInput,
							ToolInput: d.PartialJSON,
						},
					})
				}
			}

		case anthropic.ContentBlockStopEvent:
			// Block boundaries are implicit in the index sequence.

		case anthropic.MessageDeltaEvent:
			if usage == nil {
				usage = &llm.Usage{}
			}
			usage.OutputTokens = evt.Usage.OutputTokens
			if evt.Delta.StopReason != "" {
				stopReason = fromStopReason(string(evt.Delta.StopReason))
			}
			s.logCacheStats(usage)

		case anthropic.MessageStopEvent:
			s.emit(&llm.StreamEvent{
				Type:       llm.StreamEventTypeStop,
				StopReason: stopReason,
				Usage:      usage,
				Model:      model,
				Done:       true,
			})
			s.done = true
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stream.Err(); err != nil {
		s.err = classifyError(err)
	}
	s.done = true
	s.cond.Broadcast()
}

// logCacheStats must be called with s.mu held.
func (s *stream) logCacheStats(usage *llm.Usage) {
	if usage.CacheCreationInputTokens == 0 && usage.CacheReadInputTokens == 0 {
		return
	}
	cacheEfficiency := float64(0)
	if usage.InputTokens > 0 {
		cacheEfficiency = float64(usage.CacheReadInputTokens) / float64(usage.InputTokens) * 100
	}
	s.logger.Debug().
		Int64("input_tokens", usage.InputTokens).
		Int64("cache_read_tokens", usage.CacheReadInputTokens).
		Float64("cache_efficiency", cacheEfficiency).
		Msg("Prompt cache stats (stream)")
}

var _ llm.Stream = (*stream)(nil)
