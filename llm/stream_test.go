package llm

import (
	"context"
	"errors"
	"testing"
)

// sliceStream replays a fixed event slice. failWith, when set, is returned
// from Err after the events run out, simulating a mid-stream producer error.
type sliceStream struct {
	events   []*StreamEvent
	pos      int
	failWith error
	closed   bool
}

func (s *sliceStream) Next() bool {
	if s.pos >= len(s.events) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Event() *StreamEvent {
	return s.events[s.pos-1]
}

func (s *sliceStream) Err() error {
	if s.pos >= len(s.events) {
		return s.failWith
	}
	return nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

func textDelta(index int, text string) *StreamEvent {
	return &StreamEvent{
		Type:       StreamEventTypeContentDelta,
		BlockIndex: index,
		Delta:      &StreamDelta{Type: StreamDeltaTypeText, Text: text},
	}
}

func toolOpen(index int, id, name string) *StreamEvent {
	return &StreamEvent{
		Type:       StreamEventTypeContentBlock,
		BlockIndex: index,
		Delta: &StreamDelta{
			Type:    StreamDeltaTypeToolUse,
			ToolUse: &ToolUseBlock{ID: id, Name: name},
		},
	}
}

func toolInputDelta(index int, fragment string) *StreamEvent {
	return &StreamEvent{
		Type:       StreamEventTypeContentDelta,
		BlockIndex: index,
		Delta:      &StreamDelta{Type: StreamDeltaTypeToolInput, ToolInput: fragment},
	}
}

func stopEvent(reason StopReason) *StreamEvent {
	return &StreamEvent{Type: StreamEventTypeStop, StopReason: reason, Done: true}
}

func TestCollectTextStream(t *testing.T) {
	stream := &sliceStream{events: []*StreamEvent{
		{Type: StreamEventTypeStart, Model: "test-model"},
		textDelta(0, "Hel"),
		textDelta(0, "lo"),
		stopEvent(StopReasonEndTurn),
	}}

	resp, err := Collect(context.Background(), stream, nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if resp.Text() != "Hello" {
		t.Errorf("Expected aggregated text 'Hello', got %q", resp.Text())
	}
	if resp.StopReason != StopReasonEndTurn {
		t.Errorf("Expected stop reason end_turn, got %v", resp.StopReason)
	}
	if !stream.closed {
		t.Error("Expected Collect to close the stream")
	}
}

func TestCollectToolUseStream(t *testing.T) {
	stream := &sliceStream{events: []*StreamEvent{
		textDelta(0, "Let me check."),
		toolOpen(1, "tu-1", "search"),
		toolInputDelta(1, `{"query":`),
		toolInputDelta(1, `"go streams"}`),
		stopEvent(StopReasonToolUse),
	}}

	resp, err := Collect(context.Background(), stream, nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	uses := resp.ToolUses()
	if len(uses) != 1 {
		t.Fatalf("Expected 1 tool use, got %d", len(uses))
	}
	if uses[0].ID != "tu-1" || uses[0].Name != "search" {
		t.Errorf("Unexpected tool use header: %+v", uses[0])
	}
	if got := uses[0].Input["query"]; got != "go streams" {
		t.Errorf("Expected tool input assembled from fragments, got %v", uses[0].Input)
	}
	if resp.StopReason != StopReasonToolUse {
		t.Errorf("Expected stop reason tool_use, got %v", resp.StopReason)
	}
}

func TestCollectNormalizesStopReasonForToolBlocks(t *testing.T) {
	// Some backends report a plain stop even when the output requests a tool.
	stream := &sliceStream{events: []*StreamEvent{
		toolOpen(0, "tu-1", "search"),
		toolInputDelta(0, `{}`),
		stopEvent(StopReasonEndTurn),
	}}

	resp, err := Collect(context.Background(), stream, nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if resp.StopReason != StopReasonToolUse {
		t.Errorf("Expected stop reason normalized to tool_use, got %v", resp.StopReason)
	}
}

func TestCollectToolUseClaimWithoutToolBlocks(t *testing.T) {
	stream := &sliceStream{events: []*StreamEvent{
		textDelta(0, "no tools here"),
		stopEvent(StopReasonToolUse),
	}}

	_, err := Collect(context.Background(), stream, nil)
	if !IsErrorType(err, ErrorTypeStreamProtocol) {
		t.Errorf("Expected stream_protocol_violation, got %v", err)
	}
}

func TestCollectOutOfOrderBlockOpen(t *testing.T) {
	stream := &sliceStream{events: []*StreamEvent{
		textDelta(0, "a"),
		toolOpen(2, "tu-1", "search"),
		stopEvent(StopReasonEndTurn),
	}}

	_, err := Collect(context.Background(), stream, nil)
	if !IsErrorType(err, ErrorTypeStreamProtocol) {
		t.Errorf("Expected stream_protocol_violation for out-of-order open, got %v", err)
	}
}

func TestCollectTextDeltaOnToolBlock(t *testing.T) {
	stream := &sliceStream{events: []*StreamEvent{
		toolOpen(0, "tu-1", "search"),
		textDelta(0, "oops"),
		stopEvent(StopReasonEndTurn),
	}}

	_, err := Collect(context.Background(), stream, nil)
	if !IsErrorType(err, ErrorTypeStreamProtocol) {
		t.Errorf("Expected stream_protocol_violation for type mismatch, got %v", err)
	}
}

func TestCollectMidStreamProducerError(t *testing.T) {
	producerErr := NewTransientError("connection reset", nil)
	stream := &sliceStream{
		events:   []*StreamEvent{textDelta(0, "partial")},
		failWith: producerErr,
	}

	resp, err := Collect(context.Background(), stream, nil)
	if resp != nil {
		t.Error("Expected no response when the producer fails mid-stream")
	}
	if !errors.Is(err, producerErr) {
		t.Errorf("Expected the producer error to surface, got %v", err)
	}
}

func TestCollectMissingTerminalEvent(t *testing.T) {
	stream := &sliceStream{events: []*StreamEvent{textDelta(0, "partial")}}

	_, err := Collect(context.Background(), stream, nil)
	if !IsErrorType(err, ErrorTypeStreamProtocol) {
		t.Errorf("Expected stream_protocol_violation for missing terminal event, got %v", err)
	}
}

func TestCollectForwardsEvents(t *testing.T) {
	stream := &sliceStream{events: []*StreamEvent{
		textDelta(0, "Hel"),
		textDelta(0, "lo"),
		stopEvent(StopReasonEndTurn),
	}}

	var seen []string
	onEvent := func(ev *StreamEvent) error {
		seen = append(seen, string(ev.Type))
		return nil
	}
	if _, err := Collect(context.Background(), stream, onEvent); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(seen) != 3 {
		t.Errorf("Expected 3 forwarded events, got %d", len(seen))
	}
}

func TestCollectCallbackErrorStopsConsumption(t *testing.T) {
	stream := &sliceStream{events: []*StreamEvent{
		textDelta(0, "Hel"),
		textDelta(0, "lo"),
		stopEvent(StopReasonEndTurn),
	}}

	callbackErr := errors.New("consumer gave up")
	_, err := Collect(context.Background(), stream, func(*StreamEvent) error { return callbackErr })
	if !errors.Is(err, callbackErr) {
		t.Errorf("Expected callback error to surface, got %v", err)
	}
	if !stream.closed {
		t.Error("Expected stream closed after callback error")
	}
}

func TestAggregatorRejectsEventsAfterTerminal(t *testing.T) {
	var agg Aggregator
	if err := agg.Apply(stopEvent(StopReasonEndTurn)); err != nil {
		t.Fatalf("Apply terminal event failed: %v", err)
	}
	if err := agg.Apply(textDelta(0, "late")); !IsErrorType(err, ErrorTypeStreamProtocol) {
		t.Errorf("Expected stream_protocol_violation for event after terminal, got %v", err)
	}
}

func TestAggregatorCarriesUsageAndModel(t *testing.T) {
	var agg Aggregator
	events := []*StreamEvent{
		textDelta(0, "hi"),
		{
			Type:       StreamEventTypeStop,
			StopReason: StopReasonEndTurn,
			Usage:      &Usage{InputTokens: 12, OutputTokens: 5},
			Model:      "test-model",
			Done:       true,
		},
	}
	for _, ev := range events {
		if err := agg.Apply(ev); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
	}
	resp, ok := agg.Response()
	if !ok {
		t.Fatal("Expected a final response")
	}
	if resp.Usage == nil || resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 5 {
		t.Errorf("Expected usage carried through, got %+v", resp.Usage)
	}
	if resp.Model != "test-model" {
		t.Errorf("Expected model carried through, got %q", resp.Model)
	}
}
