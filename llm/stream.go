package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Aggregator folds an ordered sequence of stream events into the Response a
// non-streaming call would have produced. It is single-consumer and assumes
// events arrive in one ordered sequence per call.
//
// Blocks are keyed by index: an event may open a new block only at index
// len(blocks), and deltas must match the open block's index and type. Any
// other shape is a stream protocol violation.
type Aggregator struct {
	blocks    []ContentBlock
	open      bool
	toolInput strings.Builder
	resp      *Response
}

// Apply folds one event into the aggregate. A returned error is a
// stream_protocol_violation; the aggregate is unusable afterwards.
func (a *Aggregator) Apply(ev *StreamEvent) error {
	if ev == nil {
		return NewStreamProtocolError("nil stream event")
	}
	if a.resp != nil {
		return NewStreamProtocolError("event received after terminal event")
	}

	switch ev.Type {
	case StreamEventTypeStart:
		return nil

	case StreamEventTypeContentBlock:
		return a.openBlock(ev)

	case StreamEventTypeContentDelta:
		// A text delta at the next index implicitly opens a text block.
		if ev.Delta != nil && ev.Delta.Type == StreamDeltaTypeText && ev.BlockIndex == len(a.blocks) {
			return a.openBlock(ev)
		}
		return a.appendDelta(ev)

	case StreamEventTypeStop:
		a.closeBlock()
		return a.finish(ev)

	default:
		return NewStreamProtocolError(fmt.Sprintf("unknown stream event type %q", ev.Type))
	}
}

// openBlock starts block ev.BlockIndex, closing the previous block if one is
// still open. Out-of-order opens are protocol violations.
func (a *Aggregator) openBlock(ev *StreamEvent) error {
	if ev.Delta == nil {
		return NewStreamProtocolError("content block event missing delta")
	}
	if a.open {
		a.closeBlock()
	}
	if ev.BlockIndex != len(a.blocks) {
		return NewStreamProtocolError(fmt.Sprintf("block opened at index %d, expected %d", ev.BlockIndex, len(a.blocks)))
	}

	switch ev.Delta.Type {
	case StreamDeltaTypeText:
		a.blocks = append(a.blocks, ContentBlock{
			Type: ContentBlockTypeText,
			Text: ev.Delta.Text,
		})
	case StreamDeltaTypeToolUse:
		if ev.Delta.ToolUse == nil {
			return NewStreamProtocolError("tool use block event missing tool use header")
		}
		tu := *ev.Delta.ToolUse
		a.blocks = append(a.blocks, ContentBlock{
			Type:    ContentBlockTypeToolUse,
			ToolUse: &tu,
		})
		a.toolInput.Reset()
	default:
		return NewStreamProtocolError(fmt.Sprintf("block opened with delta type %q", ev.Delta.Type))
	}

	a.open = true
	return nil
}

// appendDelta extends the currently open block.
func (a *Aggregator) appendDelta(ev *StreamEvent) error {
	if ev.Delta == nil {
		return NewStreamProtocolError("content delta event missing delta")
	}
	if !a.open || ev.BlockIndex != len(a.blocks)-1 {
		return NewStreamProtocolError(fmt.Sprintf("delta for block %d but no block open at that index", ev.BlockIndex))
	}

	current := &a.blocks[len(a.blocks)-1]
	switch ev.Delta.Type {
	case StreamDeltaTypeText:
		if current.Type != ContentBlockTypeText {
			return NewStreamProtocolError("text delta appended to non-text block")
		}
		current.Text += ev.Delta.Text
	case StreamDeltaTypeToolInput:
		if current.Type != ContentBlockTypeToolUse {
			return NewStreamProtocolError("tool input delta appended to non-tool block")
		}
		a.toolInput.WriteString(ev.Delta.ToolInput)
	default:
		return NewStreamProtocolError(fmt.Sprintf("delta type %q cannot extend a block", ev.Delta.Type))
	}
	return nil
}

// closeBlock finalizes the open block, parsing accumulated tool input JSON.
func (a *Aggregator) closeBlock() {
	if !a.open {
		return
	}
	current := &a.blocks[len(a.blocks)-1]
	if current.Type == ContentBlockTypeToolUse {
		// Input supplied in the open header stands unless fragments arrived.
		if a.toolInput.Len() > 0 {
			input := make(map[string]interface{})
			if err := json.Unmarshal([]byte(a.toolInput.String()), &input); err != nil {
				input = make(map[string]interface{})
			}
			current.ToolUse.Input = input
		} else if current.ToolUse.Input == nil {
			current.ToolUse.Input = make(map[string]interface{})
		}
		a.toolInput.Reset()
	}
	a.open = false
}

// finish builds the final response from the terminal event. The stop reason
// is normalized so that tool_use is reported if and only if the output
// carries a tool use block: backends that signal tool stops only through a
// finish reason are corrected, and a tool_use claim without tool blocks is a
// protocol violation.
func (a *Aggregator) finish(ev *StreamEvent) error {
	hasToolUse := false
	for _, block := range a.blocks {
		if block.Type == ContentBlockTypeToolUse {
			hasToolUse = true
			break
		}
	}

	stopReason := ev.StopReason
	if hasToolUse {
		stopReason = StopReasonToolUse
	} else if stopReason == StopReasonToolUse {
		return NewStreamProtocolError("terminal event reports tool_use but stream carried no tool use block")
	}
	if stopReason == "" {
		stopReason = StopReasonEndTurn
	}

	a.resp = &Response{
		Content:    a.blocks,
		StopReason: stopReason,
		Usage:      ev.Usage,
		Model:      ev.Model,
	}
	return nil
}

// Response returns the final response once the terminal event has been
// applied. ok is false while the stream is still in progress.
func (a *Aggregator) Response() (*Response, bool) {
	if a.resp == nil {
		return nil, false
	}
	return a.resp, true
}

// Collect drains a stream in a single pass: every event is forwarded to
// onEvent (which may be nil) as it arrives, and on normal completion the
// aggregated Response is returned. If the producer fails mid-stream, or
// onEvent returns an error, no response is returned and partial state is
// discarded.
func Collect(ctx context.Context, stream Stream, onEvent func(*StreamEvent) error) (*Response, error) {
	defer stream.Close()

	var agg Aggregator
	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev := stream.Event()
		if ev == nil {
			break
		}
		if onEvent != nil {
			if err := onEvent(ev); err != nil {
				return nil, err
			}
		}
		if err := agg.Apply(ev); err != nil {
			return nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	resp, ok := agg.Response()
	if !ok {
		return nil, NewStreamProtocolError("stream ended without a terminal event")
	}
	return resp, nil
}
