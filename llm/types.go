package llm

import (
	"encoding/json"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message represents a single message in a conversation.
// This is provider-neutral and can represent system, user, assistant, or tool messages.
type Message struct {
	Role    MessageRole
	Content []ContentBlock
}

// ContentBlock represents a single content block within a message.
// It can be text, a tool use, or a tool result.
type ContentBlock struct {
	Type       ContentBlockType
	Text       string           // For text blocks
	ToolUse    *ToolUseBlock    // For tool use blocks
	ToolResult *ToolResultBlock // For tool result blocks
}

// ContentBlockType represents the type of content block.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
)

// ToolUseBlock represents a tool invocation request from the assistant.
// IDs must be unique within a conversation.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]interface{} // JSON-serializable input parameters
}

// ToolResultBlock represents the result of a tool invocation.
// ToolUseID must reference a ToolUseBlock emitted earlier in the conversation.
type ToolResultBlock struct {
	ToolUseID string
	Content   string // JSON-serialized result
	IsError   bool
}

// ToolSpec represents a tool definition that can be provided to an LLM.
// Immutable once attached to a Request.
type ToolSpec struct {
	Name        string
	Description string
	Schema      ToolSchema
}

// ToolSchema represents the JSON schema for a tool's input parameters.
// The core never interprets it beyond passing it through to the provider.
type ToolSchema struct {
	Type        string
	Properties  map[string]interface{}
	Required    []string
	ExtraFields map[string]interface{} // For any additional schema fields
}

// InferenceConfig carries optional inference parameters. Unset fields are
// passed through unset so the provider applies its own defaults.
type InferenceConfig struct {
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int64
	StopSequences []string
}

// Request represents a complete LLM API request.
type Request struct {
	Model     string // Optional; empty resolves to the backend's default model
	Messages  []Message
	System    string
	Tools     []ToolSpec
	Inference *InferenceConfig
	SessionID string // Opaque caller-supplied correlation token, never interpreted
}

// Clone returns a shallow copy of the request. Message, tool, and inference
// data is shared; callers must treat requests as immutable once issued.
func (r *Request) Clone() *Request {
	cp := *r
	return &cp
}

// StopReason represents the terminal condition that ended a generation turn.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
)

// Response represents a complete LLM API response.
// StopReason is tool_use if and only if Content contains a tool use block.
type Response struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      *Usage
	Model      string // Model actually used
}

// ToolUses returns the tool use blocks in the response, in order.
func (r *Response) ToolUses() []*ToolUseBlock {
	var uses []*ToolUseBlock
	for _, block := range r.Content {
		if block.Type == ContentBlockTypeToolUse && block.ToolUse != nil {
			uses = append(uses, block.ToolUse)
		}
	}
	return uses
}

// Text returns the concatenated text content of the response.
func (r *Response) Text() string {
	var text string
	for _, block := range r.Content {
		if block.Type == ContentBlockTypeText {
			text += block.Text
		}
	}
	return text
}

// Usage represents token usage information from an LLM response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	// Provider-specific usage fields can be added here
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// StreamDelta represents a single delta in a streaming response.
type StreamDelta struct {
	Type      StreamDeltaType
	Text      string        // For text deltas
	ToolUse   *ToolUseBlock // For tool use start
	ToolInput string        // For tool input JSON deltas
}

// StreamDeltaType represents the type of streaming delta.
type StreamDeltaType string

const (
	StreamDeltaTypeText      StreamDeltaType = "text"
	StreamDeltaTypeToolUse   StreamDeltaType = "tool_use"
	StreamDeltaTypeToolInput StreamDeltaType = "tool_input"
)

// StreamEvent represents a complete streaming event. Content events carry the
// index of the output block they open or extend; block indices are
// monotonically increasing within a stream.
type StreamEvent struct {
	Type       StreamEventType
	BlockIndex int
	Delta      *StreamDelta
	StopReason StopReason // Set on stop events
	Usage      *Usage     // Set on stop events
	Model      string     // Set on stop events
	Done       bool
}

// StreamEventType represents the type of streaming event.
type StreamEventType string

const (
	StreamEventTypeStart        StreamEventType = "start"
	StreamEventTypeContentBlock StreamEventType = "content_block"
	StreamEventTypeContentDelta StreamEventType = "content_delta"
	StreamEventTypeStop         StreamEventType = "stop"
)

// NewTextMessage creates a new message with a single text content block.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{
				Type: ContentBlockTypeText,
				Text: text,
			},
		},
	}
}

// NewToolUseMessage creates a new assistant message with tool use blocks.
func NewToolUseMessage(toolUses []ToolUseBlock) Message {
	content := make([]ContentBlock, len(toolUses))
	for i, tu := range toolUses {
		content[i] = ContentBlock{
			Type:    ContentBlockTypeToolUse,
			ToolUse: &tu,
		}
	}
	return Message{
		Role:    RoleAssistant,
		Content: content,
	}
}

// NewToolResultMessage creates a new user message with tool result blocks.
func NewToolResultMessage(toolResults []ToolResultBlock) Message {
	content := make([]ContentBlock, len(toolResults))
	for i, tr := range toolResults {
		content[i] = ContentBlock{
			Type:       ContentBlockTypeToolResult,
			ToolResult: &tr,
		}
	}
	return Message{
		Role:    RoleUser,
		Content: content,
	}
}

// NewToolMessage creates a tool-role message carrying a single tool result.
// Tool-role messages must carry exactly one result block.
func NewToolMessage(result ToolResultBlock) Message {
	return Message{
		Role: RoleTool,
		Content: []ContentBlock{
			{
				Type:       ContentBlockTypeToolResult,
				ToolResult: &result,
			},
		},
	}
}

// ToJSON marshals a message to JSON for debugging/logging purposes.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
