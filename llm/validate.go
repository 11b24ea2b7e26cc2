package llm

import "fmt"

// ValidateRequest checks that a request is well-formed before it is handed to
// a provider. Providers must never receive a dangling tool reference, so the
// conversation-level checks live here rather than in the adapters.
//
// Returns an invalid_request error for a structurally bad request (no
// messages, duplicate tool names) and an invalid_conversation error for
// broken tool-use/tool-result chains.
func ValidateRequest(req *Request) error {
	if req == nil {
		return NewInvalidRequestError("request is required", nil)
	}
	if len(req.Messages) == 0 {
		return NewInvalidRequestError("request must contain at least one message", nil)
	}

	seen := make(map[string]bool, len(req.Tools))
	for _, tool := range req.Tools {
		if tool.Name == "" {
			return NewInvalidRequestError("tool name must not be empty", nil)
		}
		if seen[tool.Name] {
			return NewInvalidRequestError(fmt.Sprintf("duplicate tool name %q", tool.Name), nil)
		}
		seen[tool.Name] = true
	}

	// Walk the conversation in order: every tool result must reference a tool
	// use emitted earlier, and tool use IDs must be unique.
	emitted := make(map[string]bool)
	for i, msg := range req.Messages {
		if msg.Role == RoleTool {
			if len(msg.Content) != 1 || msg.Content[0].Type != ContentBlockTypeToolResult {
				return NewInvalidConversationError(fmt.Sprintf("message %d: tool-role message must carry exactly one tool result block", i))
			}
		}
		for _, block := range msg.Content {
			switch block.Type {
			case ContentBlockTypeToolUse:
				if block.ToolUse == nil || block.ToolUse.ID == "" {
					return NewInvalidConversationError(fmt.Sprintf("message %d: tool use block missing ID", i))
				}
				if emitted[block.ToolUse.ID] {
					return NewInvalidConversationError(fmt.Sprintf("message %d: duplicate tool use ID %q", i, block.ToolUse.ID))
				}
				emitted[block.ToolUse.ID] = true
			case ContentBlockTypeToolResult:
				if block.ToolResult == nil || block.ToolResult.ToolUseID == "" {
					return NewInvalidConversationError(fmt.Sprintf("message %d: tool result block missing tool use ID", i))
				}
				if !emitted[block.ToolResult.ToolUseID] {
					return NewInvalidConversationError(fmt.Sprintf("message %d: tool result references unknown tool use %q", i, block.ToolResult.ToolUseID))
				}
			}
		}
	}

	return nil
}

// PrepareRequest validates a request and normalizes it against the backend's
// capabilities: a missing model resolves to the backend default, an absent
// inference config is passed through unset. The caller's request is never
// mutated; the returned request is what the provider should send.
func PrepareRequest(req *Request, caps Capabilities) (*Request, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if len(req.Tools) > 0 && !caps.ToolCalling {
		return nil, NewInvalidRequestError("backend does not support tool calling", nil)
	}

	prepared := req.Clone()
	if prepared.Model == "" {
		prepared.Model = caps.DefaultModel
	}
	if prepared.Model == "" {
		return nil, NewInvalidRequestError("model is required and backend declares no default", nil)
	}
	return prepared, nil
}
