package ollama

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/modelmux/modelmux/llm"
	"github.com/ollama/ollama/api"
)

// ToMessages converts llm.Messages to Ollama chat message format. Tool use
// IDs are a neutral-model concept; Ollama identifies calls by function name
// only, so IDs are dropped on the way out and synthesized on the way back.
func ToMessages(msgs []llm.Message) ([]api.Message, error) {
	result := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		ollamaMsg, err := ToMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to convert message: %w", err)
		}
		result = append(result, ollamaMsg)
	}
	return result, nil
}

// ToMessage converts a single llm.Message to Ollama format.
func ToMessage(msg llm.Message) (api.Message, error) {
	var content string
	var toolCalls []api.ToolCall

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			if content != "" {
				content += "\n"
			}
			content += block.Text
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse != nil {
				args := make(api.ToolCallFunctionArguments)
				for k, v := range block.ToolUse.Input {
					args[k] = v
				}
				toolCalls = append(toolCalls, api.ToolCall{
					Function: api.ToolCallFunction{
						Name:      block.ToolUse.Name,
						Arguments: args,
					},
				})
			}
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				if content != "" {
					content += "\n"
				}
				content += block.ToolResult.Content
			}
		}
	}

	role := string(msg.Role)
	if msg.Role == llm.RoleTool {
		role = "tool"
	}

	return api.Message{
		Role:      role,
		Content:   content,
		ToolCalls: toolCalls,
	}, nil
}

// ToTools converts llm.ToolSpecs to Ollama function format.
func ToTools(specs []llm.ToolSpec) ([]api.Tool, error) {
	result := make([]api.Tool, 0, len(specs))
	for i := range specs {
		tool, err := ToTool(&specs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert tool %s: %w", specs[i].Name, err)
		}
		result = append(result, tool)
	}
	return result, nil
}

// ToTool converts a single llm.ToolSpec to Ollama Tool format. Ollama's
// parameter schema is typed, so only the type field of each property survives
// the conversion; richer schema constraints stay with providers that accept
// raw JSON schema.
func ToTool(spec *llm.ToolSpec) (api.Tool, error) {
	properties := make(map[string]api.ToolProperty)
	for k, v := range spec.Schema.Properties {
		if propMap, ok := v.(map[string]interface{}); ok {
			toolProp := api.ToolProperty{}
			if propType, ok := propMap["type"].(string); ok {
				toolProp.Type = []string{propType}
			}
			if desc, ok := propMap["description"].(string); ok {
				toolProp.Description = desc
			}
			properties[k] = toolProp
		} else {
			properties[k] = api.ToolProperty{Type: []string{"string"}}
		}
	}

	schemaType := spec.Schema.Type
	if schemaType == "" {
		schemaType = "object"
	}

	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: api.ToolFunctionParameters{
				Type:       schemaType,
				Properties: properties,
				Required:   spec.Schema.Required,
			},
		},
	}, nil
}

// FromToolCall converts an Ollama tool call to llm.ToolUseBlock. Ollama does
// not assign call IDs, so one is synthesized from the function name and the
// call's position in the response.
func FromToolCall(toolCall api.ToolCall, position int) *llm.ToolUseBlock {
	input := make(map[string]interface{})
	for k, v := range toolCall.Function.Arguments {
		input[k] = v
	}
	return &llm.ToolUseBlock{
		ID:    fmt.Sprintf("call_%s_%d", toolCall.Function.Name, position),
		Name:  toolCall.Function.Name,
		Input: input,
	}
}

// fromDoneReason maps Ollama done reasons onto the neutral stop reasons.
func fromDoneReason(reason string, hasToolCalls bool) llm.StopReason {
	if hasToolCalls {
		return llm.StopReasonToolUse
	}
	switch reason {
	case "length":
		return llm.StopReasonMaxTokens
	default:
		return llm.StopReasonEndTurn
	}
}

// classifyError maps an Ollama API error into the neutral error taxonomy.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr api.StatusError
	if !errors.As(err, &statusErr) {
		return llm.NewTransientError(err.Error(), err)
	}

	switch statusErr.StatusCode {
	case http.StatusTooManyRequests:
		return llm.NewRateLimitError(statusErr.Error(), nil, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewAuthError(statusErr.Error(), err)
	case http.StatusBadRequest, http.StatusNotFound:
		return llm.NewInvalidRequestError(statusErr.Error(), err)
	}
	if statusErr.StatusCode >= 500 {
		return llm.NewTransientError(statusErr.Error(), err)
	}
	return llm.NewUnknownError(statusErr.Error(), err)
}
