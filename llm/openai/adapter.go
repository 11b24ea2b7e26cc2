package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelmux/modelmux/llm"
	openai "github.com/sashabaranov/go-openai"
)

// The OpenAI API does not expose retry-after headers through the SDK error
// type, so rate limits fall back to a fixed hint.
const defaultRetryAfter = 60 * time.Second

// ToMessages converts llm.Messages to OpenAI chat message format. A single
// neutral message can expand to several OpenAI messages: each tool result
// block becomes its own tool-role message keyed by the tool call ID.
func ToMessages(msgs []llm.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		converted, err := ToMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to convert message: %w", err)
		}
		result = append(result, converted...)
	}
	return result, nil
}

// ToMessage converts a single llm.Message to OpenAI format.
func ToMessage(msg llm.Message) ([]openai.ChatCompletionMessage, error) {
	var role string
	switch msg.Role {
	case llm.RoleAssistant:
		role = openai.ChatMessageRoleAssistant
	case llm.RoleSystem:
		role = openai.ChatMessageRoleSystem
	default:
		role = openai.ChatMessageRoleUser
	}

	var content string
	var toolCalls []openai.ToolCall
	var toolResults []openai.ChatCompletionMessage

	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			if content != "" {
				content += "\n"
			}
			content += block.Text
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse != nil {
				argsJSON, err := json.Marshal(block.ToolUse.Input)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool input: %w", err)
				}
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   block.ToolUse.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      block.ToolUse.Name,
						Arguments: string(argsJSON),
					},
				})
			}
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				toolResults = append(toolResults, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    block.ToolResult.Content,
					ToolCallID: block.ToolResult.ToolUseID,
				})
			}
		}
	}

	var result []openai.ChatCompletionMessage
	if content != "" || len(toolCalls) > 0 {
		result = append(result, openai.ChatCompletionMessage{
			Role:      role,
			Content:   content,
			ToolCalls: toolCalls,
		})
	}
	result = append(result, toolResults...)
	return result, nil
}

// ToTools converts llm.ToolSpecs to OpenAI function format.
func ToTools(specs []llm.ToolSpec) ([]openai.Tool, error) {
	result := make([]openai.Tool, 0, len(specs))
	for i := range specs {
		tool, err := ToTool(&specs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert tool %s: %w", specs[i].Name, err)
		}
		result = append(result, tool)
	}
	return result, nil
}

// ToTool converts a single llm.ToolSpec to OpenAI Tool format.
func ToTool(spec *llm.ToolSpec) (openai.Tool, error) {
	properties := make(map[string]interface{})
	for k, v := range spec.Schema.Properties {
		properties[k] = v
	}

	schemaType := spec.Schema.Type
	if schemaType == "" {
		schemaType = "object"
	}
	parameters := map[string]interface{}{
		"type":       schemaType,
		"properties": properties,
	}
	if len(spec.Schema.Required) > 0 {
		parameters["required"] = spec.Schema.Required
	}
	for k, v := range spec.Schema.ExtraFields {
		parameters[k] = v
	}

	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  parameters,
		},
	}, nil
}

// FromToolCall converts an OpenAI tool call response to llm.ToolUseBlock.
func FromToolCall(toolCall openai.ToolCall) *llm.ToolUseBlock {
	input := make(map[string]interface{})
	if toolCall.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &input); err != nil {
			input = make(map[string]interface{})
		}
	}
	return &llm.ToolUseBlock{
		ID:    toolCall.ID,
		Name:  toolCall.Function.Name,
		Input: input,
	}
}

// fromFinishReason maps OpenAI finish reasons onto the neutral stop reasons.
func fromFinishReason(reason openai.FinishReason) llm.StopReason {
	switch reason {
	case openai.FinishReasonLength:
		return llm.StopReasonMaxTokens
	case openai.FinishReasonToolCalls:
		return llm.StopReasonToolUse
	default:
		return llm.StopReasonEndTurn
	}
}

// classifyError maps an OpenAI SDK error into the neutral error taxonomy.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return llm.NewTransientError(err.Error(), err)
	}

	switch apiErr.HTTPStatusCode {
	case http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		return llm.NewRateLimitError(
			fmt.Sprintf("openai rate limit: %s", apiErr.Message),
			&retryAfter,
			err,
		)
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewAuthError(fmt.Sprintf("openai auth failure: %s", apiErr.Message), err)
	case http.StatusRequestEntityTooLarge:
		return llm.NewContextTooLongError(fmt.Sprintf("openai request too large: %s", apiErr.Message), err)
	case http.StatusBadRequest:
		if strings.Contains(strings.ToLower(apiErr.Message), "maximum context length") {
			return llm.NewContextTooLongError(fmt.Sprintf("openai context overflow: %s", apiErr.Message), err)
		}
		return llm.NewInvalidRequestError(fmt.Sprintf("openai invalid request: %s", apiErr.Message), err)
	case http.StatusRequestTimeout:
		return llm.NewTransientError(fmt.Sprintf("openai timeout: %s", apiErr.Message), err)
	}
	if apiErr.HTTPStatusCode >= 500 {
		return llm.NewTransientError(fmt.Sprintf("openai server error: %s", apiErr.Message), err)
	}
	return llm.NewUnknownError(fmt.Sprintf("openai api error: %s", apiErr.Message), err)
}
