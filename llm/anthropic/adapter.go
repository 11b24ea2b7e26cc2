package anthropic

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/modelmux/modelmux/llm"
	"github.com/samber/lo"
)

// ToMessageParam converts an llm.Message to an Anthropic MessageParam.
// Tool-role messages carry their result blocks as user content, which is how
// the Anthropic API expects tool results to come back.
func ToMessageParam(msg llm.Message) (anthropic.MessageParam, error) {
	contentBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case llm.ContentBlockTypeText:
			contentBlocks = append(contentBlocks, anthropic.NewTextBlock(block.Text))
		case llm.ContentBlockTypeToolUse:
			if block.ToolUse != nil {
				contentBlocks = append(contentBlocks, anthropic.NewToolUseBlock(
					block.ToolUse.ID,
					block.ToolUse.Input,
					block.ToolUse.Name,
				))
			}
		case llm.ContentBlockTypeToolResult:
			if block.ToolResult != nil {
				contentBlocks = append(contentBlocks, anthropic.NewToolResultBlock(
					block.ToolResult.ToolUseID,
					block.ToolResult.Content,
					block.ToolResult.IsError,
				))
			}
		}
	}

	switch msg.Role {
	case llm.RoleAssistant:
		return anthropic.NewAssistantMessage(contentBlocks...), nil
	default:
		// User and tool roles both travel as user messages.
		return anthropic.NewUserMessage(contentBlocks...), nil
	}
}

// ToMessageParams converts a slice of llm.Messages to Anthropic MessageParams.
func ToMessageParams(msgs []llm.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		anthMsg, err := ToMessageParam(msg)
		if err != nil {
			return nil, err
		}
		result = append(result, anthMsg)
	}
	return result, nil
}

// ToToolUnionParam converts an llm.ToolSpec to an Anthropic ToolUnionParam.
func ToToolUnionParam(spec *llm.ToolSpec) anthropic.ToolUnionParam {
	toolParam := anthropic.ToolParam{
		Name:        spec.Name,
		Description: anthropic.String(spec.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type:        "object",
			Properties:  spec.Schema.Properties,
			Required:    spec.Schema.Required,
			ExtraFields: spec.Schema.ExtraFields,
		},
	}

	return anthropic.ToolUnionParam{OfTool: &toolParam}
}

// ToToolUnionParams converts a slice of llm.ToolSpecs to Anthropic ToolUnionParams.
func ToToolUnionParams(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) anthropic.ToolUnionParam {
		return ToToolUnionParam(&spec)
	})
}

// fromStopReason maps Anthropic stop reasons onto the neutral set. Anthropic
// uses the same wire values, so unknown reasons default to end_turn.
func fromStopReason(reason string) llm.StopReason {
	switch reason {
	case "end_turn":
		return llm.StopReasonEndTurn
	case "tool_use":
		return llm.StopReasonToolUse
	case "max_tokens":
		return llm.StopReasonMaxTokens
	case "stop_sequence":
		return llm.StopReasonStopSequence
	default:
		return llm.StopReasonEndTurn
	}
}

// classifyError maps an Anthropic SDK error into the neutral error taxonomy.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		// Transport-level failures (timeouts, connection resets) are transient.
		return llm.NewTransientError(err.Error(), err)
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		return llm.NewRateLimitError(apiErr.Error(), retryAfterHint(apiErr.Response), err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewAuthError(apiErr.Error(), err)
	case http.StatusRequestEntityTooLarge:
		return llm.NewContextTooLongError(apiErr.Error(), err)
	case http.StatusBadRequest:
		// Anthropic reports oversized prompts as a 400 invalid_request_error.
		if isPromptTooLong(apiErr) {
			return llm.NewContextTooLongError(apiErr.Error(), err)
		}
		return llm.NewInvalidRequestError(apiErr.Error(), err)
	case http.StatusRequestTimeout, 529:
		return llm.NewTransientError(apiErr.Error(), err)
	}
	if apiErr.StatusCode >= 500 {
		return llm.NewTransientError(apiErr.Error(), err)
	}
	return llm.NewUnknownError(apiErr.Error(), err)
}

func isPromptTooLong(apiErr *anthropic.Error) bool {
	body := strings.ToLower(apiErr.Error())
	return strings.Contains(body, "prompt is too long") || strings.Contains(body, "context length")
}

// retryAfterHint extracts a Retry-After duration from the HTTP response, if any.
func retryAfterHint(resp *http.Response) *time.Duration {
	if resp == nil {
		return nil
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		d := time.Duration(seconds) * time.Second
		return &d
	}
	if at, err := http.ParseTime(header); err == nil {
		d := time.Until(at)
		if d > 0 {
			return &d
		}
	}
	return nil
}
