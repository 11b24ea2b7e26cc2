// Package anthropic implements the llm.Client interface on top of the
// official Anthropic SDK.
package anthropic

import (
	"context"
	"encoding/json"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/modelmux/modelmux/llm"
	"github.com/rs/zerolog"
)

// defaultMaxTokens applies when the request carries no max token setting;
// the Anthropic API requires an explicit value.
const defaultMaxTokens = 4096

// Client implements llm.Client for Anthropic's Messages API.
type Client struct {
	client *anthropic.Client
	model  string
	logger zerolog.Logger
}

// NewClient creates an Anthropic-backed client. The model is used as the
// default for requests that do not name one.
func NewClient(apiKey, model string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, llm.NewAuthError("anthropic api key is required", nil)
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  model,
		logger: logger.With().Str("component", "llmAnthropic").Logger(),
	}, nil
}

// Capabilities implements llm.Client.Capabilities.
func (c *Client) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		Streaming:    true,
		ToolCalling:  true,
		DefaultModel: c.model,
	}
}

// Synchronous implements llm.Client.Synchronous.
func (c *Client) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	prepared, err := llm.PrepareRequest(req, c.Capabilities())
	if err != nil {
		return nil, err
	}

	params, err := c.buildParams(prepared)
	if err != nil {
		return nil, err
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	content := make([]llm.ContentBlock, 0, len(message.Content))
	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeText,
				Text: block.Text,
			})
		case anthropic.ToolUseBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeToolUse,
				ToolUse: &llm.ToolUseBlock{
					ID:    block.ID,
					Name:  block.Name,
					Input: decodeToolInput(block.Input),
				},
			})
		}
	}

	usage := &llm.Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}
	c.logCacheStats(usage)

	return &llm.Response{
		Content:    content,
		StopReason: fromStopReason(string(message.StopReason)),
		Usage:      usage,
		Model:      string(message.Model),
	}, nil
}

// Stream implements llm.Client.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	prepared, err := llm.PrepareRequest(req, c.Capabilities())
	if err != nil {
		return nil, err
	}

	params, err := c.buildParams(prepared)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	return newStream(ctx, stream, c.logger), nil
}

// buildParams assembles the MessageNewParams for a prepared request.
func (c *Client) buildParams(req *llm.Request) (anthropic.MessageNewParams, error) {
	anthropicMsgs, err := ToMessageParams(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, llm.NewInvalidRequestError("failed to convert messages", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: defaultMaxTokens,
		Messages:  anthropicMsgs,
		Tools:     ToToolUnionParams(req.Tools),
	}

	if req.System != "" {
		// Cache control on the system block caches the full prefix: tools,
		// system, and messages up to the marked block.
		params.System = []anthropic.TextBlockParam{
			{Text: req.System, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		}
	}

	if inf := req.Inference; inf != nil {
		if inf.MaxTokens != nil {
			params.MaxTokens = *inf.MaxTokens
		}
		if inf.Temperature != nil {
			params.Temperature = anthropic.Float(*inf.Temperature)
		}
		if inf.TopP != nil {
			params.TopP = anthropic.Float(*inf.TopP)
		}
		if len(inf.StopSequences) > 0 {
			params.StopSequences = inf.StopSequences
		}
	}

	return params, nil
}

// decodeToolInput converts the SDK's tool input into a plain map.
func decodeToolInput(raw interface{}) map[string]interface{} {
	input := make(map[string]interface{})
	if raw == nil {
		return input
	}
	inputBytes, err := json.Marshal(raw)
	if err != nil {
		return input
	}
	if err := json.Unmarshal(inputBytes, &input); err != nil {
		return make(map[string]interface{})
	}
	return input
}

// logCacheStats logs prompt cache efficacy when caching was in play.
func (c *Client) logCacheStats(usage *llm.Usage) {
	if usage.CacheCreationInputTokens == 0 && usage.CacheReadInputTokens == 0 {
		return
	}
	cacheEfficiency := float64(0)
	if usage.InputTokens > 0 {
		cacheEfficiency = float64(usage.CacheReadInputTokens) / float64(usage.InputTokens) * 100
	}
	c.logger.Debug().
		Int64("input_tokens", usage.InputTokens).
		Int64("cache_creation_tokens", usage.CacheCreationInputTokens).
		Int64("cache_read_tokens", usage.CacheReadInputTokens).
		Float64("cache_efficiency", cacheEfficiency).
		Msg("Prompt cache stats")
}

var _ llm.Client = (*Client)(nil)
