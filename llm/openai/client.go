// Package openai implements the llm.Client interface for OpenAI's chat
// completions API and OpenAI-compatible endpoints.
package openai

import (
	"context"

	"github.com/modelmux/modelmux/llm"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// Client implements llm.Client for OpenAI's API.
type Client struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// NewClient creates an OpenAI-backed client. baseURL and organization are
// optional; a custom baseURL points the client at an OpenAI-compatible
// endpoint.
func NewClient(apiKey, baseURL, model, organization string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, llm.NewAuthError("openai api key is required", nil)
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger.With().Str("component", "llmOpenAI").Logger(),
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

	chatReq, err := c.buildRequest(prepared, false)
	if err != nil {
		return nil, err
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.NewUnknownError("openai response carried no choices", nil)
	}

	choice := chatResp.Choices[0]
	content := make([]llm.ContentBlock, 0)
	if choice.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: choice.Message.Content,
		})
	}
	for _, toolCall := range choice.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromToolCall(toolCall),
		})
	}

	return &llm.Response{
		Content:    content,
		StopReason: fromFinishReason(choice.FinishReason),
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.Usage.PromptTokens),
			OutputTokens: int64(chatResp.Usage.CompletionTokens),
		},
		Model: chatResp.Model,
	}, nil
}

// Stream implements llm.Client.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	prepared, err := llm.PrepareRequest(req, c.Capabilities())
	if err != nil {
		return nil, err
	}

	chatReq, err := c.buildRequest(prepared, true)
	if err != nil {
		return nil, err
	}

	sdkStream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, classifyError(err)
	}
	return newStream(ctx, sdkStream), nil
}

// buildRequest assembles the chat completion request for a prepared request.
func (c *Client) buildRequest(req *llm.Request, streaming bool) (openai.ChatCompletionRequest, error) {
	openaiMsgs, err := ToMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, llm.NewInvalidRequestError("failed to convert messages", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: openaiMsgs,
	}

	if req.System != "" {
		systemMsg := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		}
		chatReq.Messages = append([]openai.ChatCompletionMessage{systemMsg}, openaiMsgs...)
	}

	if len(req.Tools) > 0 {
		openaiTools, err := ToTools(req.Tools)
		if err != nil {
			return openai.ChatCompletionRequest{}, llm.NewInvalidRequestError("failed to convert tools", err)
		}
		chatReq.Tools = openaiTools
		chatReq.ToolChoice = "auto"
	}

	if inf := req.Inference; inf != nil {
		if inf.MaxTokens != nil {
			chatReq.MaxTokens = int(*inf.MaxTokens)
		}
		if inf.Temperature != nil {
			chatReq.Temperature = float32(*inf.Temperature)
		}
		if inf.TopP != nil {
			chatReq.TopP = float32(*inf.TopP)
		}
		if len(inf.StopSequences) > 0 {
			chatReq.Stop = inf.StopSequences
		}
	}

	if streaming {
		chatReq.Stream = true
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	return chatReq, nil
}

var _ llm.Client = (*Client)(nil)
