// Package ollama implements the llm.Client interface for locally hosted
// models served by Ollama.
package ollama

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/modelmux/modelmux/llm"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

// Client implements llm.Client for Ollama's chat API.
type Client struct {
	client *api.Client
	model  string
	logger zerolog.Logger
}

// NewClient creates an Ollama-backed client. An empty host falls back to the
// OLLAMA_HOST environment variable or http://localhost:11434.
func NewClient(host, model string, logger zerolog.Logger) (*Client, error) {
	var client *api.Client

	if host != "" {
		baseURL, err := parseHost(host)
		if err != nil {
			return nil, llm.NewInvalidRequestError("invalid ollama host", err)
		}
		client = api.NewClient(baseURL, &http.Client{})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, llm.NewInvalidRequestError("failed to create ollama client", err)
		}
	}

	return &Client{
		client: client,
		model:  model,
		logger: logger.With().Str("component", "llmOllama").Logger(),
	}, nil
}

// parseHost parses a host string into a URL, defaulting the scheme to http.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
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

	var chatResp api.ChatResponse
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return nil, classifyError(err)
	}

	content := make([]llm.ContentBlock, 0)
	if chatResp.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: chatResp.Message.Content,
		})
	}
	for i, toolCall := range chatResp.Message.ToolCalls {
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: FromToolCall(toolCall, i),
		})
	}

	return &llm.Response{
		Content:    content,
		StopReason: fromDoneReason(chatResp.DoneReason, len(chatResp.Message.ToolCalls) > 0),
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.PromptEvalCount),
			OutputTokens: int64(chatResp.EvalCount),
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

	return newStream(ctx, c.client, chatReq, c.logger), nil
}

// buildRequest assembles the chat request for a prepared request.
func (c *Client) buildRequest(req *llm.Request, streaming bool) (*api.ChatRequest, error) {
	ollamaMsgs, err := ToMessages(req.Messages)
	if err != nil {
		return nil, llm.NewInvalidRequestError("failed to convert messages", err)
	}

	if req.System != "" {
		systemMsg := api.Message{
			Role:    "system",
			Content: req.System,
		}
		ollamaMsgs = append([]api.Message{systemMsg}, ollamaMsgs...)
	}

	stream := streaming
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: ollamaMsgs,
		Stream:   &stream,
		Options:  make(map[string]interface{}),
	}

	if len(req.Tools) > 0 {
		ollamaTools, err := ToTools(req.Tools)
		if err != nil {
			return nil, llm.NewInvalidRequestError("failed to convert tools", err)
		}
		chatReq.Tools = ollamaTools
	}

	if inf := req.Inference; inf != nil {
		if inf.MaxTokens != nil {
			chatReq.Options["num_predict"] = int(*inf.MaxTokens)
		}
		if inf.Temperature != nil {
			chatReq.Options["temperature"] = *inf.Temperature
		}
		if inf.TopP != nil {
			chatReq.Options["top_p"] = *inf.TopP
		}
		if len(inf.StopSequences) > 0 {
			chatReq.Options["stop"] = inf.StopSequences
		}
	}

	return chatReq, nil
}

var _ llm.Client = (*Client)(nil)
