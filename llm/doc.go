// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// This package defines common types, interfaces, and utilities that allow applications
// to work with multiple LLM providers (Anthropic, OpenAI, Ollama, etc.) without being
// tightly coupled to any specific provider's SDK.
//
// # Core Concepts
//
//  1. Messages: The Message type represents a conversation message with a role
//     (system, user, assistant, tool) and content blocks (text, tool use, tool results).
//
//  2. Tools: The ToolSpec type represents a tool definition that can be provided to an LLM,
//     and ToolUseBlock/ToolResultBlock represent tool invocations and their results.
//
//  3. Client Interface: The Client interface provides Synchronous() for non-streaming calls,
//     Stream() for streaming calls, and Capabilities() for introspecting what a backend
//     supports. Implementations handle provider-specific details.
//
//  4. Retry: WithRetry wraps any Client with a retry policy (RetryConfig) that classifies
//     errors as retryable or fatal and waits with exponential backoff between attempts.
//
//  5. Streaming: The Stream interface yields StreamEvent values; the Aggregator (or the
//     Collect helper) folds an event sequence into the same Response a non-streaming
//     call would have produced.
//
//  6. Errors: The Error type provides provider-neutral error handling with a fixed
//     taxonomy (rate limits, transient failures, auth, invalid requests, and so on).
//
// Usage Example
//
//	client, err := anthropic.NewClient(apiKey, "claude-sonnet-4-5", logger)
//	if err != nil { ... }
//
//	// Wrap with retry and logging
//	client, err = llm.WithRetry(client, llm.DefaultRetryConfig(), logger)
//	client = llm.WrapWithMiddleware(client, llm.NewLoggingMiddleware(logger))
//
//	req := &llm.Request{
//	    Messages: []llm.Message{
//	        llm.NewTextMessage(llm.RoleUser, "Hello!"),
//	    },
//	}
//
//	resp, err := client.Synchronous(ctx, req)
//
// # Extension Points
//
// To add a new LLM provider:
//  1. Implement the Client interface, reporting honest Capabilities
//  2. Translate between provider-specific types and llm package types
//  3. Handle provider-specific errors and translate to llm.Error types
//
// A backend that cannot stream must report Capabilities().Streaming == false and
// return an error from Stream rather than emulating streaming by buffering.
package llm
