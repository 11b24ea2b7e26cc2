// Package mcptool bridges MCP tool definitions into the neutral tool model,
// so tools discovered over the Model Context Protocol can be offered to any
// backend.
package mcptool

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/modelmux/modelmux/llm"
)

// NameAdapter maps between MCP tool names (which may contain dots) and safe
// tool names accepted by provider APIs.
type NameAdapter struct {
	safeToOriginal map[string]string
	originalToSafe map[string]string
}

// NewNameAdapter creates a new name adapter.
func NewNameAdapter() *NameAdapter {
	return &NameAdapter{
		safeToOriginal: make(map[string]string),
		originalToSafe: make(map[string]string),
	}
}

// ToSafeName converts an MCP tool name to a safe name by replacing dots with
// underscores. Example: "gmail.messages.list" -> "gmail_messages_list"
func ToSafeName(original string) string {
	return strings.ReplaceAll(original, ".", "_")
}

// ToOriginalName converts a safe name back to the original MCP tool name.
func (a *NameAdapter) ToOriginalName(safe string) (string, bool) {
	original, ok := a.safeToOriginal[safe]
	return original, ok
}

// RegisterMapping registers a bidirectional mapping between original and safe names.
func (a *NameAdapter) RegisterMapping(original, safe string) {
	a.originalToSafe[original] = safe
	a.safeToOriginal[safe] = original
}

// GetSafeName returns the safe name for an original name, creating the
// mapping if needed.
func (a *NameAdapter) GetSafeName(original string) string {
	if safe, ok := a.originalToSafe[original]; ok {
		return safe
	}
	safe := ToSafeName(original)
	a.RegisterMapping(original, safe)
	return safe
}

// ToToolSpec converts an MCP tool definition to an llm.ToolSpec, registering
// the name mapping on the adapter.
func (a *NameAdapter) ToToolSpec(tool mcp.Tool) llm.ToolSpec {
	schemaType := tool.InputSchema.Type
	if schemaType == "" {
		schemaType = "object"
	}

	properties := make(map[string]interface{})
	for k, v := range tool.InputSchema.Properties {
		properties[k] = v
	}

	return llm.ToolSpec{
		Name:        a.GetSafeName(tool.Name),
		Description: tool.Description,
		Schema: llm.ToolSchema{
			Type:       schemaType,
			Properties: properties,
			Required:   tool.InputSchema.Required,
		},
	}
}

// ToToolSpecs converts a slice of MCP tools to llm.ToolSpecs.
func (a *NameAdapter) ToToolSpecs(tools []mcp.Tool) []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(tools))
	for _, tool := range tools {
		specs = append(specs, a.ToToolSpec(tool))
	}
	return specs
}

// FromCallToolResult converts an MCP tool call result into a tool result
// block answering the given tool use. Non-text content is skipped.
func FromCallToolResult(toolUseID string, result *mcp.CallToolResult) llm.ToolResultBlock {
	var content strings.Builder
	for _, item := range result.Content {
		if text, ok := mcp.AsTextContent(item); ok {
			content.WriteString(text.Text)
		}
	}
	return llm.ToolResultBlock{
		ToolUseID: toolUseID,
		Content:   content.String(),
		IsError:   result.IsError,
	}
}
