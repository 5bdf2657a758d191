// Package llm provides the chat model client and the per-request
// session abstraction the orchestrator drives.
package llm

import "context"

// Message represents a chat message for the model.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	Images     []string   `json:"images,omitempty"` // base64-encoded inline attachments
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool responses
}

// ToolCall represents a function call emitted by the model.
type ToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// ChatResponse is the unified reply from the chat endpoint.
type ChatResponse struct {
	Model   string
	Message Message
	Done    bool

	InputTokens  int
	OutputTokens int
}

// Client is the chat completion interface. Tools follow the JSON
// function-declaration shape; nil means no tools are offered.
type Client interface {
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)
}

// ToolCallNamed returns the first function call in a reply naming tool,
// or nil when the reply carries none.
func ToolCallNamed(resp *ChatResponse, tool string) *ToolCall {
	if resp == nil {
		return nil
	}
	for i := range resp.Message.ToolCalls {
		if resp.Message.ToolCalls[i].Function.Name == tool {
			return &resp.Message.ToolCalls[i]
		}
	}
	return nil
}
