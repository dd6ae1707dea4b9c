// Package llm provides the chat-completions client the reasoning loop
// talks to.
package llm

import (
	"context"
	"encoding/json"
)

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one turn of the model conversation.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDef describes a tool offered to the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Request is one completion request.
type Request struct {
	Model     string
	Messages  []ChatMessage
	Tools     []ToolDef
	MaxTokens int
}

// Usage is the token accounting of a completion.
type Usage struct {
	Input  int
	Output int
}

// Response is the model's reply: assistant text, optional visible
// reasoning, and any requested tool calls.
type Response struct {
	Content      string
	Reasoning    string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// Client produces completions.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}
