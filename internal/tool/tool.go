// Package tool provides the server-side tool framework: the Tool
// interface, the registry, and the built-in tools that execute locally
// rather than being forwarded to the connected client.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is one server-side tool the reasoning loop can invoke.
type Tool interface {
	// Name returns the tool identifier used in tool calls.
	Name() string

	// Description returns the tool description shown to the model.
	Description() string

	// Parameters returns the JSON Schema for the tool's input.
	Parameters() json.RawMessage

	// Execute runs the tool.
	Execute(ctx context.Context, tc *Context, input map[string]any) (*Result, error)
}

// Context carries per-call execution context to tools.
type Context struct {
	SessionID string
	MessageID string
	CallID    string
}

// Result is the output of a tool execution.
type Result struct {
	Title  string `json:"title,omitempty"`
	Output string `json:"output"`
}

// BaseTool implements Tool around a function.
type BaseTool struct {
	name        string
	description string
	parameters  json.RawMessage
	execute     func(ctx context.Context, tc *Context, input map[string]any) (*Result, error)
}

// NewBaseTool creates a function-backed tool.
func NewBaseTool(name, description string, params json.RawMessage, execute func(context.Context, *Context, map[string]any) (*Result, error)) *BaseTool {
	return &BaseTool{name: name, description: description, parameters: params, execute: execute}
}

func (t *BaseTool) Name() string                { return t.name }
func (t *BaseTool) Description() string         { return t.description }
func (t *BaseTool) Parameters() json.RawMessage { return t.parameters }

func (t *BaseTool) Execute(ctx context.Context, tc *Context, input map[string]any) (*Result, error) {
	return t.execute(ctx, tc, input)
}
