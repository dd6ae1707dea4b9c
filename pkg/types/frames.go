package types

import (
	"encoding/json"
	"time"
)

// Frame types exchanged over the duplex connection. One JSON frame per
// logical event; Type discriminates. TOOL_CALL/TOOL_RESULT keep the
// uppercase tags the IDE plugin protocol uses.
const (
	FrameConnected  = "connected"
	FramePing       = "ping"
	FramePong       = "pong"
	FrameChat       = "chat"
	FrameAnalyze    = "analyze"
	FramePart       = "part"
	FrameComplete   = "complete"
	FrameError      = "error"
	FrameToolCall   = "TOOL_CALL"
	FrameToolResult = "TOOL_RESULT"
)

// Frame is a single protocol message. Unused fields are omitted, so the
// same struct serves every frame type.
type Frame struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"sessionId,omitempty"`
	ProjectKey string          `json:"projectKey,omitempty"`
	UserIP     string          `json:"userIp,omitempty"`
	UserName   string          `json:"userName,omitempty"`
	Input      string          `json:"input,omitempty"`
	Message    string          `json:"message,omitempty"`
	Part       json.RawMessage `json:"part,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Params     map[string]any  `json:"params,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
}

// ConnectedFrame is sent once after the connection is established.
func ConnectedFrame() Frame {
	return Frame{Type: FrameConnected, Message: "connection established"}
}

// PongFrame answers a protocol-level ping.
func PongFrame() Frame {
	return Frame{Type: FramePong, Timestamp: time.Now().UnixMilli()}
}

// PartFrame wraps a part for delivery to the client.
func PartFrame(sessionID string, p Part) (Frame, error) {
	raw, err := MarshalPart(p)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FramePart, SessionID: sessionID, Part: raw}, nil
}

// CompleteFrame signals the end of a round.
func CompleteFrame(sessionID string) Frame {
	return Frame{Type: FrameComplete, SessionID: sessionID}
}

// ErrorFrame reports a processing failure to the client.
func ErrorFrame(message string) Frame {
	return Frame{Type: FrameError, Message: message}
}

// ToolCallFrame asks the client to execute a tool on the server's behalf.
func ToolCallFrame(toolCallID, toolName string, params map[string]any) Frame {
	return Frame{Type: FrameToolCall, ToolCallID: toolCallID, ToolName: toolName, Params: params}
}

// ToolResultFrame carries a client tool result back to the server.
func ToolResultFrame(toolCallID string, result json.RawMessage, errMsg string) Frame {
	return Frame{Type: FrameToolResult, ToolCallID: toolCallID, Result: result, Error: errMsg}
}
