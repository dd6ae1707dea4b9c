package event

// SessionData accompanies session and round events.
type SessionData struct {
	SessionID string `json:"sessionId"`
}

// MessageData accompanies message events.
type MessageData struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
}

// PartData accompanies part events.
type PartData struct {
	SessionID string `json:"sessionId"`
	PartID    string `json:"partId"`
	PartType  string `json:"partType"`
}

// ToolData accompanies tool forwarding events.
type ToolData struct {
	SessionID  string `json:"sessionId,omitempty"`
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName,omitempty"`
}

// ConnData accompanies connection lifecycle events.
type ConnData struct {
	SessionID string `json:"sessionId"`
}
