package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message kinds. A chat message gets a plain reasoning round; an
// analyze message gets the goal/subtask analysis pipeline.
const (
	KindChat    = "chat"
	KindAnalyze = "analyze"
)

// Message is one node of a session's linear message stream. Messages are
// append-only once created; an assistant message accumulates parts as the
// reasoning loop streams output.
type Message struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"sessionId"`
	Role        Role        `json:"role"`
	Kind        string      `json:"kind,omitempty"`
	Content     string      `json:"content,omitempty"`
	Parts       []Part      `json:"parts"`
	Tokens      *TokenUsage `json:"tokens,omitempty"`
	CreatedTime time.Time   `json:"createdTime"`
	UpdatedTime time.Time   `json:"updatedTime"`
}

// TokenUsage records token accounting for a message.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// NewUserMessage creates a user message wrapping the input as a text part.
func NewUserMessage(sessionID, input string) *Message {
	now := time.Now().UTC()
	msg := &Message{
		ID:          NewID(),
		SessionID:   sessionID,
		Role:        RoleUser,
		Content:     input,
		CreatedTime: now,
		UpdatedTime: now,
	}
	msg.AddPart(NewTextPart(NewID(), msg.ID, sessionID, input))
	return msg
}

// NewAssistantMessage creates an empty assistant message.
func NewAssistantMessage(sessionID string) *Message {
	now := time.Now().UTC()
	return &Message{
		ID:          NewID(),
		SessionID:   sessionID,
		Role:        RoleAssistant,
		CreatedTime: now,
		UpdatedTime: now,
	}
}

// AddPart appends a part to the message.
func (m *Message) AddPart(p Part) {
	m.Parts = append(m.Parts, p)
	m.Touch()
}

// Touch updates the message's updated timestamp.
func (m *Message) Touch() { m.UpdatedTime = time.Now().UTC() }

// IsUser reports whether the message was authored by the user.
func (m *Message) IsUser() bool { return m.Role == RoleUser }

// IsAssistant reports whether the message was authored by the assistant.
func (m *Message) IsAssistant() bool { return m.Role == RoleAssistant }

// messageJSON mirrors Message with raw parts for (un)marshaling.
type messageJSON struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"sessionId"`
	Role        Role              `json:"role"`
	Kind        string            `json:"kind,omitempty"`
	Content     string            `json:"content,omitempty"`
	Parts       []json.RawMessage `json:"parts"`
	Tokens      *TokenUsage       `json:"tokens,omitempty"`
	CreatedTime time.Time         `json:"createdTime"`
	UpdatedTime time.Time         `json:"updatedTime"`
}

// MarshalJSON serializes the message with each part in envelope form.
func (m *Message) MarshalJSON() ([]byte, error) {
	parts := make([]json.RawMessage, 0, len(m.Parts))
	for _, p := range m.Parts {
		raw, err := MarshalPart(p)
		if err != nil {
			return nil, err
		}
		parts = append(parts, raw)
	}
	return json.Marshal(messageJSON{
		ID:          m.ID,
		SessionID:   m.SessionID,
		Role:        m.Role,
		Kind:        m.Kind,
		Content:     m.Content,
		Parts:       parts,
		Tokens:      m.Tokens,
		CreatedTime: m.CreatedTime,
		UpdatedTime: m.UpdatedTime,
	})
}

// UnmarshalJSON deserializes the message, decoding each part envelope.
func (m *Message) UnmarshalJSON(b []byte) error {
	var j messageJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	m.ID = j.ID
	m.SessionID = j.SessionID
	m.Role = j.Role
	m.Kind = j.Kind
	m.Content = j.Content
	m.Tokens = j.Tokens
	m.CreatedTime = j.CreatedTime
	m.UpdatedTime = j.UpdatedTime
	m.Parts = make([]Part, 0, len(j.Parts))
	for i, raw := range j.Parts {
		p, err := UnmarshalPart(raw)
		if err != nil {
			return fmt.Errorf("message %s part %d: %w", j.ID, i, err)
		}
		m.Parts = append(m.Parts, p)
	}
	return nil
}
