package types

import (
	"encoding/json"
	"sync"
	"time"
)

// SessionStatus is the lifecycle status of a session.
type SessionStatus string

const (
	SessionIdle       SessionStatus = "IDLE"
	SessionProcessing SessionStatus = "PROCESSING"
	SessionCompleted  SessionStatus = "COMPLETED"
)

// Session is the unit of ordered message history and execution
// exclusivity. Its message list may be appended to by a submit while a
// round is reading it, so access goes through the locking methods below.
type Session struct {
	mu sync.RWMutex

	id          string
	projectKey  string
	userIP      string
	userName    string
	status      SessionStatus
	messages    []*Message
	createdTime time.Time
	updatedTime time.Time
}

// NewSession creates an idle session.
func NewSession(id, projectKey string) *Session {
	now := time.Now().UTC()
	return &Session{
		id:          id,
		projectKey:  projectKey,
		status:      SessionIdle,
		createdTime: now,
		updatedTime: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// ProjectKey returns the project key the session was opened for.
func (s *Session) ProjectKey() string { return s.projectKey }

// User returns the recorded client ip and host name.
func (s *Session) User() (ip, name string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userIP, s.userName
}

// SetUser records the client ip and host name.
func (s *Session) SetUser(ip, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userIP = ip
	s.userName = name
	s.updatedTime = time.Now().UTC()
}

// Status returns the session status.
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus updates the session status.
func (s *Session) SetStatus(status SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.updatedTime = time.Now().UTC()
}

// CreatedTime returns the creation timestamp.
func (s *Session) CreatedTime() time.Time { return s.createdTime }

// UpdatedTime returns the last-updated timestamp.
func (s *Session) UpdatedTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedTime
}

// AddMessage appends a message to the session.
func (s *Session) AddMessage(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.updatedTime = time.Now().UTC()
}

// Messages returns a snapshot of the message list.
func (s *Session) Messages() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// MessageCount returns the number of messages.
func (s *Session) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// LatestMessage returns the most recent message, or nil.
func (s *Session) LatestMessage() *Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return nil
	}
	return s.messages[len(s.messages)-1]
}

// LatestUserMessage returns the most recent user message, or nil.
func (s *Session) LatestUserMessage() *Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].IsUser() {
			return s.messages[i]
		}
	}
	return nil
}

// LatestAssistantMessage returns the most recent assistant message, or nil.
func (s *Session) LatestAssistantMessage() *Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].IsAssistant() {
			return s.messages[i]
		}
	}
	return nil
}

// HasUserMessageAfter reports whether a user message was appended after
// the message with the given id. With an empty id it reports whether the
// latest message is from the user. This drives the continuation check:
// input that arrived mid-round shows up as a trailing user message.
func (s *Session) HasUserMessageAfter(messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if messageID == "" {
		return len(s.messages) > 0 && s.messages[len(s.messages)-1].IsUser()
	}

	idx := -1
	for i, msg := range s.messages {
		if msg.ID == messageID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	for i := idx + 1; i < len(s.messages); i++ {
		if s.messages[i].IsUser() {
			return true
		}
	}
	return false
}

// sessionJSON is the persisted form of a Session.
type sessionJSON struct {
	ID          string        `json:"id"`
	ProjectKey  string        `json:"projectKey,omitempty"`
	UserIP      string        `json:"userIp,omitempty"`
	UserName    string        `json:"userName,omitempty"`
	Status      SessionStatus `json:"status"`
	Messages    []*Message    `json:"messages"`
	CreatedTime time.Time     `json:"createdTime"`
	UpdatedTime time.Time     `json:"updatedTime"`
}

// MarshalJSON serializes the session under its read lock.
func (s *Session) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(sessionJSON{
		ID:          s.id,
		ProjectKey:  s.projectKey,
		UserIP:      s.userIP,
		UserName:    s.userName,
		Status:      s.status,
		Messages:    s.messages,
		CreatedTime: s.createdTime,
		UpdatedTime: s.updatedTime,
	})
}

// UnmarshalJSON deserializes the session.
func (s *Session) UnmarshalJSON(b []byte) error {
	var j sessionJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = j.ID
	s.projectKey = j.ProjectKey
	s.userIP = j.UserIP
	s.userName = j.UserName
	s.status = j.Status
	s.messages = j.Messages
	s.createdTime = j.CreatedTime
	s.updatedTime = j.UpdatedTime
	return nil
}
