package ws

import (
	"fmt"
	"sync"

	"github.com/smancode/sman-sub006/internal/event"
	"github.com/smancode/sman-sub006/internal/logging"
	"github.com/smancode/sman-sub006/pkg/types"
)

// Registry maps session ids to their live connection. It is the
// session package's frame pusher: rounds stream parts through it
// without knowing about websockets.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	bus *event.Bus
}

// NewRegistry creates a connection registry. bus may be nil.
func NewRegistry(bus *event.Bus) *Registry {
	return &Registry{conns: make(map[string]*Conn), bus: bus}
}

// Bind associates the connection with a session. An existing connection
// for the same session is closed first; the newest connection wins.
func (r *Registry) Bind(sessionID string, c *Conn) {
	r.mu.Lock()
	old := r.conns[sessionID]
	r.conns[sessionID] = c
	r.mu.Unlock()

	c.bind(sessionID)
	if old != nil && old != c {
		logging.ForSession(sessionID).Info().Msg("replacing existing connection")
		old.Close()
	}
	if r.bus != nil {
		r.bus.Publish(event.Event{Type: event.ConnOpened, Data: event.ConnData{SessionID: sessionID}})
	}
}

// Unbind removes the binding if it still points at c. Returns false
// when a newer connection has already replaced c, in which case the
// session is still live and c's teardown must not touch it.
func (r *Registry) Unbind(sessionID string, c *Conn) bool {
	r.mu.Lock()
	removed := r.conns[sessionID] == c
	if removed {
		delete(r.conns, sessionID)
	}
	r.mu.Unlock()
	if removed && r.bus != nil {
		r.bus.Publish(event.Event{Type: event.ConnClosed, Data: event.ConnData{SessionID: sessionID}})
	}
	return removed
}

// Get returns the connection bound to the session.
func (r *Registry) Get(sessionID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[sessionID]
	return c, ok
}

func (r *Registry) push(sessionID string, frame types.Frame) error {
	c, ok := r.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s has no connection", sessionID)
	}
	if err := c.Send(frame); err != nil {
		logging.ForSession(sessionID).Warn().Err(err).Str("frameType", frame.Type).Msg("frame dropped")
		return err
	}
	return nil
}

// PushPart delivers a part frame to the session's client.
func (r *Registry) PushPart(sessionID string, part types.Part) error {
	frame, err := types.PartFrame(sessionID, part)
	if err != nil {
		return fmt.Errorf("encode part %s: %w", part.PartID(), err)
	}
	return r.push(sessionID, frame)
}

// PushComplete signals the end of the round.
func (r *Registry) PushComplete(sessionID string) error {
	return r.push(sessionID, types.CompleteFrame(sessionID))
}

// PushError reports a failure to the session's client.
func (r *Registry) PushError(sessionID, message string) error {
	return r.push(sessionID, types.ErrorFrame(message))
}

// CloseSession closes the session's connection. The connection lives
// for one conversation round (plus continuations), so the coordinator
// calls this when the round completes.
func (r *Registry) CloseSession(sessionID string) {
	if c, ok := r.Get(sessionID); ok {
		c.Close()
	}
}

// Shutdown closes every connection.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
