// Package ws implements the duplex websocket transport: one connection
// per conversation, a single writer goroutine per connection, the
// session registry and the tool-call forwarder.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smancode/sman-sub006/internal/logging"
	"github.com/smancode/sman-sub006/pkg/types"
)

const (
	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for a transport-level pong.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames.
	maxMessageSize = 1 << 20

	// sendBuffer is the per-connection outbound queue. Frames beyond it
	// are dropped rather than blocking a round.
	sendBuffer = 256
)

// ErrConnClosed is returned by Send after the connection closed.
var ErrConnClosed = errors.New("connection closed")

// ErrSendBufferFull is returned by Send when the client cannot keep up.
var ErrSendBufferFull = errors.New("send buffer full")

// Conn wraps one websocket connection. All writes are funneled through
// the writePump goroutine so concurrent rounds and forwarded tool calls
// never interleave frames on the wire.
type Conn struct {
	ws   *websocket.Conn
	send chan types.Frame
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	sessionID string
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:   ws,
		send: make(chan types.Frame, sendBuffer),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// SessionID returns the session this connection is bound to, or "".
func (c *Conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Conn) bind(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}

// Send queues a frame for the writer goroutine. It never blocks: a full
// buffer or a closed connection yields an error instead.
func (c *Conn) Send(frame types.Frame) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// writePump is the single writer: it drains the send queue, emits
// transport pings, and tears the socket down on exit.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(frame); err != nil {
				logging.Debug().Err(err).Str("frameType", frame.Type).Msg("frame write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			// Flush what is already queued, then say goodbye.
			for {
				select {
				case frame := <-c.send:
					c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.ws.WriteJSON(frame); err != nil {
						return
					}
				default:
					c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					c.ws.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}
