package ws

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smancode/sman-sub006/internal/logging"
	"github.com/smancode/sman-sub006/internal/session"
	"github.com/smancode/sman-sub006/pkg/types"
)

// Handler upgrades /ws requests and runs the per-connection read loop.
type Handler struct {
	store     *session.Store
	coord     *session.Coordinator
	registry  *Registry
	forwarder *Forwarder
	upgrader  websocket.Upgrader
}

// NewHandler creates the websocket handler.
func NewHandler(store *session.Store, coord *session.Coordinator, registry *Registry, forwarder *Forwarder) *Handler {
	return &Handler{
		store:     store,
		coord:     coord,
		registry:  registry,
		forwarder: forwarder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The IDE plugin connects from arbitrary local origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and serves the connection until the
// client goes away or the round completes.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	conn := newConn(ws)
	if err := conn.Send(types.ConnectedFrame()); err != nil {
		logging.Warn().Err(err).Msg("connected frame not delivered")
	}

	h.readLoop(r, conn)
}

// readLoop is the single reader for the connection. It dispatches
// frames until the socket closes, then releases the session binding and
// fails any tool calls still waiting on this connection.
func (h *Handler) readLoop(r *http.Request, conn *Conn) {
	defer func() {
		conn.Close()
		if sessionID := conn.SessionID(); sessionID != "" {
			// Only fail pending tool calls if this connection still
			// owned the session; a replacement connection may be
			// serving it by now.
			if h.registry.Unbind(sessionID, conn) {
				h.forwarder.FailSession(sessionID)
			}
		}
	}()

	ws := conn.ws
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame types.Frame
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}

		switch frame.Type {
		case types.FramePing:
			if err := conn.Send(types.PongFrame()); err != nil {
				logging.Debug().Err(err).Msg("pong not delivered")
			}

		case types.FrameChat:
			h.handleSubmit(r, conn, frame, types.KindChat)

		case types.FrameAnalyze:
			h.handleSubmit(r, conn, frame, types.KindAnalyze)

		case types.FrameToolResult:
			h.forwarder.Resolve(frame)

		default:
			logging.Debug().Str("frameType", frame.Type).Msg("unknown frame dropped")
			if err := conn.Send(types.ErrorFrame("unknown frame type: " + frame.Type)); err != nil {
				logging.Debug().Err(err).Msg("error frame not delivered")
			}
		}
	}
}

// handleSubmit binds the connection to the session and submits the
// input for a round.
func (h *Handler) handleSubmit(r *http.Request, conn *Conn, frame types.Frame, kind string) {
	sessionID := frame.SessionID
	if sessionID == "" {
		sessionID = types.NewID()
	}

	sess, created := h.store.GetOrCreate(r.Context(), sessionID, frame.ProjectKey)
	if created || frame.UserIP != "" || frame.UserName != "" {
		sess.SetUser(clientIP(r, frame), frame.UserName)
	}
	h.registry.Bind(sessionID, conn)

	if err := h.coord.Submit(context.WithoutCancel(r.Context()), sess, frame.Input, kind); err != nil {
		// The error frame is already on the wire; end the conversation.
		logging.ForSession(sessionID).Warn().Err(err).Msg("submit rejected")
		conn.Close()
	}
}

func clientIP(r *http.Request, frame types.Frame) string {
	if frame.UserIP != "" {
		return frame.UserIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
