package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smancode/sman-sub006/internal/session"
	"github.com/smancode/sman-sub006/pkg/client"
	"github.com/smancode/sman-sub006/pkg/types"
)

// e2eRunner is a scripted round: input "read:<path>" forwards a
// read_file call to the client, "count:<n>" streams n text parts,
// anything else echoes.
type e2eRunner struct {
	fwd *Forwarder
}

func (r *e2eRunner) RunRound(ctx context.Context, sess *types.Session, userMsg *types.Message, emit func(types.Part)) (*types.Message, error) {
	msg := types.NewAssistantMessage(sess.ID())
	addText := func(text string) {
		p := types.NewTextPart(types.NewID(), msg.ID, sess.ID(), text)
		msg.AddPart(p)
		msg.Content = text
		emit(p)
	}

	switch {
	case strings.HasPrefix(userMsg.Content, "read:"):
		path := strings.TrimPrefix(userMsg.Content, "read:")
		result, err := r.fwd.Call(ctx, sess.ID(), "read_file", map[string]any{"path": path})
		if err != nil {
			return nil, err
		}
		addText("contents: " + string(result))
	case strings.HasPrefix(userMsg.Content, "count:"):
		var n int
		fmt.Sscanf(userMsg.Content, "count:%d", &n)
		for i := 0; i < n; i++ {
			addText(fmt.Sprintf("part-%d", i))
		}
	default:
		addText("echo: " + userMsg.Content)
	}
	return msg, nil
}

// newTestServer wires the full stack around the scripted runner.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	files := session.NewFileStore(t.TempDir())
	store := session.NewStore(files, nil)
	pool := session.NewWorkerPool(4)
	t.Cleanup(func() { pool.Shutdown(context.Background()) })

	registry := NewRegistry(nil)
	forwarder := NewForwarder(registry, types.ToolsConfig{
		Forward:               []string{"read_file"},
		ForwardTimeoutSeconds: 5,
	}, nil)
	runner := &e2eRunner{fwd: forwarder}
	coord := session.NewCoordinator(store, files, pool, runner, registry, nil)
	handler := NewHandler(store, coord, registry, forwarder)
	srv := NewServer(types.ServerConfig{Hostname: "127.0.0.1"}, handler)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestEndToEndChat(t *testing.T) {
	ts := newTestServer(t)

	var parts []types.Part
	c := client.New(client.Options{
		URL:    wsURL(ts),
		OnPart: func(p types.Part) { parts = append(parts, p) },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	answer, err := c.Chat(ctx, "sess-chat", "hello")
	require.NoError(t, err)

	assert.Equal(t, "echo: hello", answer)
	require.Len(t, parts, 1)
	assert.Equal(t, types.PartText, parts[0].PartType())
	assert.Equal(t, "sess-chat", parts[0].Meta().SessionID)
}

func TestEndToEndToolForwarding(t *testing.T) {
	ts := newTestServer(t)

	var calledTool string
	c := client.New(client.Options{
		URL: wsURL(ts),
		Tools: func(ctx context.Context, toolName string, params map[string]any) (json.RawMessage, error) {
			calledTool = toolName
			assert.Equal(t, "main.go", params["path"])
			return json.RawMessage(`"package main"`), nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	answer, err := c.Chat(ctx, "sess-tool", "read:main.go")
	require.NoError(t, err)

	assert.Equal(t, "read_file", calledTool)
	assert.Equal(t, `contents: "package main"`, answer)
}

func TestEndToEndPartOrdering(t *testing.T) {
	ts := newTestServer(t)

	var texts []string
	c := client.New(client.Options{
		URL: wsURL(ts),
		OnPart: func(p types.Part) {
			if tp, ok := p.(*types.TextPart); ok {
				texts = append(texts, tp.Text)
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.Chat(ctx, "sess-order", "count:10")
	require.NoError(t, err)

	require.Len(t, texts, 10)
	for i, text := range texts {
		assert.Equal(t, fmt.Sprintf("part-%d", i), text, "parts must arrive in emit order")
	}
}

func TestEndToEndConnectionClosesAfterRound(t *testing.T) {
	ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(types.Frame{
		Type:      types.FrameChat,
		SessionID: "sess-close",
		Input:     "hello",
	}))

	sawComplete := false
	for {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var frame types.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		if frame.Type == types.FrameComplete {
			sawComplete = true
		}
	}
	assert.True(t, sawComplete, "complete frame must precede the close")
}

func TestEndToEndPingPong(t *testing.T) {
	ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Skip the connected frame.
	var connected types.Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&connected))
	require.Equal(t, types.FrameConnected, connected.Type)

	require.NoError(t, conn.WriteJSON(types.Frame{Type: types.FramePing}))

	var pong types.Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, types.FramePong, pong.Type)
	assert.NotZero(t, pong.Timestamp)
}

func TestEndToEndUnknownFrame(t *testing.T) {
	ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var connected types.Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&connected))

	require.NoError(t, conn.WriteJSON(types.Frame{Type: "bogus"}))

	var errFrame types.Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, types.FrameError, errFrame.Type)
	assert.Contains(t, errFrame.Message, "unknown frame type")
}
