// Package client provides a Go client for the sman-agent websocket
// protocol, usable from tests and tooling in place of the IDE plugin.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/smancode/sman-sub006/pkg/types"
)

// ToolHandler executes a forwarded tool call on the client side.
type ToolHandler func(ctx context.Context, toolName string, params map[string]any) (json.RawMessage, error)

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://127.0.0.1:8080/ws.
	URL string

	// ProjectKey identifies the project the conversation is about.
	ProjectKey string

	// UserName is reported to the server for session bookkeeping.
	UserName string

	// OnPart receives each streamed output part. May be nil.
	OnPart func(types.Part)

	// Tools handles TOOL_CALL frames. When nil every forwarded call is
	// answered with an error result.
	Tools ToolHandler

	// DialTimeout bounds the initial connection attempts.
	DialTimeout time.Duration
}

// Client runs conversations against a sman-agent server. The protocol
// closes the connection when a round completes, so each Chat or Analyze
// call dials its own connection.
type Client struct {
	opts Options
}

// New creates a client.
func New(opts Options) *Client {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 30 * time.Second
	}
	return &Client{opts: opts}
}

// Chat runs one chat round and returns the final text parts joined.
func (c *Client) Chat(ctx context.Context, sessionID, input string) (string, error) {
	return c.run(ctx, types.FrameChat, sessionID, input)
}

// Analyze runs one analysis round and returns the final answer.
func (c *Client) Analyze(ctx context.Context, sessionID, input string) (string, error) {
	return c.run(ctx, types.FrameAnalyze, sessionID, input)
}

// run dials, submits the input and pumps frames until the round
// completes or fails.
func (c *Client) run(ctx context.Context, frameType, sessionID, input string) (string, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	submit := types.Frame{
		Type:       frameType,
		SessionID:  sessionID,
		ProjectKey: c.opts.ProjectKey,
		UserName:   c.opts.UserName,
		Input:      input,
	}
	if err := conn.WriteJSON(submit); err != nil {
		return "", fmt.Errorf("submit %s: %w", frameType, err)
	}

	var lastText string
	for {
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetReadDeadline(deadline)
		}
		var frame types.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return "", fmt.Errorf("read frame: %w", err)
		}

		switch frame.Type {
		case types.FrameConnected, types.FramePong:
			// Informational.

		case types.FramePart:
			part, err := types.UnmarshalPart(frame.Part)
			if err != nil {
				return "", fmt.Errorf("decode part: %w", err)
			}
			if text, ok := part.(*types.TextPart); ok {
				lastText = text.Text
			}
			if c.opts.OnPart != nil {
				c.opts.OnPart(part)
			}

		case types.FrameToolCall:
			c.answerToolCall(ctx, conn, frame)

		case types.FrameComplete:
			return lastText, nil

		case types.FrameError:
			return lastText, fmt.Errorf("server error: %s", frame.Message)

		default:
			// Unknown frames are skipped for forward compatibility.
		}
	}
}

// answerToolCall runs the handler and writes the TOOL_RESULT frame.
// The read loop is the only writer on the client side, so writing here
// is safe.
func (c *Client) answerToolCall(ctx context.Context, conn *websocket.Conn, frame types.Frame) {
	var result json.RawMessage
	var errMsg string
	if c.opts.Tools == nil {
		errMsg = fmt.Sprintf("tool %s not supported by this client", frame.ToolName)
	} else if out, err := c.opts.Tools(ctx, frame.ToolName, frame.Params); err != nil {
		errMsg = err.Error()
	} else {
		result = out
	}
	conn.WriteJSON(types.ToolResultFrame(frame.ToolCallID, result, errMsg))
}

// dial connects with exponential backoff, for servers that are still
// starting up.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	var conn *websocket.Conn
	operation := func() error {
		var resp *http.Response
		var err error
		conn, resp, err = websocket.DefaultDialer.DialContext(dialCtx, c.opts.URL, nil)
		if err != nil {
			if resp != nil {
				return fmt.Errorf("dial %s: %w (status %d)", c.opts.URL, err, resp.StatusCode)
			}
			return fmt.Errorf("dial %s: %w", c.opts.URL, err)
		}
		return nil
	}
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), dialCtx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return conn, nil
}
