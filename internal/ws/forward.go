package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smancode/sman-sub006/internal/event"
	"github.com/smancode/sman-sub006/internal/logging"
	"github.com/smancode/sman-sub006/pkg/types"
)

// ErrToolTimeout is returned when the client does not answer a
// forwarded tool call within the configured timeout.
var ErrToolTimeout = errors.New("tool call timed out")

// pendingCall is one forwarded tool call waiting for its result.
type pendingCall struct {
	sessionID string
	result    chan types.Frame
}

// Forwarder ships allow-listed tool calls to the connected client and
// correlates TOOL_RESULT frames back to the waiting caller. Each call
// gets a fresh toolCallId; a result resolves its slot exactly once and
// unknown or late results are dropped.
type Forwarder struct {
	registry *Registry
	bus      *event.Bus
	timeout  time.Duration
	forward  map[string]struct{}

	mu      sync.Mutex
	pending map[string]*pendingCall
}

// NewForwarder creates a forwarder from the tools configuration.
func NewForwarder(registry *Registry, cfg types.ToolsConfig, bus *event.Bus) *Forwarder {
	forward := make(map[string]struct{}, len(cfg.Forward))
	for _, name := range cfg.Forward {
		forward[name] = struct{}{}
	}
	return &Forwarder{
		registry: registry,
		bus:      bus,
		timeout:  cfg.ForwardTimeout(),
		forward:  forward,
		pending:  make(map[string]*pendingCall),
	}
}

// ShouldForward reports whether the tool executes on the client.
func (f *Forwarder) ShouldForward(toolName string) bool {
	_, ok := f.forward[toolName]
	return ok
}

// Pending returns the number of unresolved forwarded calls.
func (f *Forwarder) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Call forwards the tool call over the session's connection and blocks
// until the result arrives, the timeout fires, or ctx is done.
func (f *Forwarder) Call(ctx context.Context, sessionID, toolName string, params map[string]any) (json.RawMessage, error) {
	callID := toolName + "-" + types.NewID()
	call := &pendingCall{sessionID: sessionID, result: make(chan types.Frame, 1)}

	f.mu.Lock()
	f.pending[callID] = call
	f.mu.Unlock()

	log := logging.ForSession(sessionID)
	if err := f.registry.push(sessionID, types.ToolCallFrame(callID, toolName, params)); err != nil {
		f.drop(callID)
		return nil, fmt.Errorf("forward %s: %w", toolName, err)
	}
	f.publish(event.ToolForwarded, sessionID, callID, toolName)
	log.Debug().Str("toolCallId", callID).Str("tool", toolName).Msg("tool call forwarded")

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case frame := <-call.result:
		f.publish(event.ToolResolved, sessionID, callID, toolName)
		if frame.Error != "" {
			return nil, fmt.Errorf("client tool %s: %s", toolName, frame.Error)
		}
		return frame.Result, nil
	case <-timer.C:
		f.drop(callID)
		f.publish(event.ToolTimedOut, sessionID, callID, toolName)
		log.Warn().Str("toolCallId", callID).Str("tool", toolName).Msg("tool call timed out")
		return nil, fmt.Errorf("%w: %s after %s", ErrToolTimeout, toolName, f.timeout)
	case <-ctx.Done():
		f.drop(callID)
		return nil, ctx.Err()
	}
}

// Resolve routes a TOOL_RESULT frame to its waiting call. Returns false
// when the toolCallId is unknown, already resolved, or timed out.
func (f *Forwarder) Resolve(frame types.Frame) bool {
	f.mu.Lock()
	call, ok := f.pending[frame.ToolCallID]
	if ok {
		delete(f.pending, frame.ToolCallID)
	}
	f.mu.Unlock()

	if !ok {
		logging.Debug().Str("toolCallId", frame.ToolCallID).Msg("result for unknown tool call dropped")
		return false
	}
	call.result <- frame
	return true
}

// FailSession fails every pending call of the session. Called when its
// connection goes away: no result can arrive anymore.
func (f *Forwarder) FailSession(sessionID string) {
	f.mu.Lock()
	var failed []*pendingCall
	for id, call := range f.pending {
		if call.sessionID == sessionID {
			failed = append(failed, call)
			delete(f.pending, id)
		}
	}
	f.mu.Unlock()

	for _, call := range failed {
		call.result <- types.Frame{Type: types.FrameToolResult, Error: "connection closed"}
	}
}

func (f *Forwarder) drop(callID string) {
	f.mu.Lock()
	delete(f.pending, callID)
	f.mu.Unlock()
}

func (f *Forwarder) publish(t event.Type, sessionID, callID, toolName string) {
	if f.bus != nil {
		f.bus.Publish(event.Event{Type: t, Data: event.ToolData{
			SessionID: sessionID, ToolCallID: callID, ToolName: toolName,
		}})
	}
}
