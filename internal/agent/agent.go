// Package agent implements the reasoning loop that turns a user
// message into an assistant message: repeated model completions with
// tool execution, streaming parts as they are produced.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smancode/sman-sub006/internal/llm"
	"github.com/smancode/sman-sub006/internal/logging"
	"github.com/smancode/sman-sub006/internal/session"
	"github.com/smancode/sman-sub006/internal/tool"
	"github.com/smancode/sman-sub006/pkg/types"
)

// RemoteTools routes tool calls to the connected client. Implemented by
// the websocket forwarder.
type RemoteTools interface {
	// ShouldForward reports whether the tool executes on the client.
	ShouldForward(toolName string) bool

	// Call forwards the tool call and blocks for the result.
	Call(ctx context.Context, sessionID, toolName string, params map[string]any) (json.RawMessage, error)
}

// Agent runs rounds. One Agent serves all sessions; per-round state
// lives on the stack.
type Agent struct {
	llm      llm.Client
	tools    *tool.Registry
	remote   RemoteTools
	subtasks *session.SubTaskExecutor

	model    string
	maxSteps int

	remoteDefs []llm.ToolDef
}

// New creates an agent.
func New(client llm.Client, registry *tool.Registry, remote RemoteTools, subtasks *session.SubTaskExecutor, cfg *types.Config) *Agent {
	return &Agent{
		llm:        client,
		tools:      registry,
		remote:     remote,
		subtasks:   subtasks,
		model:      cfg.LLM.Model,
		maxSteps:   cfg.LLM.MaxSteps,
		remoteDefs: remoteToolDefs(cfg.Tools.Forward),
	}
}

// RunRound produces the assistant message for userMsg, streaming parts
// through emit. Analyze messages get the goal/subtask pipeline, chat
// messages the plain tool loop.
func (a *Agent) RunRound(ctx context.Context, sess *types.Session, userMsg *types.Message, emit func(types.Part)) (*types.Message, error) {
	if userMsg.Kind == types.KindAnalyze {
		return a.analyzeRound(ctx, sess, userMsg, emit)
	}
	return a.chatRound(ctx, sess, userMsg, emit)
}

func (a *Agent) chatRound(ctx context.Context, sess *types.Session, userMsg *types.Message, emit func(types.Part)) (*types.Message, error) {
	log := logging.ForSession(sess.ID())
	assistantMsg := types.NewAssistantMessage(sess.ID())
	history := a.buildHistory(sess, userMsg)
	defs := a.toolDefs()

	for step := 0; step < a.maxSteps; step++ {
		resp, err := a.llm.Complete(ctx, &llm.Request{
			Model:    a.model,
			Messages: history,
			Tools:    defs,
		})
		if err != nil {
			if len(assistantMsg.Parts) > 0 {
				return assistantMsg, fmt.Errorf("completion at step %d: %w", step, err)
			}
			return nil, fmt.Errorf("completion: %w", err)
		}
		addUsage(assistantMsg, resp.Usage)

		if resp.Reasoning != "" {
			p := types.NewReasoningPart(types.NewID(), assistantMsg.ID, sess.ID(), resp.Reasoning)
			assistantMsg.AddPart(p)
			emit(p)
		}
		if resp.Content != "" {
			p := types.NewTextPart(types.NewID(), assistantMsg.ID, sess.ID(), resp.Content)
			assistantMsg.AddPart(p)
			assistantMsg.Content = resp.Content
			emit(p)
		}

		history = append(history, llm.ChatMessage{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			return assistantMsg, nil
		}

		for _, call := range resp.ToolCalls {
			output := a.executeToolCall(ctx, sess.ID(), assistantMsg, call, emit)
			history = append(history, llm.ChatMessage{
				Role:       llm.RoleTool,
				Content:    output,
				ToolCallID: call.ID,
			})
		}
	}

	log.Warn().Int("maxSteps", a.maxSteps).Msg("round hit step limit")
	return assistantMsg, nil
}

// executeToolCall runs one tool call through its full part lifecycle
// and returns the output fed back to the model.
func (a *Agent) executeToolCall(ctx context.Context, sessionID string, assistantMsg *types.Message, call llm.ToolCall, emit func(types.Part)) string {
	log := logging.ForSession(sessionID)

	part := types.NewToolPart(types.NewID(), assistantMsg.ID, sessionID, call.Name, call.Arguments)
	assistantMsg.AddPart(part)
	emit(part)

	if err := part.TransitionRunning(); err != nil {
		log.Error().Err(err).Str("tool", call.Name).Msg("tool part transition failed")
		return "tool state error: " + err.Error()
	}
	emit(part)

	output, title, content, err := a.runTool(ctx, sessionID, assistantMsg.ID, call)
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Name).Msg("tool call failed")
		if terr := part.TransitionError(err.Error()); terr != nil {
			log.Error().Err(terr).Str("tool", call.Name).Msg("tool part transition failed")
		}
		emit(part)
		return "tool error: " + err.Error()
	}

	if terr := part.TransitionCompleted(output, title, content); terr != nil {
		log.Error().Err(terr).Str("tool", call.Name).Msg("tool part transition failed")
	}
	emit(part)
	return output
}

// runTool routes the call to the client or a local tool.
func (a *Agent) runTool(ctx context.Context, sessionID, messageID string, call llm.ToolCall) (output, title, content string, err error) {
	if a.remote != nil && a.remote.ShouldForward(call.Name) {
		raw, err := a.remote.Call(ctx, sessionID, call.Name, call.Arguments)
		if err != nil {
			return "", "", "", err
		}
		return decodeRemoteResult(raw)
	}

	t, ok := a.tools.Get(call.Name)
	if !ok {
		return "", "", "", fmt.Errorf("unknown tool %q", call.Name)
	}
	res, err := t.Execute(ctx, &tool.Context{
		SessionID: sessionID,
		MessageID: messageID,
		CallID:    call.ID,
	}, call.Arguments)
	if err != nil {
		return "", "", "", err
	}
	return res.Output, res.Title, res.Output, nil
}

// decodeRemoteResult unwraps {output, title, content} results; a result
// in any other shape is passed through verbatim.
func decodeRemoteResult(raw json.RawMessage) (output, title, content string, err error) {
	var structured struct {
		Output  string `json:"output"`
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if json.Unmarshal(raw, &structured) == nil && structured.Output != "" {
		return structured.Output, structured.Title, structured.Content, nil
	}
	var plain string
	if json.Unmarshal(raw, &plain) == nil {
		return plain, "", plain, nil
	}
	return string(raw), "", string(raw), nil
}

// buildHistory flattens the session into the model conversation.
func (a *Agent) buildHistory(sess *types.Session, userMsg *types.Message) []llm.ChatMessage {
	history := []llm.ChatMessage{{Role: llm.RoleSystem, Content: systemPrompt}}
	for _, msg := range sess.Messages() {
		if msg.Content == "" {
			continue
		}
		role := llm.RoleUser
		if msg.IsAssistant() {
			role = llm.RoleAssistant
		}
		history = append(history, llm.ChatMessage{Role: role, Content: msg.Content})
	}
	return history
}

func (a *Agent) toolDefs() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(a.remoteDefs)+8)
	defs = append(defs, a.remoteDefs...)
	for _, t := range a.tools.List() {
		defs = append(defs, llm.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

func addUsage(msg *types.Message, usage llm.Usage) {
	if usage.Input == 0 && usage.Output == 0 {
		return
	}
	if msg.Tokens == nil {
		msg.Tokens = &types.TokenUsage{}
	}
	msg.Tokens.Input += usage.Input
	msg.Tokens.Output += usage.Output
}
