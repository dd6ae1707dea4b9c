package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/smancode/sman-sub006/internal/llm"
	"github.com/smancode/sman-sub006/internal/logging"
	"github.com/smancode/sman-sub006/pkg/types"
)

var planSubtasksParams = json.RawMessage(`{
	"type": "object",
	"properties": {
		"subtasks": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"target": {"type": "string", "description": "Class, file or component under analysis"},
					"question": {"type": "string", "description": "What this subtask must answer"},
					"reason": {"type": "string", "description": "Why this subtask is needed"},
					"requiredTools": {"type": "array", "items": {"type": "string"}},
					"dependsOn": {"type": "array", "items": {"type": "integer"}, "description": "Indices of subtasks this one needs"}
				},
				"required": ["question"]
			}
		}
	},
	"required": ["subtasks"]
}`)

type plannedSubtask struct {
	Target        string   `json:"target"`
	Question      string   `json:"question"`
	Reason        string   `json:"reason"`
	RequiredTools []string `json:"requiredTools"`
	DependsOn     []int    `json:"dependsOn"`
}

// analyzeRound runs the structured analysis pipeline: plan subtasks,
// execute them in dependency order, then synthesize a conclusion.
func (a *Agent) analyzeRound(ctx context.Context, sess *types.Session, userMsg *types.Message, emit func(types.Part)) (*types.Message, error) {
	log := logging.ForSession(sess.ID())
	assistantMsg := types.NewAssistantMessage(sess.ID())

	goal := types.NewGoalPart(types.NewID(), assistantMsg.ID, sess.ID(), userMsg.Content, "")
	assistantMsg.AddPart(goal)
	emit(goal)
	goal.Status = types.GoalInProgress
	goal.Touch()
	emit(goal)

	tasks, err := a.planSubtasks(ctx, sess, assistantMsg, userMsg.Content)
	if err != nil {
		log.Warn().Err(err).Msg("subtask planning failed, falling back to single subtask")
		tasks = []*types.SubTaskPart{
			types.NewSubTaskPart(types.NewID(), assistantMsg.ID, sess.ID(), "", userMsg.Content),
		}
	}
	for _, t := range tasks {
		assistantMsg.AddPart(t)
		emit(t)
	}

	var completed atomic.Int64
	var mu sync.Mutex
	progress := types.NewProgressPart(types.NewID(), assistantMsg.ID, sess.ID(), 0, len(tasks), "analyzing")
	assistantMsg.AddPart(progress)
	emit(progress)

	runner := func(ctx context.Context, task *types.SubTaskPart) (string, error) {
		conclusion, err := a.runSubtask(ctx, sess.ID(), assistantMsg.ID, task)
		if err != nil {
			return "", err
		}
		done := completed.Add(1)
		mu.Lock()
		progress.CurrentStep = int(done)
		progress.StepName = task.Question
		progress.Touch()
		emit(progress)
		mu.Unlock()
		return conclusion, nil
	}
	onUpdate := func(task *types.SubTaskPart) { emit(task) }

	if err := a.subtasks.Execute(ctx, tasks, runner, onUpdate); err != nil {
		return assistantMsg, fmt.Errorf("execute subtasks: %w", err)
	}

	summary, err := a.synthesize(ctx, userMsg.Content, tasks, assistantMsg)
	if err != nil {
		return assistantMsg, fmt.Errorf("synthesize conclusion: %w", err)
	}
	text := types.NewTextPart(types.NewID(), assistantMsg.ID, sess.ID(), summary)
	assistantMsg.AddPart(text)
	assistantMsg.Content = summary
	emit(text)

	goal.Status = types.GoalCompleted
	goal.Touch()
	emit(goal)
	return assistantMsg, nil
}

// planSubtasks asks the model to decompose the request via the
// plan_subtasks tool.
func (a *Agent) planSubtasks(ctx context.Context, sess *types.Session, assistantMsg *types.Message, input string) ([]*types.SubTaskPart, error) {
	resp, err := a.llm.Complete(ctx, &llm.Request{
		Model: a.model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: planPrompt},
			{Role: llm.RoleUser, Content: input},
		},
		Tools: []llm.ToolDef{{
			Name:        "plan_subtasks",
			Description: "Record the subtask plan for this analysis.",
			Parameters:  planSubtasksParams,
		}},
	})
	if err != nil {
		return nil, err
	}
	addUsage(assistantMsg, resp.Usage)

	var planned []plannedSubtask
	for _, call := range resp.ToolCalls {
		if call.Name != "plan_subtasks" {
			continue
		}
		raw, err := json.Marshal(call.Arguments["subtasks"])
		if err != nil {
			return nil, fmt.Errorf("plan arguments: %w", err)
		}
		if err := json.Unmarshal(raw, &planned); err != nil {
			return nil, fmt.Errorf("plan arguments: %w", err)
		}
		break
	}
	if len(planned) == 0 {
		return nil, fmt.Errorf("model produced no subtask plan")
	}

	tasks := make([]*types.SubTaskPart, len(planned))
	for i, p := range planned {
		t := types.NewSubTaskPart(types.NewID(), assistantMsg.ID, sess.ID(), p.Target, p.Question)
		t.Reason = p.Reason
		t.RequiredTools = p.RequiredTools
		tasks[i] = t
	}
	// dependsOn indices become part ids once every task has one.
	for i, p := range planned {
		for _, dep := range p.DependsOn {
			if dep < 0 || dep >= len(tasks) || dep == i {
				continue
			}
			tasks[i].DependsOn = append(tasks[i].DependsOn, tasks[dep].PartID())
		}
	}
	return tasks, nil
}

// runSubtask answers one subtask with a bounded tool loop.
func (a *Agent) runSubtask(ctx context.Context, sessionID, messageID string, task *types.SubTaskPart) (string, error) {
	prompt := task.Question
	if task.Target != "" {
		prompt = fmt.Sprintf("Target: %s\n\n%s", task.Target, task.Question)
	}
	history := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}
	defs := a.toolDefs()

	for step := 0; step < a.maxSteps; step++ {
		resp, err := a.llm.Complete(ctx, &llm.Request{Model: a.model, Messages: history, Tools: defs})
		if err != nil {
			return "", err
		}
		history = append(history, llm.ChatMessage{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}
		for _, call := range resp.ToolCalls {
			output, _, _, err := a.runTool(ctx, sessionID, messageID, call)
			if err != nil {
				output = "tool error: " + err.Error()
			}
			history = append(history, llm.ChatMessage{
				Role:       llm.RoleTool,
				Content:    output,
				ToolCallID: call.ID,
			})
		}
	}
	return "", fmt.Errorf("subtask hit step limit")
}

// synthesize merges the subtask conclusions into the final answer.
func (a *Agent) synthesize(ctx context.Context, input string, tasks []*types.SubTaskPart, assistantMsg *types.Message) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n\nSubtask conclusions:\n", input)
	for _, t := range tasks {
		switch t.Status {
		case types.SubTaskCompleted:
			fmt.Fprintf(&b, "- %s: %s\n", t.Question, t.Conclusion)
		case types.SubTaskBlocked:
			fmt.Fprintf(&b, "- %s: blocked (%s)\n", t.Question, t.BlockReason)
		}
	}
	b.WriteString("\nWrite the final answer for the user based on these conclusions.")

	resp, err := a.llm.Complete(ctx, &llm.Request{
		Model: a.model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return "", err
	}
	addUsage(assistantMsg, resp.Usage)
	return resp.Content, nil
}
