package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PartType discriminates the Part variants on the wire and on disk.
type PartType string

const (
	PartText      PartType = "TEXT"
	PartReasoning PartType = "REASONING"
	PartTool      PartType = "TOOL"
	PartGoal      PartType = "GOAL"
	PartProgress  PartType = "PROGRESS"
	PartTodo      PartType = "TODO"
	PartSubTask   PartType = "SUBTASK"
)

// Part is a single structured unit of assistant output within a message.
// Every part belongs to exactly one message and carries that message's
// session id.
type Part interface {
	PartType() PartType
	PartID() string
	Meta() *PartMeta

	// payload returns a pointer to the variant-specific data, used by
	// MarshalPart/UnmarshalPart to build the {meta, type, data} envelope.
	payload() any
}

// PartMeta holds the fields common to all part variants.
type PartMeta struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"messageId"`
	SessionID   string    `json:"sessionId"`
	CreatedTime time.Time `json:"createdTime"`
	UpdatedTime time.Time `json:"updatedTime"`
}

func newPartMeta(id, messageID, sessionID string) PartMeta {
	now := time.Now().UTC()
	return PartMeta{
		ID:          id,
		MessageID:   messageID,
		SessionID:   sessionID,
		CreatedTime: now,
		UpdatedTime: now,
	}
}

// Touch updates the part's updated timestamp.
func (m *PartMeta) Touch() { m.UpdatedTime = time.Now().UTC() }

// Meta returns the common part fields.
func (m *PartMeta) Meta() *PartMeta { return m }

// PartID returns the part identifier.
func (m *PartMeta) PartID() string { return m.ID }

// TextPart carries markdown text content.
type TextPart struct {
	PartMeta
	TextData
}

// TextData is the variant payload of a TextPart.
type TextData struct {
	Text string `json:"text"`
}

// NewTextPart creates a text part.
func NewTextPart(id, messageID, sessionID, text string) *TextPart {
	return &TextPart{PartMeta: newPartMeta(id, messageID, sessionID), TextData: TextData{Text: text}}
}

func (p *TextPart) PartType() PartType { return PartText }
func (p *TextPart) payload() any       { return &p.TextData }

// ReasoningPart carries the model's visible thinking.
type ReasoningPart struct {
	PartMeta
	ReasoningData
}

// ReasoningData is the variant payload of a ReasoningPart.
type ReasoningData struct {
	Text string `json:"text"`
}

// NewReasoningPart creates a reasoning part.
func NewReasoningPart(id, messageID, sessionID, text string) *ReasoningPart {
	return &ReasoningPart{PartMeta: newPartMeta(id, messageID, sessionID), ReasoningData: ReasoningData{Text: text}}
}

func (p *ReasoningPart) PartType() PartType { return PartReasoning }
func (p *ReasoningPart) payload() any       { return &p.ReasoningData }

// ToolState is the lifecycle state of a tool call.
type ToolState string

const (
	ToolPending   ToolState = "PENDING"
	ToolRunning   ToolState = "RUNNING"
	ToolCompleted ToolState = "COMPLETED"
	ToolError     ToolState = "ERROR"
)

// ErrTerminalToolState is returned when a transition is attempted on a
// tool part that already reached COMPLETED or ERROR.
var ErrTerminalToolState = errors.New("tool part is in a terminal state")

// ToolPart tracks one tool invocation: PENDING -> RUNNING -> COMPLETED/ERROR.
type ToolPart struct {
	PartMeta
	ToolData
}

// ToolData is the variant payload of a ToolPart.
type ToolData struct {
	ToolName string         `json:"toolName"`
	State    ToolState      `json:"state"`
	Input    map[string]any `json:"input,omitempty"`
	Output   string         `json:"output,omitempty"`
	Title    string         `json:"title,omitempty"`
	Content  string         `json:"content,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// NewToolPart creates a tool part in the PENDING state.
func NewToolPart(id, messageID, sessionID, toolName string, input map[string]any) *ToolPart {
	return &ToolPart{
		PartMeta: newPartMeta(id, messageID, sessionID),
		ToolData: ToolData{ToolName: toolName, State: ToolPending, Input: input},
	}
}

func (p *ToolPart) PartType() PartType { return PartTool }
func (p *ToolPart) payload() any       { return &p.ToolData }

// Terminal reports whether the part reached COMPLETED or ERROR.
func (p *ToolPart) Terminal() bool {
	return p.State == ToolCompleted || p.State == ToolError
}

// TransitionRunning moves the part from PENDING to RUNNING.
func (p *ToolPart) TransitionRunning() error {
	if p.Terminal() {
		return fmt.Errorf("%w: %s -> RUNNING", ErrTerminalToolState, p.State)
	}
	if p.State != ToolPending {
		return fmt.Errorf("tool part %s: cannot transition %s -> RUNNING", p.ID, p.State)
	}
	p.State = ToolRunning
	p.Touch()
	return nil
}

// TransitionCompleted moves the part from RUNNING to COMPLETED.
func (p *ToolPart) TransitionCompleted(output, title, content string) error {
	if p.Terminal() {
		return fmt.Errorf("%w: %s -> COMPLETED", ErrTerminalToolState, p.State)
	}
	if p.State != ToolRunning {
		return fmt.Errorf("tool part %s: cannot transition %s -> COMPLETED", p.ID, p.State)
	}
	p.State = ToolCompleted
	p.Output = output
	p.Title = title
	p.Content = content
	p.Touch()
	return nil
}

// TransitionError moves the part from PENDING or RUNNING to ERROR.
func (p *ToolPart) TransitionError(errMsg string) error {
	if p.Terminal() {
		return fmt.Errorf("%w: %s -> ERROR", ErrTerminalToolState, p.State)
	}
	p.State = ToolError
	p.Error = errMsg
	p.Touch()
	return nil
}

// GoalStatus is the status of a goal part.
type GoalStatus string

const (
	GoalPending    GoalStatus = "PENDING"
	GoalInProgress GoalStatus = "IN_PROGRESS"
	GoalCompleted  GoalStatus = "COMPLETED"
)

// GoalPart describes the user-level objective the round is working toward.
type GoalPart struct {
	PartMeta
	GoalData
}

// GoalData is the variant payload of a GoalPart.
type GoalData struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      GoalStatus `json:"status"`
}

// NewGoalPart creates a goal part in the PENDING state.
func NewGoalPart(id, messageID, sessionID, title, description string) *GoalPart {
	return &GoalPart{
		PartMeta: newPartMeta(id, messageID, sessionID),
		GoalData: GoalData{Title: title, Description: description, Status: GoalPending},
	}
}

func (p *GoalPart) PartType() PartType { return PartGoal }
func (p *GoalPart) payload() any       { return &p.GoalData }

// ProgressPart reports step progress within a round.
type ProgressPart struct {
	PartMeta
	ProgressData
}

// ProgressData is the variant payload of a ProgressPart.
type ProgressData struct {
	CurrentStep int    `json:"currentStep"`
	TotalSteps  int    `json:"totalSteps"`
	StepName    string `json:"stepName,omitempty"`
}

// NewProgressPart creates a progress part.
func NewProgressPart(id, messageID, sessionID string, current, total int, stepName string) *ProgressPart {
	return &ProgressPart{
		PartMeta:     newPartMeta(id, messageID, sessionID),
		ProgressData: ProgressData{CurrentStep: current, TotalSteps: total, StepName: stepName},
	}
}

func (p *ProgressPart) PartType() PartType { return PartProgress }
func (p *ProgressPart) payload() any       { return &p.ProgressData }

// TodoStatus is the status of a single todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "PENDING"
	TodoInProgress TodoStatus = "IN_PROGRESS"
	TodoCompleted  TodoStatus = "COMPLETED"
)

// TodoItem is one entry of a todo list part.
type TodoItem struct {
	ID      string     `json:"id"`
	Content string     `json:"content"`
	Status  TodoStatus `json:"status"`
}

// TodoPart carries the round's todo list.
type TodoPart struct {
	PartMeta
	TodoData
}

// TodoData is the variant payload of a TodoPart.
type TodoData struct {
	Items []TodoItem `json:"items"`
}

// NewTodoPart creates a todo part.
func NewTodoPart(id, messageID, sessionID string, items []TodoItem) *TodoPart {
	return &TodoPart{PartMeta: newPartMeta(id, messageID, sessionID), TodoData: TodoData{Items: items}}
}

func (p *TodoPart) PartType() PartType { return PartTodo }
func (p *TodoPart) payload() any       { return &p.TodoData }

// SubTaskStatus is the scheduling status of a subtask.
type SubTaskStatus string

const (
	SubTaskPending    SubTaskStatus = "PENDING"
	SubTaskInProgress SubTaskStatus = "IN_PROGRESS"
	SubTaskCompleted  SubTaskStatus = "COMPLETED"
	SubTaskBlocked    SubTaskStatus = "BLOCKED"
	SubTaskCancelled  SubTaskStatus = "CANCELLED"
)

// SubTaskPart is an executable sub-goal. Subtasks with an empty DependsOn
// set are eligible immediately; the rest become eligible once every
// dependency is COMPLETED.
type SubTaskPart struct {
	PartMeta
	SubTaskData
}

// SubTaskData is the variant payload of a SubTaskPart.
type SubTaskData struct {
	Target        string        `json:"target,omitempty"`
	Question      string        `json:"question"`
	Reason        string        `json:"reason,omitempty"`
	RequiredTools []string      `json:"requiredTools,omitempty"`
	Status        SubTaskStatus `json:"status"`
	Conclusion    string        `json:"conclusion,omitempty"`
	BlockReason   string        `json:"blockReason,omitempty"`
	DependsOn     []string      `json:"dependsOn,omitempty"`
}

// NewSubTaskPart creates a subtask part in the PENDING state.
func NewSubTaskPart(id, messageID, sessionID, target, question string) *SubTaskPart {
	return &SubTaskPart{
		PartMeta:    newPartMeta(id, messageID, sessionID),
		SubTaskData: SubTaskData{Target: target, Question: question, Status: SubTaskPending},
	}
}

func (p *SubTaskPart) PartType() PartType { return PartSubTask }
func (p *SubTaskPart) payload() any       { return &p.SubTaskData }

// Start marks the subtask IN_PROGRESS.
func (p *SubTaskPart) Start() {
	p.Status = SubTaskInProgress
	p.Touch()
}

// Complete records the conclusion and marks the subtask COMPLETED.
func (p *SubTaskPart) Complete(conclusion string) {
	p.Conclusion = conclusion
	p.Status = SubTaskCompleted
	p.Touch()
}

// Block marks the subtask BLOCKED with a reason.
func (p *SubTaskPart) Block(reason string) {
	p.BlockReason = reason
	p.Status = SubTaskBlocked
	p.Touch()
}

// Cancel marks the subtask CANCELLED.
func (p *SubTaskPart) Cancel() {
	p.Status = SubTaskCancelled
	p.Touch()
}

// HasDependencies reports whether the subtask depends on other subtasks.
func (p *SubTaskPart) HasDependencies() bool { return len(p.DependsOn) > 0 }

// partEnvelope is the serialized form shared by the wire protocol and
// session persistence: common fields at the top level, variant fields
// nested under "data".
type partEnvelope struct {
	ID          string          `json:"id"`
	MessageID   string          `json:"messageId"`
	SessionID   string          `json:"sessionId"`
	Type        PartType        `json:"type"`
	CreatedTime time.Time       `json:"createdTime"`
	UpdatedTime time.Time       `json:"updatedTime"`
	Data        json.RawMessage `json:"data"`
}

// MarshalPart serializes a part into its envelope form.
func MarshalPart(p Part) ([]byte, error) {
	data, err := json.Marshal(p.payload())
	if err != nil {
		return nil, fmt.Errorf("marshal part data: %w", err)
	}
	meta := p.Meta()
	return json.Marshal(partEnvelope{
		ID:          meta.ID,
		MessageID:   meta.MessageID,
		SessionID:   meta.SessionID,
		Type:        p.PartType(),
		CreatedTime: meta.CreatedTime,
		UpdatedTime: meta.UpdatedTime,
		Data:        data,
	})
}

// UnmarshalPart deserializes a part from its envelope form.
func UnmarshalPart(b []byte) (Part, error) {
	var env partEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("unmarshal part envelope: %w", err)
	}

	var p Part
	switch env.Type {
	case PartText:
		p = &TextPart{}
	case PartReasoning:
		p = &ReasoningPart{}
	case PartTool:
		p = &ToolPart{}
	case PartGoal:
		p = &GoalPart{}
	case PartProgress:
		p = &ProgressPart{}
	case PartTodo:
		p = &TodoPart{}
	case PartSubTask:
		p = &SubTaskPart{}
	default:
		return nil, fmt.Errorf("unknown part type: %q", env.Type)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, p.payload()); err != nil {
			return nil, fmt.Errorf("unmarshal %s part data: %w", env.Type, err)
		}
	}

	meta := p.Meta()
	meta.ID = env.ID
	meta.MessageID = env.MessageID
	meta.SessionID = env.SessionID
	meta.CreatedTime = env.CreatedTime
	meta.UpdatedTime = env.UpdatedTime
	return p, nil
}
