package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/smancode/sman-sub006/pkg/types"
)

// TodoStore keeps the working todo list per session.
type TodoStore struct {
	mu    sync.RWMutex
	lists map[string][]types.TodoItem
}

// NewTodoStore creates an empty todo store.
func NewTodoStore() *TodoStore {
	return &TodoStore{lists: make(map[string][]types.TodoItem)}
}

// Set replaces the session's todo list.
func (s *TodoStore) Set(sessionID string, items []types.TodoItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[sessionID] = items
}

// Get returns the session's todo list.
func (s *TodoStore) Get(sessionID string) []types.TodoItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lists[sessionID]
}

// Clear drops the session's todo list.
func (s *TodoStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lists, sessionID)
}

var todoWriteParams = json.RawMessage(`{
	"type": "object",
	"properties": {
		"todos": {
			"type": "array",
			"description": "The full todo list, replacing the previous one",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "string", "description": "Stable item id"},
					"content": {"type": "string", "description": "What needs to be done"},
					"status": {"type": "string", "enum": ["PENDING", "IN_PROGRESS", "COMPLETED"]}
				},
				"required": ["content", "status"]
			}
		}
	},
	"required": ["todos"]
}`)

// NewTodoWriteTool creates the tool the model uses to maintain its plan.
func NewTodoWriteTool(store *TodoStore) Tool {
	return NewBaseTool(
		"todo_write",
		"Replace the session todo list with an updated plan.",
		todoWriteParams,
		func(ctx context.Context, tc *Context, input map[string]any) (*Result, error) {
			raw, ok := input["todos"]
			if !ok {
				return nil, fmt.Errorf("todo_write: missing todos")
			}
			data, err := json.Marshal(raw)
			if err != nil {
				return nil, fmt.Errorf("todo_write: %w", err)
			}
			var items []types.TodoItem
			if err := json.Unmarshal(data, &items); err != nil {
				return nil, fmt.Errorf("todo_write: invalid todos: %w", err)
			}
			for i := range items {
				if items[i].ID == "" {
					items[i].ID = types.NewID()
				}
			}
			store.Set(tc.SessionID, items)
			return &Result{
				Title:  fmt.Sprintf("%d todos", len(items)),
				Output: renderTodos(items),
			}, nil
		},
	)
}

// NewTodoReadTool creates the tool that reads the current plan back.
func NewTodoReadTool(store *TodoStore) Tool {
	return NewBaseTool(
		"todo_read",
		"Read the current session todo list.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
		func(ctx context.Context, tc *Context, input map[string]any) (*Result, error) {
			items := store.Get(tc.SessionID)
			if len(items) == 0 {
				return &Result{Output: "no todos"}, nil
			}
			return &Result{
				Title:  fmt.Sprintf("%d todos", len(items)),
				Output: renderTodos(items),
			}, nil
		},
	)
}

func renderTodos(items []types.TodoItem) string {
	var b strings.Builder
	for _, item := range items {
		mark := " "
		switch item.Status {
		case types.TodoInProgress:
			mark = "~"
		case types.TodoCompleted:
			mark = "x"
		}
		fmt.Fprintf(&b, "[%s] %s\n", mark, item.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
