package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/smancode/sman-sub006/internal/logging"
	"github.com/smancode/sman-sub006/pkg/types"
)

// SubTaskRunner executes one subtask and returns its conclusion.
type SubTaskRunner func(ctx context.Context, task *types.SubTaskPart) (string, error)

// SubTaskExecutor runs a batch of subtasks respecting their dependsOn
// edges: independent tasks run concurrently (bounded by workers), a
// dependent task starts only once every dependency is COMPLETED.
type SubTaskExecutor struct {
	workers int
}

// NewSubTaskExecutor creates an executor with the given concurrency.
func NewSubTaskExecutor(workers int) *SubTaskExecutor {
	if workers < 1 {
		workers = 1
	}
	return &SubTaskExecutor{workers: workers}
}

// Execute runs the tasks in dependency layers. onUpdate, if non-nil, is
// called after every status change so progress can be streamed out.
// Tasks whose dependencies fail or form a cycle are marked BLOCKED.
func (e *SubTaskExecutor) Execute(ctx context.Context, tasks []*types.SubTaskPart, run SubTaskRunner, onUpdate func(*types.SubTaskPart)) error {
	notify := func(t *types.SubTaskPart) {
		if onUpdate != nil {
			onUpdate(t)
		}
	}

	byID := make(map[string]*types.SubTaskPart, len(tasks))
	for _, t := range tasks {
		byID[t.PartID()] = t
	}

	for {
		if err := ctx.Err(); err != nil {
			for _, t := range tasks {
				if t.Status == types.SubTaskPending {
					t.Cancel()
					notify(t)
				}
			}
			return err
		}

		layer := eligible(tasks, byID)
		if len(layer) == 0 {
			break
		}

		sem := make(chan struct{}, e.workers)
		var wg sync.WaitGroup
		for _, t := range layer {
			wg.Add(1)
			sem <- struct{}{}
			go func(t *types.SubTaskPart) {
				defer wg.Done()
				defer func() { <-sem }()

				t.Start()
				notify(t)
				conclusion, err := run(ctx, t)
				if err != nil {
					logging.Error().Err(err).Str("subtaskId", t.PartID()).Msg("subtask failed")
					t.Block(err.Error())
				} else {
					t.Complete(conclusion)
				}
				notify(t)
			}(t)
		}
		wg.Wait()
	}

	// Anything still pending has an unsatisfiable dependency: a blocked
	// ancestor, an unknown id, or a cycle.
	for _, t := range tasks {
		if t.Status == types.SubTaskPending {
			t.Block(blockReason(t, byID))
			notify(t)
		}
	}
	return nil
}

// eligible returns the pending tasks whose dependencies are all
// completed.
func eligible(tasks []*types.SubTaskPart, byID map[string]*types.SubTaskPart) []*types.SubTaskPart {
	var out []*types.SubTaskPart
	for _, t := range tasks {
		if t.Status != types.SubTaskPending {
			continue
		}
		ready := true
		for _, dep := range t.DependsOn {
			d, ok := byID[dep]
			if !ok || d.Status != types.SubTaskCompleted {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, t)
		}
	}
	return out
}

func blockReason(t *types.SubTaskPart, byID map[string]*types.SubTaskPart) string {
	for _, dep := range t.DependsOn {
		d, ok := byID[dep]
		if !ok {
			return fmt.Sprintf("depends on unknown subtask %s", dep)
		}
		switch d.Status {
		case types.SubTaskBlocked:
			return fmt.Sprintf("dependency %s is blocked", dep)
		case types.SubTaskCancelled:
			return fmt.Sprintf("dependency %s was cancelled", dep)
		case types.SubTaskPending:
			return fmt.Sprintf("dependency cycle through %s", dep)
		}
	}
	return "dependencies not satisfied"
}
