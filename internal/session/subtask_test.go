package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smancode/sman-sub006/pkg/types"
)

func newSubTask(question string, deps ...string) *types.SubTaskPart {
	st := types.NewSubTaskPart(types.NewID(), "msg1", "sess1", "", question)
	st.DependsOn = deps
	return st
}

func TestSubTaskExecutorRunsIndependentTasks(t *testing.T) {
	exec := NewSubTaskExecutor(4)
	a := newSubTask("a")
	b := newSubTask("b")

	err := exec.Execute(context.Background(), []*types.SubTaskPart{a, b},
		func(ctx context.Context, task *types.SubTaskPart) (string, error) {
			return "answer to " + task.Question, nil
		}, nil)
	require.NoError(t, err)

	assert.Equal(t, types.SubTaskCompleted, a.Status)
	assert.Equal(t, types.SubTaskCompleted, b.Status)
	assert.Equal(t, "answer to a", a.Conclusion)
}

func TestSubTaskExecutorRespectsDependencies(t *testing.T) {
	exec := NewSubTaskExecutor(4)
	a := newSubTask("a")
	b := newSubTask("b")
	c := newSubTask("c", a.PartID(), b.PartID())

	var mu sync.Mutex
	var order []string
	err := exec.Execute(context.Background(), []*types.SubTaskPart{c, a, b},
		func(ctx context.Context, task *types.SubTaskPart) (string, error) {
			mu.Lock()
			order = append(order, task.Question)
			mu.Unlock()
			return "ok", nil
		}, nil)
	require.NoError(t, err)

	require.Len(t, order, 3)
	assert.Equal(t, "c", order[2], "dependent task must run last")
	assert.Equal(t, types.SubTaskCompleted, c.Status)
}

func TestSubTaskExecutorBlocksDependentsOfFailedTask(t *testing.T) {
	exec := NewSubTaskExecutor(2)
	a := newSubTask("a")
	b := newSubTask("b", a.PartID())

	err := exec.Execute(context.Background(), []*types.SubTaskPart{a, b},
		func(ctx context.Context, task *types.SubTaskPart) (string, error) {
			if task.Question == "a" {
				return "", fmt.Errorf("tool unavailable")
			}
			return "ok", nil
		}, nil)
	require.NoError(t, err)

	assert.Equal(t, types.SubTaskBlocked, a.Status)
	assert.Equal(t, "tool unavailable", a.BlockReason)
	assert.Equal(t, types.SubTaskBlocked, b.Status)
	assert.Contains(t, b.BlockReason, "blocked")
}

func TestSubTaskExecutorBlocksCycles(t *testing.T) {
	exec := NewSubTaskExecutor(2)
	a := types.NewSubTaskPart(types.NewID(), "msg1", "sess1", "", "a")
	b := types.NewSubTaskPart(types.NewID(), "msg1", "sess1", "", "b")
	a.DependsOn = []string{b.PartID()}
	b.DependsOn = []string{a.PartID()}

	ran := false
	err := exec.Execute(context.Background(), []*types.SubTaskPart{a, b},
		func(ctx context.Context, task *types.SubTaskPart) (string, error) {
			ran = true
			return "ok", nil
		}, nil)
	require.NoError(t, err)

	assert.False(t, ran)
	assert.Equal(t, types.SubTaskBlocked, a.Status)
	assert.Equal(t, types.SubTaskBlocked, b.Status)
	assert.Contains(t, a.BlockReason, "cycle")
}

func TestSubTaskExecutorBlocksUnknownDependency(t *testing.T) {
	exec := NewSubTaskExecutor(2)
	a := newSubTask("a", "no-such-id")

	err := exec.Execute(context.Background(), []*types.SubTaskPart{a},
		func(ctx context.Context, task *types.SubTaskPart) (string, error) {
			return "ok", nil
		}, nil)
	require.NoError(t, err)

	assert.Equal(t, types.SubTaskBlocked, a.Status)
	assert.Contains(t, a.BlockReason, "unknown")
}

func TestSubTaskExecutorCancelledContext(t *testing.T) {
	exec := NewSubTaskExecutor(2)
	a := newSubTask("a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Execute(ctx, []*types.SubTaskPart{a},
		func(ctx context.Context, task *types.SubTaskPart) (string, error) {
			return "ok", nil
		}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.SubTaskCancelled, a.Status)
}

func TestSubTaskExecutorNotifiesUpdates(t *testing.T) {
	exec := NewSubTaskExecutor(1)
	a := newSubTask("a")

	var statuses []types.SubTaskStatus
	err := exec.Execute(context.Background(), []*types.SubTaskPart{a},
		func(ctx context.Context, task *types.SubTaskPart) (string, error) {
			return "ok", nil
		},
		func(task *types.SubTaskPart) { statuses = append(statuses, task.Status) })
	require.NoError(t, err)

	assert.Equal(t, []types.SubTaskStatus{types.SubTaskInProgress, types.SubTaskCompleted}, statuses)
}
