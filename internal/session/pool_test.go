package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown(context.Background())

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

func TestWorkerPoolAcceptsFullCapacityImmediately(t *testing.T) {
	// A fresh pool takes one task per worker straight away, even
	// before its worker goroutines have been scheduled.
	pool := NewWorkerPool(3)
	defer pool.Shutdown(context.Background())

	gate := make(chan struct{})
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(func() { <-gate }))
	}
	assert.ErrorIs(t, pool.Submit(func() {}), ErrSaturated)
	close(gate)
}

func TestWorkerPoolRejectsWhenSaturated(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Shutdown(context.Background())

	gate := make(chan struct{})
	require.NoError(t, pool.Submit(func() { <-gate }))
	require.NoError(t, pool.Submit(func() { <-gate }))

	// Both workers are busy and there is no queue.
	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, ErrSaturated)

	close(gate)
}

func TestWorkerPoolFreesWorkerAfterTask(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown(context.Background())

	gate := make(chan struct{})
	require.NoError(t, pool.Submit(func() { <-gate }))
	assert.ErrorIs(t, pool.Submit(func() {}), ErrSaturated)
	close(gate)

	assert.Eventually(t, func() bool {
		return pool.Submit(func() {}) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerPoolShutdown(t *testing.T) {
	pool := NewWorkerPool(4)
	require.NoError(t, pool.Shutdown(context.Background()))

	assert.ErrorIs(t, pool.Submit(func() {}), ErrSaturated)
}

func TestWorkerPoolShutdownTimeout(t *testing.T) {
	pool := NewWorkerPool(1)

	gate := make(chan struct{})
	require.NoError(t, pool.Submit(func() { <-gate }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, pool.Shutdown(ctx))

	close(gate)
}
