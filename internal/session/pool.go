package session

import (
	"context"
	"errors"
	"sync"
)

// ErrSaturated is returned by Submit when every worker is busy. The
// pool carries no queue: a round either starts immediately or is
// rejected so the client gets instant backpressure.
var ErrSaturated = errors.New("worker pool saturated")

// WorkerPool runs tasks on a fixed set of workers with a zero-length
// queue. Tokens in free mirror idle workers, so saturation is decided
// by capacity rather than by whether a worker goroutine has been
// scheduled yet.
type WorkerPool struct {
	tasks chan func()
	free  chan struct{}
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewWorkerPool starts a pool with the given number of workers.
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	p := &WorkerPool{
		tasks: make(chan func()),
		free:  make(chan struct{}, workers),
		quit:  make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		p.free <- struct{}{}
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			task()
			p.free <- struct{}{}
		case <-p.quit:
			return
		}
	}
}

// Submit hands the task to an idle worker. If none is free it returns
// ErrSaturated without blocking.
func (p *WorkerPool) Submit(task func()) error {
	select {
	case <-p.quit:
		return ErrSaturated
	default:
	}
	select {
	case <-p.free:
	default:
		return ErrSaturated
	}
	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		p.free <- struct{}{}
		return ErrSaturated
	}
}

// Shutdown stops accepting tasks and waits for running tasks to finish
// or the context to expire.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.once.Do(func() { close(p.quit) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
