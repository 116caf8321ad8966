package pool

import (
	"context"
	"sync"
)

// WorkerPool bounds the number of conversions running at once.
type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWorkerPool(maxWorkers int) *WorkerPool {
	return &WorkerPool{
		sem: make(chan struct{}, maxWorkers),
	}
}

// Submit runs task on its own goroutine once a worker slot frees up.
// Returns immediately; if ctx is cancelled before a slot opens the task
// is dropped.
func (p *WorkerPool) Submit(ctx context.Context, task func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
			task(ctx)
		case <-ctx.Done():
		}
	}()
}

// Wait blocks until all submitted tasks have finished.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
