package engine

import (
	"context"
	"errors"
	"sync"
)

var (
	errPoolFull   = errors.New("worker pool queue full")
	errPoolClosed = errors.New("worker pool closed")
)

// workerPool runs a fixed number of goroutines over a bounded queue.
// Submit after Drain reports errPoolClosed instead of sending on the closed
// queue, so events published by in-flight work during shutdown are not lost.
type workerPool[T any] struct {
	queue   chan T
	process func(ctx context.Context, t T)
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newWorkerPool[T any](ctx context.Context, workers, depth int, fn func(context.Context, T)) *workerPool[T] {
	p := &workerPool[T]{
		queue:   make(chan T, depth),
		process: fn,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run(ctx)
	}
	return p
}

func (p *workerPool[T]) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, item)
		}
	}
}

// Submit enqueues item without blocking.
func (p *workerPool[T]) Submit(item T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errPoolClosed
	}
	select {
	case p.queue <- item:
		return nil
	default:
		return errPoolFull
	}
}

// Drain stops intake, then waits until the workers have emptied the queue.
// It is safe to call more than once.
func (p *workerPool[T]) Drain() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *workerPool[T]) QueueLen() int { return len(p.queue) }

func (p *workerPool[T]) QueueCap() int { return cap(p.queue) }
