package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

const DefaultWorkers = 8

// Pool bounds how many submitted tasks run at once.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
	wg   sync.WaitGroup
}

// NewPool creates a pool running at most size tasks concurrently.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultWorkers
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return int(p.size)
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Await blocks until the task completes or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Submit schedules fn on the pool and returns immediately.
// If ctx ends before a worker slot frees up, the future resolves with ctx.Err().
func Submit[T any](p *Pool, ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(f.done)
		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.err = err
			return
		}
		defer p.sem.Release(1)
		f.value, f.err = fn(ctx)
	}()
	return f
}

// Resolved returns a future that is already complete.
func Resolved[T any](value T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), value: value, err: err}
	close(f.done)
	return f
}
