// Package pool runs the solver's parallel stages on a fixed set of worker
// goroutines that live as long as the solver.
//
// Work is submitted either as an index range ([Pool.ParallelFor],
// [Pool.ParallelForAll]) or as a dependency graph ([Pool.Run]). Each task
// learns the index of the worker executing it, so callers can keep
// per-worker state (cloned collaborators, scratch buffers) without locking.
// The goroutine that submits work is not a worker and owns slot Size().
//
// Stages must not be nested: a task running on the pool must never submit
// work to the same pool.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var ErrClosed = errors.New("pool: closed")

// ErrPanic wraps a panic recovered from a task.
var ErrPanic = errors.New("pool: task panicked")

// Task is one unit of work. worker is in [0, Size()).
type Task func(ctx context.Context, worker int) error

type job struct {
	ctx  context.Context
	fn   Task
	done func(error)
}

type Pool struct {
	size int
	jobs chan job
	g    errgroup.Group

	mu     sync.RWMutex
	closed bool
}

// New starts n workers (at least one).
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{size: n, jobs: make(chan job)}
	for w := 0; w < n; w++ {
		p.g.Go(func() error {
			for j := range p.jobs {
				j.done(p.exec(j, w))
			}
			return nil
		})
	}
	return p
}

func (p *Pool) exec(j job, worker int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w on worker %d: %v", ErrPanic, worker, r)
		}
	}()
	if err := j.ctx.Err(); err != nil {
		return err
	}
	return j.fn(j.ctx, worker)
}

// Size is the number of workers.
func (p *Pool) Size() int { return p.size }

// CoordinatorSlot is the per-worker slot reserved for the submitting goroutine.
func (p *Pool) CoordinatorSlot() int { return p.size }

// Close stops the workers after in-flight tasks finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	return p.g.Wait()
}

func (p *Pool) submit(ctx context.Context, fn Task, done func(error)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job{ctx: ctx, fn: fn, done: done}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ParallelFor calls fn for every i in [0, n). The first error cancels the
// remaining iterations and is returned once all running calls have finished.
func (p *Pool) ParallelFor(ctx context.Context, n int, fn func(ctx context.Context, worker, i int) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	err := p.spread(ctx, n, func(ctx context.Context, worker, i int) error {
		if err := fn(ctx, worker, i); err != nil {
			fail(err)
			return err
		}
		return nil
	}, true)
	if firstErr != nil {
		return firstErr
	}
	return err
}

// ParallelForAll calls fn for every i in [0, n) regardless of failures and
// returns all errors combined, in index order.
func (p *Pool) ParallelForAll(ctx context.Context, n int, fn func(ctx context.Context, worker, i int) error) error {
	errs := make([]error, n)
	err := p.spread(ctx, n, func(ctx context.Context, worker, i int) error {
		errs[i] = fn(ctx, worker, i)
		return nil
	}, false)
	if err != nil {
		return err
	}
	return multierr.Combine(errs...)
}

// spread hands out indices to at most Size() jobs and waits for all of them.
func (p *Pool) spread(ctx context.Context, n int, fn func(ctx context.Context, worker, i int) error, stopOnErr bool) error {
	if n <= 0 {
		return nil
	}
	jobs := p.size
	if n < jobs {
		jobs = n
	}

	var (
		next    atomic.Int64
		wg      sync.WaitGroup
		stopped atomic.Bool
	)
	loop := func(ctx context.Context, worker int) error {
		for !stopped.Load() {
			i := int(next.Add(1) - 1)
			if i >= n {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, worker, i); err != nil && stopOnErr {
				stopped.Store(true)
				return err
			}
		}
		return nil
	}

	var (
		mu     sync.Mutex
		jobErr error
	)
	finish := func(err error) {
		if err != nil && !errors.Is(err, context.Canceled) {
			mu.Lock()
			if jobErr == nil {
				jobErr = err
			}
			mu.Unlock()
		}
		wg.Done()
	}

	var submitErr error
	for j := 0; j < jobs; j++ {
		wg.Add(1)
		if err := p.submit(ctx, loop, finish); err != nil {
			wg.Done()
			submitErr = err
			break
		}
	}
	wg.Wait()
	switch {
	case jobErr != nil:
		return jobErr
	case submitErr != nil:
		return submitErr
	}
	return ctx.Err()
}
