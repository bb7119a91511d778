// Package task runs detached fire-and-forget work. A task never reports
// back to the code that started it; failures go to the runner's own error
// channel and are logged from there.
package task

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Failure is a task error delivered on the runner's error channel.
type Failure struct {
	Name string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Name, f.Err)
}

// Runner starts detached tasks with a bounded per-task timeout.
type Runner struct {
	ctx     context.Context
	timeout time.Duration
	wg      sync.WaitGroup
	errs    chan Failure
	drained chan struct{}
	observe func(Failure)

	mu     sync.Mutex
	closed bool
}

// NewRunner creates a runner whose tasks derive from ctx. A zero timeout
// means tasks run until ctx is cancelled.
func NewRunner(ctx context.Context, timeout time.Duration) *Runner {
	r := &Runner{
		ctx:     ctx,
		timeout: timeout,
		errs:    make(chan Failure, 64),
		drained: make(chan struct{}),
	}
	go r.drain()
	return r
}

// Observe registers fn to be called for every failure after it is logged.
// It must be set before any task starts.
func (r *Runner) Observe(fn func(Failure)) {
	r.observe = fn
}

// Go runs fn in its own goroutine. It returns immediately. After Close the
// task is dropped.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		log.Printf("⚠️  task %s dropped: runner closed", name)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		ctx := r.ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		defer func() {
			if p := recover(); p != nil {
				r.report(Failure{Name: name, Err: fmt.Errorf("panic: %v", p)})
			}
		}()
		if err := fn(ctx); err != nil {
			r.report(Failure{Name: name, Err: err})
		}
	}()
}

// Wait blocks until every started task has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close refuses new tasks, waits for running ones and stops the error
// drain. Calling it again is a no-op.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	close(r.errs)
	<-r.drained
}

func (r *Runner) report(f Failure) {
	select {
	case r.errs <- f:
	default:
		log.Printf("⚠️  task %s failed (error channel full): %v", f.Name, f.Err)
	}
}

func (r *Runner) drain() {
	defer close(r.drained)
	for f := range r.errs {
		log.Printf("⚠️  task %s failed: %v", f.Name, f.Err)
		if r.observe != nil {
			r.observe(f)
		}
	}
}
