/**
 * Single-worker executor
 *
 * Recognition runs on one dedicated goroutine owned by the processor.
 * Submissions queue in FIFO order. A job whose caller gave up while it was
 * still queued is skipped; a job that has started always runs to
 * completion and settles exactly once.
 */

package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Submit after Close
var ErrClosed = stderrors.New("executor closed")

// PanicError carries a value recovered from a job
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}

type job struct {
	ctx    context.Context
	fn     func() (interface{}, error)
	result chan outcome
}

type outcome struct {
	value interface{}
	err   error
}

// Executor runs submitted jobs one at a time on a single goroutine
type Executor struct {
	jobs   chan *job
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts an executor whose queue holds up to backlog pending jobs.
// Submit blocks while the queue is full.
func New(backlog int) *Executor {
	if backlog <= 0 {
		backlog = 64
	}
	e := &Executor{jobs: make(chan *job, backlog)}
	e.wg.Add(1)
	go e.worker()
	return e
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for j := range e.jobs {
		if j.ctx.Err() != nil {
			j.result <- outcome{err: j.ctx.Err()}
			continue
		}
		j.result <- run(j.fn)
	}
}

func run(fn func() (interface{}, error)) (o outcome) {
	defer func() {
		if p := recover(); p != nil {
			o = outcome{err: &PanicError{Value: p}}
		}
	}()
	v, err := fn()
	return outcome{value: v, err: err}
}

// Submit queues fn and waits for its result. If ctx ends before fn starts,
// fn never runs and ctx's error is returned. Once fn has started, Submit
// still returns ctx's error when ctx ends, but fn keeps running.
func (e *Executor) Submit(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	j := &job{ctx: ctx, fn: fn, result: make(chan outcome, 1)}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrClosed
	}
	select {
	case e.jobs <- j:
		e.mu.RUnlock()
	case <-ctx.Done():
		e.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case o := <-j.result:
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting jobs, drains the queue and waits for the worker
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()
	e.wg.Wait()
}
