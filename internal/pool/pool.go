// Package pool provides a fixed-size pool of pre-created, exclusively
// borrowed handles to a scarce synchronous resource (inference sessions,
// direct store connections). Acquisition blocks when the pool is saturated;
// backpressure is intentional and there is no acquisition timeout.
package pool

import (
	"fmt"
)

// Pool holds a fixed number of handles of type T. Handles are created
// eagerly at construction and recycled through a buffered channel, so an
// Acquire never observes a handle another caller still owns.
type Pool[T any] struct {
	handles chan T
	size    int
	closeFn func(T) error
}

// New creates a pool of size handles, each produced by factory.
// Construction fails atomically: if any factory call fails, handles created
// so far are closed via closeFn (if non-nil) and the error is returned.
func New[T any](size int, factory func() (T, error), closeFn func(T) error) (*Pool[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}

	p := &Pool[T]{
		handles: make(chan T, size),
		size:    size,
		closeFn: closeFn,
	}

	for i := 0; i < size; i++ {
		h, err := factory()
		if err != nil {
			p.drainAndClose()
			return nil, fmt.Errorf("creating pool handle %d/%d: %w", i+1, size, err)
		}
		p.handles <- h
	}

	return p, nil
}

// Acquire blocks until a handle is available and returns exclusive ownership
// of it. The caller must return the handle with Release through every exit
// path; prefer With for that discipline.
func (p *Pool[T]) Acquire() T {
	return <-p.handles
}

// Release returns a handle to the pool and wakes one waiter.
func (p *Pool[T]) Release(h T) {
	select {
	case p.handles <- h:
	default:
		// More releases than acquisitions is a programming bug.
		panic("pool: release without matching acquire")
	}
}

// With runs fn with an exclusively owned handle and guarantees the handle is
// returned to the pool even when fn returns an error or panics.
func (p *Pool[T]) With(fn func(T) error) error {
	h := p.Acquire()
	defer p.Release(h)
	return fn(h)
}

// Size returns the fixed pool capacity.
func (p *Pool[T]) Size() int {
	return p.size
}

// Idle returns the number of handles currently available without blocking.
func (p *Pool[T]) Idle() int {
	return len(p.handles)
}

// Close drains the pool and closes every handle. It must only be called once
// all borrowed handles have been returned; it is intended for process
// shutdown after the loops and server have stopped.
func (p *Pool[T]) Close() error {
	return p.drainAndClose()
}

func (p *Pool[T]) drainAndClose() error {
	var firstErr error
	for {
		select {
		case h := <-p.handles:
			if p.closeFn != nil {
				if err := p.closeFn(h); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		default:
			return firstErr
		}
	}
}
