package utils

import (
	"context"
	"sync"
)

// Pending is the result of an operation that completes later. It is resolved
// exactly once; later Resolve calls are ignored.
type Pending[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func NewPending[T any]() *Pending[T] {
	return &Pending[T]{done: make(chan struct{})}
}

// Resolved returns a Pending that is already complete.
func Resolved[T any](value T, err error) *Pending[T] {
	p := NewPending[T]()
	p.Resolve(value, err)
	return p
}

func (p *Pending[T]) Resolve(value T, err error) {
	p.once.Do(func() {
		p.value = value
		p.err = err
		close(p.done)
	})
}

func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the result is available or ctx is done. A cancelled
// wait does not cancel the operation.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking; ok is false while pending.
func (p *Pending[T]) Result() (value T, err error, ok bool) {
	select {
	case <-p.done:
		return p.value, p.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Then runs fn in its own goroutine once p resolves.
func (p *Pending[T]) Then(fn func(T, error)) {
	go func() {
		<-p.done
		fn(p.value, p.err)
	}()
}
