// Package pipeline runs one import phase: a producer streaming entities
// from the input files into a bounded queue, and a pool of workers
// draining it.
package pipeline

import (
	"context"
	"sync"
)

// Barrier is a one-shot start signal. Workers Wait on it; the producer
// Opens it once its inputs are resolved.
type Barrier struct {
	once sync.Once
	ch   chan struct{}
}

func NewBarrier() *Barrier {
	return &Barrier{ch: make(chan struct{})}
}

// Open releases all current and future waiters. Later calls are no-ops.
func (b *Barrier) Open() {
	b.once.Do(func() { close(b.ch) })
}

// Wait blocks until the barrier opens or ctx is done.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
