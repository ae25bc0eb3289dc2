package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/bbiangul/triplegraph/entity"
)

// Worker processes one entity.
type Worker interface {
	Process(ctx context.Context, e *entity.Entity) error
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context, e *entity.Entity) error

func (f WorkerFunc) Process(ctx context.Context, e *entity.Entity) error { return f(ctx, e) }

// PoolObserver receives worker events. metrics.Metrics implements it.
type PoolObserver interface {
	EntityConsumed(phase string)
	Committed(phase string)
}

// Phase wires a producer to a worker pool over a bounded queue.
type Phase struct {
	Name          string
	Workers       int
	QueueCapacity int

	// CommitEvery is the number of entities a worker processes between
	// commits. Every worker also commits once when the queue is drained.
	CommitEvery int
	Commit      func(ctx context.Context) error

	Worker   Worker
	Observer PoolObserver
}

// Result counts a phase's traffic.
type Result struct {
	Produced int64
	Consumed int64
	Commits  int64
}

// Run streams files through the phase and waits for every worker to
// finish. The first error cancels the rest of the phase.
func (p *Phase) Run(ctx context.Context, prod *Producer, files []string) (Result, error) {
	if p.Workers < 1 {
		return Result{}, fmt.Errorf("phase %s: need at least one worker, got %d", p.Name, p.Workers)
	}
	if p.Worker == nil {
		return Result{}, fmt.Errorf("phase %s: no worker", p.Name)
	}
	capacity := p.QueueCapacity
	if capacity < 1 {
		capacity = 1
	}

	queue := make(chan *entity.Entity, capacity)
	start := NewBarrier()
	var (
		produced          int64
		consumed, commits atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := prod.Run(gctx, files, queue, start)
		produced = n
		return err
	})
	for i := range p.Workers {
		g.Go(func() error {
			return p.consume(gctx, i, queue, start, &consumed, &commits)
		})
	}

	err := g.Wait()
	res := Result{
		Produced: produced,
		Consumed: consumed.Load(),
		Commits:  commits.Load(),
	}
	return res, err
}

func (p *Phase) consume(ctx context.Context, id int, queue <-chan *entity.Entity, start *Barrier, consumed, commits *atomic.Int64) error {
	if err := start.Wait(ctx); err != nil {
		return err
	}
	slog.Debug("pipeline: worker started", "phase", p.Name, "worker", id)

	commit := func() error {
		if p.Commit == nil {
			return nil
		}
		if err := p.Commit(ctx); err != nil {
			return fmt.Errorf("worker %d commit: %w", id, err)
		}
		commits.Add(1)
		if p.Observer != nil {
			p.Observer.Committed(p.Name)
		}
		return nil
	}

	var processed int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-queue:
			if !ok {
				slog.Debug("pipeline: worker finished", "phase", p.Name, "worker", id, "processed", processed)
				return commit()
			}
			if err := p.Worker.Process(ctx, e); err != nil {
				return fmt.Errorf("processing %s: %w", e.URI, err)
			}
			processed++
			consumed.Add(1)
			if p.Observer != nil {
				p.Observer.EntityConsumed(p.Name)
			}
			if p.CommitEvery > 0 && processed%p.CommitEvery == 0 {
				if err := commit(); err != nil {
					return err
				}
			}
		}
	}
}
