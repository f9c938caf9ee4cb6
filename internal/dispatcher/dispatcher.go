// Package dispatcher fans job messages out to a pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/jobs"
	"github.com/JakeFAU/artexin/internal/worker"
)

// Dispatcher runs a fixed set of workers over one queue.
type Dispatcher struct {
	queue   jobs.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher for prebuilt workers.
func New(queue jobs.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// NewPool creates a Dispatcher with n workers sharing runner. n below one
// means a single worker.
func NewPool(queue jobs.Queue, runner worker.Runner, n int, cfg worker.Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if n < 1 {
		n = 1
	}
	workers := make([]*worker.Worker, n)
	for i := range workers {
		workers[i] = worker.New(queue, runner, cfg, logger.With(zap.Int("worker", i)))
	}
	return New(queue, workers)
}

// Size returns the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, msg jobs.Message) error {
	if err := d.queue.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
