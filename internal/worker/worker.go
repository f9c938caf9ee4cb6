// Package worker consumes job messages and runs them.
package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/jobs"
	"github.com/JakeFAU/artexin/internal/metrics"
)

const (
	defaultErrorBackoff = time.Second
	defaultNackTimeout  = 30 * time.Second
)

// Runner executes the job a message names.
type Runner interface {
	Run(ctx context.Context, msg jobs.Message) error
}

// Config controls Worker behavior.
type Config struct {
	// ErrorBackoff is how long to wait after a failed dequeue.
	ErrorBackoff time.Duration
	// NackTimeout bounds returning a failed message to the queue.
	NackTimeout time.Duration
}

// Worker pulls messages off a queue and hands them to a Runner.
type Worker struct {
	queue  jobs.Queue
	runner Runner
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue jobs.Queue, runner Runner, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	if cfg.NackTimeout <= 0 {
		cfg.NackTimeout = defaultNackTimeout
	}
	return &Worker{
		queue:  queue,
		runner: runner,
		cfg:    cfg,
		logger: logger.Named("worker"),
	}
}

// Run blocks, consuming messages until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		d, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.ErrorBackoff):
			}
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", d.Message.ID), zap.String("type", string(d.Message.Type)))
		w.process(ctx, d)
	}
}

func (w *Worker) process(ctx context.Context, d jobs.Delivery) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if len(d.Attributes) > 0 {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(d.Attributes))
	}
	logger := w.logger.With(zap.String("job_id", d.Message.ID))

	err := w.runner.Run(ctx, d.Message)
	switch {
	case err == nil:
		if ackErr := d.Ack(ctx); ackErr != nil {
			logger.Warn("ack failed", zap.Error(ackErr))
		}
	case jobs.IsPermanent(err):
		logger.Error("job dropped", zap.Error(err))
		if ackErr := d.Ack(ctx); ackErr != nil {
			logger.Warn("ack failed", zap.Error(ackErr))
		}
	default:
		logger.Error("job run failed, returning to queue", zap.Error(err))
		// the run context may be canceled during shutdown
		nackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.NackTimeout)
		defer cancel()
		if nackErr := d.Nack(nackCtx); nackErr != nil {
			logger.Warn("nack failed", zap.Error(nackErr))
		}
	}
}
