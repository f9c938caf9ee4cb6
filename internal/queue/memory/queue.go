// Package memory provides an in-process job queue for local development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/artexin/internal/jobs"
)

var (
	// ErrClosed is returned once the queue has been closed.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned by Nack when the queue has no room left.
	ErrFull = errors.New("queue full")
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan jobs.Message
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan jobs.Message, capacity),
	}
}

// Enqueue pushes a message into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, msg jobs.Message) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- msg:
		return nil
	}
}

// Dequeue pops the next message, respecting context cancellation. Ack is a
// no-op; Nack puts the message back on the queue, or drops it with ErrFull
// when the queue is at capacity.
func (q *Queue) Dequeue(ctx context.Context) (jobs.Delivery, error) {
	select {
	case <-ctx.Done():
		return jobs.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case msg, ok := <-q.ch:
		if !ok {
			return jobs.Delivery{}, ErrClosed
		}
		return jobs.NewDelivery(msg, nil, func(context.Context) error {
			return q.requeue(msg)
		}), nil
	}
}

func (q *Queue) requeue(msg jobs.Message) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return fmt.Errorf("%w: dropped job %s", ErrFull, msg.ID)
	}
}

// Len reports the number of pending messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
