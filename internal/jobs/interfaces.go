// Package jobs models jobs and tasks and drives them through their lifecycle.
package jobs

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/artexin/internal/packager"
)

// Store persists jobs and their tasks.
type Store interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	SaveJob(ctx context.Context, job Job) error
	SaveTask(ctx context.Context, task Task) error
	ListJobs(ctx context.Context, status JobStatus) ([]Job, error)
}

// Queue carries dispatch messages between job creators and workers.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
	Dequeue(ctx context.Context) (Delivery, error)
}

// Handler validates, processes and records the tasks of one job type.
type Handler interface {
	IsValidTarget(ctx context.Context, target string) bool
	HandleTask(ctx context.Context, task Task, opts Options) (packager.Result, error)
	HandleTaskResult(ctx context.Context, task *Task, result packager.Result, opts Options) error
}

// Notifier publishes lifecycle events to interested consumers.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ArtifactStore mirrors finished archives to durable storage.
type ArtifactStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator derives job identifiers.
type IDGenerator interface {
	NewID(createdAt time.Time, targets []string) string
}
