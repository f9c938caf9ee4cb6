package jobs

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/metrics"
	"github.com/JakeFAU/artexin/internal/packager"
)

var tracer = otel.Tracer("github.com/JakeFAU/artexin/internal/jobs")

// Config controls Service behavior.
type Config struct {
	// NotifyTopic is passed to the Notifier when a job finishes.
	NotifyTopic string
}

// Service creates, runs and retries jobs.
type Service struct {
	store    Store
	queue    Queue
	registry *Registry
	clock    Clock
	ids      IDGenerator
	notifier Notifier
	cfg      Config
	logger   *zap.Logger
}

// NewService constructs a Service. The notifier may be nil.
func NewService(
	store Store,
	queue Queue,
	registry *Registry,
	clock Clock,
	ids IDGenerator,
	notifier Notifier,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		queue:    queue,
		registry: registry,
		clock:    clock,
		ids:      ids,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Create persists a new job with one queued task per target and schedules it.
func (s *Service) Create(ctx context.Context, jobType JobType, targets []string, opts Options) (Job, error) {
	if _, err := s.registry.Lookup(jobType); err != nil {
		return Job{}, err
	}
	if len(targets) == 0 {
		return Job{}, ErrNoTargets
	}
	if err := opts.Matches(jobType); err != nil {
		return Job{}, err
	}

	now := s.clock.Now().UTC()
	job := Job{
		ID:          s.ids.NewID(now, targets),
		Type:        jobType,
		Status:      JobQueued,
		ScheduledAt: now,
		UpdatedAt:   now,
		Options:     opts.clone(),
		Tasks:       make([]Task, len(targets)),
	}
	for i, target := range targets {
		job.Tasks[i] = Task{
			JobID:  job.ID,
			Index:  i,
			Target: target,
			Status: TaskQueued,
		}
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	if err := s.schedule(ctx, job); err != nil {
		return Job{}, err
	}
	metrics.ObserveJob(string(JobQueued))
	s.logger.Info("job created",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Int("tasks", len(job.Tasks)),
	)
	return job, nil
}

// Get loads a job by id.
func (s *Service) Get(ctx context.Context, id string) (Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs in the given status, or all jobs when status is empty.
func (s *Service) List(ctx context.Context, status JobStatus) ([]Job, error) {
	jobs, err := s.store.ListJobs(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Retry re-queues an erred job. Finished tasks are kept and skipped on the next run.
func (s *Service) Retry(ctx context.Context, id string) (Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	if err := TransitionJob(&job, JobQueued); err != nil {
		return Job{}, err
	}
	for i := range job.Tasks {
		task := &job.Tasks[i]
		if task.Status == TaskFinished {
			continue
		}
		// retry is the only way out of a terminal task state
		task.Status = TaskQueued
		task.Error = ""
		task.CompletedAt = nil
		if err := s.saveTask(ctx, *task); err != nil {
			return Job{}, err
		}
	}
	if err := s.saveJob(ctx, &job); err != nil {
		return Job{}, err
	}
	if err := s.schedule(ctx, job); err != nil {
		return Job{}, err
	}
	metrics.ObserveJob(string(JobQueued))
	s.logger.Info("job retried", zap.String("job_id", job.ID))
	return job, nil
}

// Run processes the job named by msg. Task failures are recorded on the task and never
// returned; the returned error reports store or lookup problems only.
//
// Tasks already in a terminal status are skipped. A FAILED task left by an
// earlier delivery stays FAILED until Retry requeues it, since FAILED only
// transitions back to QUEUED.
func (s *Service) Run(ctx context.Context, msg Message) error {
	ctx, span := tracer.Start(ctx, "job.run", trace.WithAttributes(
		attribute.String("job.id", msg.ID),
		attribute.String("job.type", string(msg.Type)),
	))
	defer span.End()

	err := s.run(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Service) run(ctx context.Context, msg Message) error {
	job, err := s.store.GetJob(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if msg.Type != job.Type {
		return fmt.Errorf("%w: message type %q for %s job", ErrUnknownJobType, msg.Type, job.Type)
	}
	handler, err := s.registry.Lookup(job.Type)
	if err != nil {
		return err
	}
	if err := TransitionJob(&job, JobProcessing); err != nil {
		return err
	}
	job.Attempts++
	if err := s.saveJob(ctx, &job); err != nil {
		return err
	}
	metrics.ObserveJob(string(JobProcessing))

	logger := s.logger.With(zap.String("job_id", job.ID))
	logger.Info("job processing", zap.Int("tasks", len(job.Tasks)), zap.Int("attempt", job.Attempts))

	for i := range job.Tasks {
		if err := s.runTask(ctx, handler, job, &job.Tasks[i], logger); err != nil {
			return err
		}
	}

	final := DeriveStatus(job.Tasks)
	if err := TransitionJob(&job, final); err != nil {
		return err
	}
	if err := s.saveJob(ctx, &job); err != nil {
		return err
	}
	metrics.ObserveJob(string(final))
	logger.Info("job done", zap.String("status", string(final)))
	s.notify(ctx, job, logger)
	return nil
}

func (s *Service) runTask(ctx context.Context, handler Handler, job Job, task *Task, logger *zap.Logger) error {
	if task.Status.Terminal() {
		logger.Debug("task skipped", zap.Int("task", task.Index), zap.String("status", string(task.Status)))
		return nil
	}
	logger = logger.With(zap.Int("task", task.Index), zap.String("target", task.Target))

	ctx, span := tracer.Start(ctx, "task.handle", trace.WithAttributes(
		attribute.String("task.target", task.Target),
		attribute.Int("task.index", task.Index),
	))
	defer span.End()

	if !handler.IsValidTarget(ctx, task.Target) {
		logger.Warn("invalid target")
		s.failTask(task, ErrInvalidTarget)
		return s.finishTask(ctx, task)
	}

	if err := TransitionTask(task, TaskProcessing); err != nil {
		return err
	}
	if err := s.saveTask(ctx, *task); err != nil {
		return err
	}

	var result packager.Result
	err := guard(func() error {
		var handleErr error
		result, handleErr = handler.HandleTask(ctx, *task, job.Options)
		return handleErr
	})
	if err != nil {
		logger.Error("handle task failed", zap.Error(err))
		span.RecordError(err)
		s.failTask(task, err)
		return s.finishTask(ctx, task)
	}

	if err := guard(func() error {
		return handler.HandleTaskResult(ctx, task, result, job.Options)
	}); err != nil {
		logger.Error("handle task result failed", zap.Error(err))
		span.RecordError(err)
		s.failTask(task, err)
		return s.finishTask(ctx, task)
	}
	if task.Status == TaskFailed {
		logger.Warn("task failed", zap.String("error", task.Error))
	}
	return s.finishTask(ctx, task)
}

func (s *Service) finishTask(ctx context.Context, task *Task) error {
	metrics.ObserveTask(string(task.Status))
	return s.saveTask(ctx, *task)
}

func (s *Service) failTask(task *Task, err error) {
	now := s.clock.Now().UTC()
	task.Status = TaskFailed
	task.Error = err.Error()
	task.CompletedAt = &now
}

func (s *Service) schedule(ctx context.Context, job Job) error {
	if err := s.queue.Enqueue(ctx, Message{Type: job.Type, ID: job.ID}); err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}
	return nil
}

func (s *Service) saveJob(ctx context.Context, job *Job) error {
	job.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.SaveJob(ctx, *job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *Service) saveTask(ctx context.Context, task Task) error {
	if err := s.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, job Job, logger *zap.Logger) {
	if s.notifier == nil {
		return
	}
	counts := job.Counts()
	event := JobEvent{
		JobID:     job.ID,
		Type:      job.Type,
		Status:    job.Status,
		Finished:  counts[TaskFinished],
		Failed:    counts[TaskFailed],
		UpdatedAt: job.UpdatedAt,
	}
	if _, err := s.notifier.Publish(ctx, s.cfg.NotifyTopic, event); err != nil {
		logger.Warn("publish job event failed", zap.Error(err))
	}
}

// IsPermanent reports whether redelivering the message could never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnknownJobType) ||
		errors.Is(err, ErrInvalidTransition)
}

func guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
