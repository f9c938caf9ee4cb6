package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artexin/internal/packager"
)

var now = time.Date(2024, 5, 4, 3, 2, 1, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixedIDs struct{}

func (fixedIDs) NewID(_ time.Time, targets []string) string {
	return "job-" + strings.Join(targets, "+")
}

type fakeStore struct {
	mu      sync.Mutex
	jobs    map[string]Job
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]Job)}
}

func (s *fakeStore) CreateJob(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return ErrAlreadyExists
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *fakeStore) SaveJob(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	stored, ok := s.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status, stored.UpdatedAt, stored.Attempts = job.Status, job.UpdatedAt, job.Attempts
	s.jobs[job.ID] = stored
	return nil
}

func (s *fakeStore) SaveTask(_ context.Context, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[task.JobID]
	if !ok {
		return ErrNotFound
	}
	stored = stored.Clone()
	stored.Tasks[task.Index] = task.Clone()
	s.jobs[task.JobID] = stored
	return nil
}

func (s *fakeStore) ListJobs(_ context.Context, status JobStatus) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, job := range s.jobs {
		if status == "" || job.Status == status {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *fakeQueue) Dequeue(context.Context) (Delivery, error) {
	return Delivery{}, errors.New("not used")
}

// fakeHandler behaves per target: "invalid" fails validation, "error" fails
// HandleTask, "panic" panics, "broken" returns a failed result and anything
// else succeeds.
type fakeHandler struct {
	mu      sync.Mutex
	handled []string
}

func (h *fakeHandler) IsValidTarget(_ context.Context, target string) bool {
	return target != "invalid"
}

func (h *fakeHandler) HandleTask(_ context.Context, task Task, _ Options) (packager.Result, error) {
	h.mu.Lock()
	h.handled = append(h.handled, task.Target)
	h.mu.Unlock()
	switch task.Target {
	case "error":
		return packager.Result{}, errors.New("fetch failed")
	case "panic":
		panic("nil map")
	case "broken":
		return packager.Result{Metadata: packager.Metadata{URL: task.Target}, Error: "timed out"}, nil
	}
	return packager.Result{Metadata: packager.Metadata{URL: task.Target, Title: "T"}, Hash: "h-" + task.Target}, nil
}

func (h *fakeHandler) HandleTaskResult(_ context.Context, task *Task, res packager.Result, _ Options) error {
	if res.Failed() {
		task.Error = res.Error
		return TransitionTask(task, TaskFailed)
	}
	task.Hash = res.Hash
	task.Title = res.Title
	return TransitionTask(task, TaskFinished)
}

func (h *fakeHandler) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.handled...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []JobEvent
	topics []string
}

func (n *fakeNotifier) Publish(_ context.Context, topic string, payload any) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	event, ok := payload.(JobEvent)
	if !ok {
		return "", fmt.Errorf("unexpected payload %T", payload)
	}
	n.events = append(n.events, event)
	n.topics = append(n.topics, topic)
	return "1", nil
}

type fixture struct {
	svc      *Service
	store    *fakeStore
	queue    *fakeQueue
	handler  *fakeHandler
	notifier *fakeNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	handler := &fakeHandler{}
	registry, err := NewRegistry(map[JobType]Handler{TypeFetchable: handler})
	require.NoError(t, err)
	f := fixture{
		store:    newFakeStore(),
		queue:    &fakeQueue{},
		handler:  handler,
		notifier: &fakeNotifier{},
	}
	f.svc = NewService(f.store, f.queue, registry, fixedClock{t: now}, fixedIDs{}, f.notifier, Config{NotifyTopic: "jobs"}, nil)
	return f
}

func fetchable() Options {
	return NewFetchableOptions(DefaultFetchableOptions())
}

func TestCreateValidatesInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, TypeStandalone, []string{"/tmp/x"}, NewStandaloneOptions(StandaloneOptions{Origin: "http://x"}))
	require.ErrorIs(t, err, ErrUnknownJobType)
	_, err = f.svc.Create(ctx, "BOGUS", []string{"a"}, fetchable())
	require.ErrorIs(t, err, ErrUnknownJobType)
	_, err = f.svc.Create(ctx, TypeFetchable, nil, fetchable())
	require.ErrorIs(t, err, ErrNoTargets)
	_, err = f.svc.Create(ctx, TypeFetchable, []string{"a"}, NewStandaloneOptions(StandaloneOptions{Origin: "http://x"}))
	require.ErrorIs(t, err, ErrInvalidOptions)
	_, err = f.svc.Create(ctx, TypeFetchable, []string{"a"}, Options{})
	require.ErrorIs(t, err, ErrInvalidOptions)

	require.Empty(t, f.queue.msgs)
}

func TestCreatePersistsAndSchedules(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	job, err := f.svc.Create(context.Background(), TypeFetchable, []string{"a", "b"}, fetchable())
	require.NoError(t, err)

	require.Equal(t, "job-a+b", job.ID)
	require.Equal(t, JobQueued, job.Status)
	require.Equal(t, now, job.ScheduledAt)
	require.Len(t, job.Tasks, 2)
	for i, task := range job.Tasks {
		require.Equal(t, job.ID, task.JobID)
		require.Equal(t, i, task.Index)
		require.Equal(t, TaskQueued, task.Status)
	}
	require.Equal(t, []Message{{Type: TypeFetchable, ID: "job-a+b"}}, f.queue.msgs)

	stored, err := f.svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, job, stored)
}

func TestCreateReportsQueueFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.queue.err = errors.New("broker down")
	_, err := f.svc.Create(context.Background(), TypeFetchable, []string{"a"}, fetchable())
	require.ErrorContains(t, err, "schedule job: broker down")
}

func TestRunRecordsEveryOutcome(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	targets := []string{"ok", "invalid", "error", "panic", "broken"}
	job, err := f.svc.Create(ctx, TypeFetchable, targets, fetchable())
	require.NoError(t, err)

	require.NoError(t, f.svc.Run(ctx, Message{Type: TypeFetchable, ID: job.ID}))

	got, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, JobErred, got.Status)
	require.Equal(t, 1, got.Attempts)

	require.Equal(t, TaskFinished, got.Tasks[0].Status)
	require.Equal(t, "h-ok", got.Tasks[0].Hash)
	require.Equal(t, TaskFailed, got.Tasks[1].Status)
	require.Equal(t, ErrInvalidTarget.Error(), got.Tasks[1].Error)
	require.Equal(t, TaskFailed, got.Tasks[2].Status)
	require.Equal(t, "fetch failed", got.Tasks[2].Error)
	require.Equal(t, TaskFailed, got.Tasks[3].Status)
	require.Contains(t, got.Tasks[3].Error, "panic")
	require.Equal(t, TaskFailed, got.Tasks[4].Status)
	require.Equal(t, "timed out", got.Tasks[4].Error)
	for _, task := range got.Tasks[1:4] {
		require.NotNil(t, task.CompletedAt)
	}

	require.Equal(t, []string{"ok", "error", "panic", "broken"}, f.handler.calls())
	require.Equal(t, []string{"jobs"}, f.notifier.topics)
	require.Equal(t, JobEvent{
		JobID: job.ID, Type: TypeFetchable, Status: JobErred, Finished: 1, Failed: 4, UpdatedAt: now,
	}, f.notifier.events[0])
}

func TestRunFinishedJobIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	job, err := f.svc.Create(ctx, TypeFetchable, []string{"a", "b"}, fetchable())
	require.NoError(t, err)
	msg := Message{Type: TypeFetchable, ID: job.ID}

	require.NoError(t, f.svc.Run(ctx, msg))
	require.Len(t, f.handler.calls(), 2)
	first, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, JobFinished, first.Status)

	require.NoError(t, f.svc.Run(ctx, msg))
	require.Len(t, f.handler.calls(), 2, "finished tasks must not be handled again")
	second, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, JobFinished, second.Status)
	require.Equal(t, first.Tasks, second.Tasks)
}

func TestRunRedeliverySkipsFailedTasks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	job, err := f.svc.Create(ctx, TypeFetchable, []string{"a", "b"}, fetchable())
	require.NoError(t, err)

	// a worker died after failing the first task
	done := now.Add(-time.Minute)
	job.Status = JobProcessing
	job.Attempts = 1
	job.Tasks[0].Status = TaskFailed
	job.Tasks[0].Error = "timed out"
	job.Tasks[0].CompletedAt = &done
	f.store.jobs[job.ID] = job.Clone()

	require.NoError(t, f.svc.Run(ctx, Message{Type: TypeFetchable, ID: job.ID}))
	require.Equal(t, []string{"b"}, f.handler.calls())

	got, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, JobErred, got.Status)
	require.Equal(t, 2, got.Attempts)
	require.Equal(t, TaskFailed, got.Tasks[0].Status)
	require.Equal(t, "timed out", got.Tasks[0].Error)
	require.Equal(t, done, *got.Tasks[0].CompletedAt)
	require.Equal(t, TaskFinished, got.Tasks[1].Status)
}

func TestRunRejectsUnknownOrMismatchedJobs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.Run(ctx, Message{Type: TypeFetchable, ID: "missing"})
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, IsPermanent(err))

	job, err := f.svc.Create(ctx, TypeFetchable, []string{"a"}, fetchable())
	require.NoError(t, err)
	err = f.svc.Run(ctx, Message{Type: TypeStandalone, ID: job.ID})
	require.ErrorIs(t, err, ErrUnknownJobType)
	require.True(t, IsPermanent(err))
	require.Empty(t, f.handler.calls())
}

func TestRunSurfacesStoreFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	job, err := f.svc.Create(ctx, TypeFetchable, []string{"a"}, fetchable())
	require.NoError(t, err)

	f.store.saveErr = errors.New("connection refused")
	err = f.svc.Run(ctx, Message{Type: TypeFetchable, ID: job.ID})
	require.ErrorContains(t, err, "save job")
	require.False(t, IsPermanent(err))
}

func TestRetryRequeuesFailedTasks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	job, err := f.svc.Create(ctx, TypeFetchable, []string{"ok", "broken"}, fetchable())
	require.NoError(t, err)
	require.NoError(t, f.svc.Run(ctx, Message{Type: TypeFetchable, ID: job.ID}))

	retried, err := f.svc.Retry(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, JobQueued, retried.Status)
	require.Equal(t, TaskFinished, retried.Tasks[0].Status)
	require.Equal(t, TaskQueued, retried.Tasks[1].Status)
	require.Empty(t, retried.Tasks[1].Error)
	require.Nil(t, retried.Tasks[1].CompletedAt)
	require.Len(t, f.queue.msgs, 2)

	stored, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, JobQueued, stored.Status)
	require.Equal(t, TaskQueued, stored.Tasks[1].Status)

	require.NoError(t, f.svc.Run(ctx, Message{Type: TypeFetchable, ID: job.ID}))
	require.Equal(t, []string{"ok", "broken", "broken"}, f.handler.calls())
}

func TestRetryRejectsNonErredJobs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	job, err := f.svc.Create(ctx, TypeFetchable, []string{"ok"}, fetchable())
	require.NoError(t, err)

	_, err = f.svc.Retry(ctx, job.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, f.svc.Run(ctx, Message{Type: TypeFetchable, ID: job.ID}))
	_, err = f.svc.Retry(ctx, job.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Retry(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFiltersByStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	done, err := f.svc.Create(ctx, TypeFetchable, []string{"ok"}, fetchable())
	require.NoError(t, err)
	require.NoError(t, f.svc.Run(ctx, Message{Type: TypeFetchable, ID: done.ID}))
	_, err = f.svc.Create(ctx, TypeFetchable, []string{"later"}, fetchable())
	require.NoError(t, err)

	all, err := f.svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	finished, err := f.svc.List(ctx, JobFinished)
	require.NoError(t, err)
	require.Len(t, finished, 1)
	require.Equal(t, done.ID, finished[0].ID)
}
