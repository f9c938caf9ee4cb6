package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/artexin/internal/jobs"
)

// JobStore implements jobs.Store in memory. Jobs are deep-copied on the way
// in and out so callers never share task slices with the store.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]jobs.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]jobs.Job)}
}

// CreateJob stores a new job with its tasks.
func (s *JobStore) CreateJob(_ context.Context, job jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", jobs.ErrAlreadyExists, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, id string) (jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return jobs.Job{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}
	return job.Clone(), nil
}

// SaveJob updates the job-level fields. Tasks are written with SaveTask.
func (s *JobStore) SaveJob(_ context.Context, job jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrNotFound, job.ID)
	}
	stored.Status = job.Status
	stored.UpdatedAt = job.UpdatedAt
	stored.Attempts = job.Attempts
	s.jobs[job.ID] = stored
	return nil
}

// SaveTask replaces one task of a stored job.
func (s *JobStore) SaveTask(_ context.Context, task jobs.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[task.JobID]
	if !ok {
		return fmt.Errorf("%w: %s", jobs.ErrNotFound, task.JobID)
	}
	if task.Index < 0 || task.Index >= len(stored.Tasks) {
		return fmt.Errorf("%w: task %d of %s", jobs.ErrNotFound, task.Index, task.JobID)
	}
	// stored shares its task slice with the map entry; swap in a copy first
	stored = stored.Clone()
	stored.Tasks[task.Index] = task.Clone()
	s.jobs[task.JobID] = stored
	return nil
}

// ListJobs returns jobs with the given status, or every job when status is
// empty, oldest first.
func (s *JobStore) ListJobs(_ context.Context, status jobs.JobStatus) ([]jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]jobs.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}
