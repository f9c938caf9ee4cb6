package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/artexin/internal/jobs"
)

const jobColumns = `id, type, status, options, scheduled_at, updated_at, attempts`

const taskColumns = `job_id, idx, target, status, hash, title, size, image_count,
	collected_at, completed_at, error, artifact, artifact_uri`

// JobStore implements jobs.Store on Postgres.
type JobStore struct {
	db DB
}

// NewJobStore wraps db.
func NewJobStore(db DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{db: db}, nil
}

// Close releases the underlying pool.
func (s *JobStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// CreateJob inserts the job and all of its tasks in one transaction.
func (s *JobStore) CreateJob(ctx context.Context, job jobs.Job) (err error) {
	options, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		job.ID, string(job.Type), string(job.Status), options, job.ScheduledAt, job.UpdatedAt, job.Attempts)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", jobs.ErrAlreadyExists, job.ID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	for _, task := range job.Tasks {
		if _, err = tx.Exec(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			taskArgs(job.ID, task)...); err != nil {
			return fmt.Errorf("insert task %d: %w", task.Index, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetJob loads a job and its tasks.
func (s *JobStore) GetJob(ctx context.Context, id string) (jobs.Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobs.Job{}, fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
		}
		return jobs.Job{}, fmt.Errorf("select job: %w", err)
	}
	tasks, err := s.tasks(ctx, []string{id})
	if err != nil {
		return jobs.Job{}, err
	}
	job.Tasks = tasks[id]
	return job, nil
}

// SaveJob updates the job's status, update time and attempt count.
func (s *JobStore) SaveJob(ctx context.Context, job jobs.Job) error {
	tag, err := s.db.Exec(ctx, `UPDATE jobs SET status = $2, updated_at = $3, attempts = $4 WHERE id = $1`,
		job.ID, string(job.Status), job.UpdatedAt, job.Attempts)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", jobs.ErrNotFound, job.ID)
	}
	return nil
}

// SaveTask overwrites the mutable columns of one task.
func (s *JobStore) SaveTask(ctx context.Context, task jobs.Task) error {
	tag, err := s.db.Exec(ctx, `UPDATE tasks SET
	target = $3, status = $4, hash = $5, title = $6, size = $7, image_count = $8,
	collected_at = $9, completed_at = $10, error = $11, artifact = $12, artifact_uri = $13
WHERE job_id = $1 AND idx = $2`, taskArgs(task.JobID, task)...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: task %d of %s", jobs.ErrNotFound, task.Index, task.JobID)
	}
	return nil
}

// ListJobs returns jobs with status, or every job when status is empty,
// ordered by schedule time.
func (s *JobStore) ListJobs(ctx context.Context, status jobs.JobStatus) ([]jobs.Job, error) {
	rows, err := s.db.Query(ctx, `SELECT `+jobColumns+` FROM jobs
WHERE ($1 = '' OR status = $1)
ORDER BY scheduled_at, id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	for i, job := range out {
		ids[i] = job.ID
	}
	tasks, err := s.tasks(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Tasks = tasks[out[i].ID]
	}
	return out, nil
}

func (s *JobStore) tasks(ctx context.Context, ids []string) (map[string][]jobs.Task, error) {
	rows, err := s.db.Query(ctx, `SELECT `+taskColumns+` FROM tasks
WHERE job_id = ANY($1)
ORDER BY job_id, idx`, ids)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]jobs.Task, len(ids))
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out[task.JobID] = append(out[task.JobID], task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	return out, nil
}

func taskArgs(jobID string, t jobs.Task) []any {
	return []any{
		jobID,
		t.Index,
		t.Target,
		string(t.Status),
		t.Hash,
		t.Title,
		t.Size,
		t.ImageCount,
		t.Timestamp,
		t.CompletedAt,
		t.Error,
		t.Artifact,
		t.ArtifactURI,
	}
}

func scanJob(row pgx.Row) (jobs.Job, error) {
	var (
		job                jobs.Job
		jobType, status    string
		options            []byte
		scheduled, updated time.Time
	)
	if err := row.Scan(&job.ID, &jobType, &status, &options, &scheduled, &updated, &job.Attempts); err != nil {
		return jobs.Job{}, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &job.Options); err != nil {
			return jobs.Job{}, fmt.Errorf("decode options of %s: %w", job.ID, err)
		}
	}
	job.Type = jobs.JobType(jobType)
	job.Status = jobs.JobStatus(status)
	job.ScheduledAt = scheduled.UTC()
	job.UpdatedAt = updated.UTC()
	return job, nil
}

func scanTask(row pgx.Row) (jobs.Task, error) {
	var (
		task                 jobs.Task
		status               string
		collected, completed *time.Time
	)
	if err := row.Scan(
		&task.JobID,
		&task.Index,
		&task.Target,
		&status,
		&task.Hash,
		&task.Title,
		&task.Size,
		&task.ImageCount,
		&collected,
		&completed,
		&task.Error,
		&task.Artifact,
		&task.ArtifactURI,
	); err != nil {
		return jobs.Task{}, err
	}
	task.Status = jobs.TaskStatus(status)
	task.Timestamp = utc(collected)
	task.CompletedAt = utc(completed)
	return task, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
