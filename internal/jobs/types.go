package jobs

import (
	"time"
)

// JobType selects the Handler that processes a Job's tasks.
type JobType string

// Supported job types.
const (
	TypeFetchable  JobType = "FETCHABLE"
	TypeStandalone JobType = "STANDALONE"
)

// Valid reports whether t is one of the known job types.
func (t JobType) Valid() bool {
	return t == TypeFetchable || t == TypeStandalone
}

// JobStatus tracks lifecycle state for a Job.
type JobStatus string

// Job lifecycle states.
const (
	JobQueued     JobStatus = "QUEUED"
	JobProcessing JobStatus = "PROCESSING"
	JobErred      JobStatus = "ERRED"
	JobFinished   JobStatus = "FINISHED"
)

// TaskStatus tracks lifecycle state for a single Task.
type TaskStatus string

// Task lifecycle states.
const (
	TaskQueued     TaskStatus = "QUEUED"
	TaskProcessing TaskStatus = "PROCESSING"
	TaskFailed     TaskStatus = "FAILED"
	TaskFinished   TaskStatus = "FINISHED"
)

// Terminal reports whether the task has left the queued/processing states.
func (s TaskStatus) Terminal() bool {
	return s == TaskFailed || s == TaskFinished
}

// Task is one target within a Job.
type Task struct {
	JobID       string     `json:"job_id"`
	Index       int        `json:"index"`
	Target      string     `json:"target"`
	Status      TaskStatus `json:"status"`
	Hash        string     `json:"hash,omitempty"`
	Title       string     `json:"title,omitempty"`
	Size        int64      `json:"size,omitempty"`
	ImageCount  int        `json:"image_count"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Artifact    string     `json:"artifact,omitempty"`
	ArtifactURI string     `json:"artifact_uri,omitempty"`
}

// Job is a submitted unit of work made of ordered tasks.
type Job struct {
	ID          string    `json:"job_id"`
	Type        JobType   `json:"job_type"`
	Status      JobStatus `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Tasks       []Task    `json:"tasks"`
	Options     Options   `json:"options"`
	Attempts    int       `json:"attempts"`
}

// Targets returns the task targets in job order.
func (j Job) Targets() []string {
	out := make([]string, len(j.Tasks))
	for i, t := range j.Tasks {
		out[i] = t.Target
	}
	return out
}

// Counts tallies tasks by status.
func (j Job) Counts() map[TaskStatus]int {
	counts := make(map[TaskStatus]int, 4)
	for _, t := range j.Tasks {
		counts[t.Status]++
	}
	return counts
}

// Clone returns a deep copy of the job so stores never share task slices.
func (j Job) Clone() Job {
	cp := j
	cp.Tasks = make([]Task, len(j.Tasks))
	for i, t := range j.Tasks {
		cp.Tasks[i] = t.Clone()
	}
	cp.Options = j.Options.clone()
	return cp
}

// Clone returns a copy of the task that shares no pointers with t.
func (t Task) Clone() Task {
	cp := t
	cp.Timestamp = pointerTime(t.Timestamp)
	cp.CompletedAt = pointerTime(t.CompletedAt)
	return cp
}

func pointerTime(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

// Message is the queue payload that asks a worker to run a Job.
type Message struct {
	Type JobType `json:"type"`
	ID   string  `json:"id"`
}

// JobEvent is published once a Job reaches a terminal status.
type JobEvent struct {
	JobID     string    `json:"job_id"`
	Type      JobType   `json:"type"`
	Status    JobStatus `json:"status"`
	Finished  int       `json:"finished"`
	Failed    int       `json:"failed"`
	UpdatedAt time.Time `json:"updated_at"`
}
