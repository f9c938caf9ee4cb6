package jobs

import "fmt"

// TransitionTask moves task to status if the lifecycle allows it.
func TransitionTask(task *Task, to TaskStatus) error {
	if !taskTransitionAllowed(task.Status, to) {
		return fmt.Errorf("%w: task %d %s -> %s", ErrInvalidTransition, task.Index, task.Status, to)
	}
	task.Status = to
	return nil
}

// TransitionJob moves job to status if the lifecycle allows it.
func TransitionJob(job *Job, to JobStatus) error {
	if !jobTransitionAllowed(job.Status, to) {
		return fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, job.ID, job.Status, to)
	}
	job.Status = to
	return nil
}

func taskTransitionAllowed(from, to TaskStatus) bool {
	switch from {
	case TaskQueued:
		return to == TaskProcessing || to == TaskFailed
	case TaskProcessing:
		// a redelivered job re-runs tasks a crashed worker left mid-flight
		return to == TaskProcessing || to == TaskFailed || to == TaskFinished
	case TaskFailed:
		return to == TaskQueued
	default:
		return false
	}
}

func jobTransitionAllowed(from, to JobStatus) bool {
	switch from {
	case JobQueued:
		return to == JobProcessing
	case JobProcessing:
		return to == JobProcessing || to == JobErred || to == JobFinished
	case JobErred:
		return to == JobQueued
	case JobFinished:
		// at-least-once delivery may hand a finished job to a worker again
		return to == JobProcessing
	default:
		return false
	}
}

// DeriveStatus computes the terminal job status from its tasks.
func DeriveStatus(tasks []Task) JobStatus {
	for _, t := range tasks {
		if t.Status == TaskFailed {
			return JobErred
		}
	}
	for _, t := range tasks {
		if t.Status != TaskFinished {
			return JobErred
		}
	}
	return JobFinished
}
