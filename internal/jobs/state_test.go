package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func tasksWith(statuses ...TaskStatus) []Task {
	out := make([]Task, len(statuses))
	for i, s := range statuses {
		out[i] = Task{Index: i, Status: s}
	}
	return out
}

func TestDeriveStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		tasks []Task
		want  JobStatus
	}{
		{"all finished", tasksWith(TaskFinished, TaskFinished), JobFinished},
		{"one failed", tasksWith(TaskFinished, TaskFailed), JobErred},
		{"all failed", tasksWith(TaskFailed), JobErred},
		{"left processing", tasksWith(TaskFinished, TaskProcessing), JobErred},
		{"left queued", tasksWith(TaskQueued), JobErred},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, DeriveStatus(tc.tasks))
		})
	}
}

func TestTaskTransitions(t *testing.T) {
	t.Parallel()

	allowed := map[TaskStatus][]TaskStatus{
		TaskQueued:     {TaskProcessing, TaskFailed},
		TaskProcessing: {TaskProcessing, TaskFailed, TaskFinished},
		TaskFailed:     {TaskQueued},
		TaskFinished:   {},
	}
	all := []TaskStatus{TaskQueued, TaskProcessing, TaskFailed, TaskFinished}
	for from, targets := range allowed {
		for _, to := range all {
			task := Task{Status: from}
			err := TransitionTask(&task, to)
			if contains(targets, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				require.Equal(t, to, task.Status)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
				require.Equal(t, from, task.Status)
			}
		}
	}
}

func TestJobTransitions(t *testing.T) {
	t.Parallel()

	allowed := map[JobStatus][]JobStatus{
		JobQueued:     {JobProcessing},
		JobProcessing: {JobProcessing, JobErred, JobFinished},
		JobErred:      {JobQueued},
		JobFinished:   {JobProcessing},
	}
	all := []JobStatus{JobQueued, JobProcessing, JobErred, JobFinished}
	for from, targets := range allowed {
		for _, to := range all {
			job := Job{ID: "j", Status: from}
			err := TransitionJob(&job, to)
			if contains(targets, to) {
				require.NoError(t, err, "%s -> %s", from, to)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func TestOptionsKind(t *testing.T) {
	t.Parallel()

	kind, err := NewFetchableOptions(DefaultFetchableOptions()).Kind()
	require.NoError(t, err)
	require.Equal(t, TypeFetchable, kind)

	kind, err = NewStandaloneOptions(StandaloneOptions{Origin: "http://x"}).Kind()
	require.NoError(t, err)
	require.Equal(t, TypeStandalone, kind)

	both := Options{Fetchable: &FetchableOptions{}, Standalone: &StandaloneOptions{}}
	_, err = both.Kind()
	require.ErrorIs(t, err, ErrInvalidOptions)

	require.ErrorIs(t, NewStandaloneOptions(StandaloneOptions{}).Matches(TypeStandalone), ErrInvalidOptions)
	require.Equal(t, DefaultFetchableOptions(), Options{}.FetchableOrDefault())
}

func TestOptionsJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewFetchableOptions(FetchableOptions{Javascript: true}))
	require.NoError(t, err)
	require.JSONEq(t, `{"fetchable":{"javascript":true,"extract":false}}`, string(data))

	var decoded Options
	require.NoError(t, json.Unmarshal([]byte(`{"standalone":{"origin":"http://example.com"}}`), &decoded))
	require.NoError(t, decoded.Matches(TypeStandalone))
	require.Equal(t, "http://example.com", decoded.Standalone.Origin)
}

func TestJobCloneIsDeep(t *testing.T) {
	t.Parallel()

	ts := now
	job := Job{ID: "j", Tasks: []Task{{Timestamp: &ts}}, Options: NewFetchableOptions(DefaultFetchableOptions())}
	cp := job.Clone()
	cp.Tasks[0].Target = "changed"
	*cp.Tasks[0].Timestamp = ts.Add(1)
	cp.Options.Fetchable.Extract = false

	require.Empty(t, job.Tasks[0].Target)
	require.Equal(t, now, *job.Tasks[0].Timestamp)
	require.True(t, job.Options.Fetchable.Extract)
}
