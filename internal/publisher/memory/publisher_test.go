package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/artexin/internal/jobs"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	event := jobs.JobEvent{JobID: "abc", Type: jobs.TypeFetchable, Status: jobs.JobFinished, Finished: 2, UpdatedAt: time.Unix(0, 0).UTC()}

	id, err := pub.Publish(context.Background(), "jobs", event)
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)
	id, err = pub.Publish(context.Background(), "audit", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id)

	require.Len(t, pub.Messages(), 2)
	msgs := pub.Messages("jobs")
	require.Len(t, msgs, 1)
	require.Equal(t, event, msgs[0].Payload)
	require.JSONEq(t,
		`{"job_id":"abc","type":"FETCHABLE","status":"FINISHED","finished":2,"failed":0,"updated_at":"1970-01-01T00:00:00Z"}`,
		string(msgs[0].Data))

	msgs[0].Topic = "modified"
	require.Equal(t, "jobs", pub.Messages()[0].Topic)
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "jobs", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
	require.Empty(t, New().Messages())
}
