package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/artexin/internal/jobs"
)

func newTestClient(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.TopicAdminClient.CreateTopic(context.Background(), &pubsubpb.Topic{Name: "projects/project/topics/jobs"})
	require.NoError(t, err)
	return srv, client
}

func TestPublisherPublishesJSON(t *testing.T) {
	t.Parallel()

	srv, client := newTestClient(t)
	pub := New(client, "jobs")
	t.Cleanup(func() { _ = pub.Close() })

	event := jobs.JobEvent{JobID: "abc", Type: jobs.TypeFetchable, Status: jobs.JobErred, Failed: 1}
	id, err := pub.Publish(context.Background(), "", event)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got jobs.JobEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, event, got)
}

func TestPublisherErrors(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "jobs", "x")
	require.ErrorContains(t, err, "not configured")

	_, client := newTestClient(t)
	pub := New(client, "")
	t.Cleanup(func() { _ = pub.Close() })

	_, err = pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is required")
	_, err = pub.Publish(context.Background(), "jobs", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
	_, err = pub.Publish(context.Background(), "missing", "x")
	require.Error(t, err)
}
