// Package pubsubqueue implements jobs.Queue on Google Cloud Pub/Sub.
package pubsubqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/artexin/internal/jobs"
)

// ErrClosed is returned by Dequeue once the queue has been closed.
var ErrClosed = errors.New("pubsub queue closed")

// Config names the topic messages are published to and the subscription they
// are pulled from.
type Config struct {
	ProjectID    string
	Topic        string
	Subscription string
}

// Queue publishes job messages to a topic and receives them from a
// subscription. Receiving starts on the first Dequeue.
type Queue struct {
	client     *pubsub.Client
	publisher  *pubsub.Publisher
	subscriber *pubsub.Subscriber
	ownsClient bool
	logger     *zap.Logger

	deliveries chan jobs.Delivery
	startOnce  sync.Once
	receiveCtx context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	receiveErr error
	closeOnce  sync.Once
	closeErr   error
}

func topicName(projectID, topicID string) string {
	return fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
}

// Dial connects to Pub/Sub and checks that the topic exists and is active.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Queue, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic, err := client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
		Topic: topicName(cfg.ProjectID, cfg.Topic),
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("get pubsub topic %q: %w", cfg.Topic, err)
	}
	if topic.GetState() == pubsubpb.Topic_INGESTION_RESOURCE_ERROR {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q is not active", cfg.Topic)
	}
	q := New(client, cfg, logger)
	q.ownsClient = true
	return q, nil
}

// New builds a Queue over an existing client.
func New(client *pubsub.Client, cfg Config, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		client:     client,
		publisher:  client.Publisher(cfg.Topic),
		subscriber: client.Subscriber(cfg.Subscription),
		logger:     logger.Named("pubsub_queue"),
		deliveries: make(chan jobs.Delivery),
		receiveCtx: ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Enqueue publishes msg as JSON and waits for the server to accept it.
func (q *Queue) Enqueue(ctx context.Context, msg jobs.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	out := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_type": string(msg.Type)},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(out.Attributes))
	if _, err := q.publisher.Publish(ctx, out).Get(ctx); err != nil {
		return fmt.Errorf("publish job %s: %w", msg.ID, err)
	}
	return nil
}

// Dequeue blocks until a message arrives, ctx is done or the queue closes.
func (q *Queue) Dequeue(ctx context.Context) (jobs.Delivery, error) {
	q.startOnce.Do(func() { go q.receive() })
	select {
	case <-ctx.Done():
		return jobs.Delivery{}, ctx.Err()
	case d := <-q.deliveries:
		return d, nil
	case <-q.done:
		if q.receiveErr != nil {
			return jobs.Delivery{}, fmt.Errorf("pubsub receive: %w", q.receiveErr)
		}
		return jobs.Delivery{}, ErrClosed
	}
}

func (q *Queue) receive() {
	defer close(q.done)
	q.receiveErr = q.subscriber.Receive(q.receiveCtx, func(ctx context.Context, m *pubsub.Message) {
		var msg jobs.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			// redelivery cannot fix a malformed payload
			q.logger.Warn("dropping malformed message", zap.String("message_id", m.ID), zap.Error(err))
			m.Ack()
			return
		}
		d := jobs.NewDelivery(msg,
			func(context.Context) error { m.Ack(); return nil },
			func(context.Context) error { m.Nack(); return nil },
		)
		d.Attributes = m.Attributes
		select {
		case q.deliveries <- d:
		case <-ctx.Done():
			m.Nack()
		}
	})
}

// Close stops receiving, flushes pending publishes and closes the client when
// Dial created it.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.cancel()
		q.startOnce.Do(func() { close(q.done) })
		<-q.done
		q.publisher.Stop()
		if q.ownsClient {
			if err := q.client.Close(); err != nil {
				q.closeErr = fmt.Errorf("close pubsub client: %w", err)
			}
		}
	})
	return q.closeErr
}
