// Package pubsub carries job IDs over Google Cloud Pub/Sub so several
// service replicas can share one backlog.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/flight-fare-crawler/internal/jobs"
)

// Queue implements jobs.Queue. Enqueue publishes to a topic; a background
// receiver on the subscription feeds Dequeue. Messages are acked once handed
// to a consumer, so a crash between dequeue and completion loses the job
// from the queue but not from the job store.
type Queue struct {
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	items   chan string
	startMu sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	closeMu sync.Once
	errMu   sync.Mutex
	err     error
}

var _ jobs.Queue = (*Queue)(nil)

// New creates a Queue. The receiver starts on the first Dequeue.
func New(topic *pubsub.Topic, sub *pubsub.Subscription, logger *zap.Logger) (*Queue, error) {
	if topic == nil || sub == nil {
		return nil, errors.New("pubsub topic and subscription are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		topic:  topic,
		sub:    sub,
		logger: logger,
		items:  make(chan string),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

// Enqueue publishes jobID and waits for the server acknowledgement.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case <-q.done:
		return jobs.ErrQueueClosed
	default:
	}
	res := q.topic.Publish(ctx, &pubsub.Message{
		Data:       []byte(jobID),
		Attributes: map[string]string{"job_id": jobID},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish job %s: %w", jobID, err)
	}
	return nil
}

// Dequeue returns the next job ID received from the subscription.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	q.startMu.Do(q.start)
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		if err := q.receiveErr(); err != nil {
			return "", fmt.Errorf("%w: %v", jobs.ErrQueueClosed, err)
		}
		return "", jobs.ErrQueueClosed
	case id := <-q.items:
		return id, nil
	}
}

func (q *Queue) start() {
	go func() {
		err := q.sub.Receive(q.ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			select {
			case q.items <- string(msg.Data):
				msg.Ack()
			case <-msgCtx.Done():
				msg.Nack()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			q.logger.Error("pubsub receive stopped", zap.Error(err))
			q.errMu.Lock()
			q.err = err
			q.errMu.Unlock()
		}
		q.Close()
	}()
}

func (q *Queue) receiveErr() error {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	return q.err
}

// Close stops the receiver and flushes pending publishes.
func (q *Queue) Close() {
	q.closeMu.Do(func() {
		close(q.done)
		q.cancel()
		q.topic.Stop()
	})
}
