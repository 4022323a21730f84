package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const contentTypeJSON = "application/json"

// Broker is the slice of the RabbitMQ client the dispatch queue needs
type Broker interface {
	Publish(ctx context.Context, body []byte, contentType string) error
	PublishTo(ctx context.Context, routingKey string, msg amqp.Publishing) error
	RetryRoutingKey(attempt int) string
}

// Queue is the dispatch side of the delivery pipeline: it admits work items
// into the durable work queue and reschedules failed items with exponential
// backoff. Backoff is broker-driven: a retry is published into the retry
// queue tier for the attempt, whose queue-level TTL matches the backoff
// delay, and the dead-letter binding returns it to the work queue when the
// TTL fires.
type Queue struct {
	broker Broker
	policy Policy
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]time.Time
	// dedupeTTL bounds how long a dedupe key suppresses re-enqueues; after it
	// elapses the reconciler is allowed to submit the item again.
	dedupeTTL time.Duration
}

// NewQueue creates a dispatch queue over the given broker
func NewQueue(broker Broker, policy Policy, dedupeTTL time.Duration, logger *slog.Logger) *Queue {
	if dedupeTTL <= 0 {
		dedupeTTL = 10 * time.Minute
	}
	return &Queue{
		broker:    broker,
		policy:    policy,
		logger:    logger,
		inflight:  make(map[string]time.Time),
		dedupeTTL: dedupeTTL,
	}
}

// Policy returns the retry policy this queue schedules with
func (q *Queue) Policy() Policy {
	return q.policy
}

// Enqueue admits a work item into the durable work queue. The dedupe registry
// is keyed on the delivery id alone, so a re-submission of an item that is
// already queued or in flight is absorbed as a no-op no matter where the
// submission came from: the reconciler re-offering a slow delivery must never
// create a second live work item for it.
func (q *Queue) Enqueue(ctx context.Context, item WorkItem) error {
	if !q.tryAcquire(item.DeliveryID) {
		q.logger.Debug("Enqueue absorbed by dedupe",
			slog.String("delivery_id", item.DeliveryID),
		)
		return nil
	}

	body, err := item.Encode()
	if err != nil {
		q.release(item.DeliveryID)
		return err
	}

	if err := q.broker.Publish(ctx, body, contentTypeJSON); err != nil {
		q.release(item.DeliveryID)
		return err
	}

	q.logger.Info("Work item enqueued",
		slog.String("delivery_id", item.DeliveryID),
		slog.Int("attempt", item.Attempt),
	)

	return nil
}

// ScheduleRetry publishes the item into the retry queue tier whose TTL equals
// the backoff delay for the attempt just made. item.Attempt must already be
// advanced to the attempt count after the failed try. Tiered queues keep the
// TTL uniform within each queue, so a long-delay retry never blocks a
// short-delay one at the queue head.
func (q *Queue) ScheduleRetry(ctx context.Context, item WorkItem) error {
	body, err := item.Encode()
	if err != nil {
		return err
	}

	delay := q.policy.Delay(item.Attempt)

	msg := amqp.Publishing{
		ContentType:  contentTypeJSON,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers: amqp.Table{
			"x-attempt": int32(item.Attempt),
		},
	}

	if err := q.broker.PublishTo(ctx, q.broker.RetryRoutingKey(item.Attempt), msg); err != nil {
		return err
	}

	q.logger.Info("Retry scheduled",
		slog.String("delivery_id", item.DeliveryID),
		slog.Int("attempt", item.Attempt),
		slog.Duration("delay", delay),
	)

	return nil
}

// Release drops a dedupe key, allowing the item to be enqueued again
func (q *Queue) Release(dedupeKey string) {
	q.release(dedupeKey)
}

func (q *Queue) tryAcquire(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if expiry, ok := q.inflight[key]; ok && time.Now().Before(expiry) {
		return false
	}
	q.inflight[key] = time.Now().Add(q.dedupeTTL)
	return true
}

func (q *Queue) release(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, key)
}
