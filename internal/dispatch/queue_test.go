package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	published []amqp.Publishing
	routed    []string
	err       error
}

func (f *fakeBroker) Publish(ctx context.Context, body []byte, contentType string) error {
	return f.PublishTo(ctx, "work", amqp.Publishing{ContentType: contentType, Body: body})
}

func (f *fakeBroker) PublishTo(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.routed = append(f.routed, routingKey)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeBroker) RetryRoutingKey(attempt int) string {
	return fmt.Sprintf("retry.%d", attempt)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testItem() WorkItem {
	return WorkItem{
		DeliveryID: "d-1",
		MerchantID: "m-1",
		Payload:    json.RawMessage(`{"merchant_id":"m-1","amount":100,"currency":"USD","transaction_id":"t-1"}`),
		TargetURL:  "http://receiver.local/hooks",
	}
}

func TestQueue_Enqueue(t *testing.T) {
	broker := &fakeBroker{}
	q := NewQueue(broker, DefaultPolicy, time.Minute, testLogger())

	err := q.Enqueue(context.Background(), testItem())
	require.NoError(t, err)
	require.Len(t, broker.published, 1)

	decoded, err := DecodeWorkItem(broker.published[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "d-1", decoded.DeliveryID)
	assert.Equal(t, 0, decoded.Attempt)
}

func TestQueue_EnqueueDedupe(t *testing.T) {
	broker := &fakeBroker{}
	q := NewQueue(broker, DefaultPolicy, time.Minute, testLogger())

	require.NoError(t, q.Enqueue(context.Background(), testItem()))

	// Second enqueue for the same delivery is absorbed as a no-op
	require.NoError(t, q.Enqueue(context.Background(), testItem()))
	assert.Len(t, broker.published, 1)
}

func TestQueue_ResubmissionOfInFlightDeliveryAbsorbed(t *testing.T) {
	broker := &fakeBroker{}
	q := NewQueue(broker, DefaultPolicy, time.Minute, testLogger())

	// Fresh submission takes the delivery's dedupe slot
	require.NoError(t, q.Enqueue(context.Background(), testItem()))

	// A recovery pass re-offering the same delivery while it is still in
	// flight must not create a second live work item, even when the retry
	// state differs
	resubmission := testItem()
	resubmission.Attempt = 2
	require.NoError(t, q.Enqueue(context.Background(), resubmission))
	require.NoError(t, q.Enqueue(context.Background(), resubmission))

	assert.Len(t, broker.published, 1, "one delivery must never have two live work items")
}

func TestQueue_EnqueueAfterRelease(t *testing.T) {
	broker := &fakeBroker{}
	q := NewQueue(broker, DefaultPolicy, time.Minute, testLogger())

	require.NoError(t, q.Enqueue(context.Background(), testItem()))
	q.Release("d-1")
	require.NoError(t, q.Enqueue(context.Background(), testItem()))

	assert.Len(t, broker.published, 2)
}

func TestQueue_EnqueueDedupeExpiry(t *testing.T) {
	broker := &fakeBroker{}
	q := NewQueue(broker, DefaultPolicy, time.Nanosecond, testLogger())

	require.NoError(t, q.Enqueue(context.Background(), testItem()))
	time.Sleep(time.Millisecond)

	// Expired keys no longer suppress enqueues
	require.NoError(t, q.Enqueue(context.Background(), testItem()))
	assert.Len(t, broker.published, 2)
}

func TestQueue_EnqueuePublishFailureReleasesKey(t *testing.T) {
	broker := &fakeBroker{err: assert.AnError}
	q := NewQueue(broker, DefaultPolicy, time.Minute, testLogger())

	require.Error(t, q.Enqueue(context.Background(), testItem()))

	// The failed publish must not leave the key held, or the reconciler
	// could never re-submit the item
	broker.err = nil
	require.NoError(t, q.Enqueue(context.Background(), testItem()))
	assert.Len(t, broker.published, 1)
}

func TestQueue_ScheduleRetry(t *testing.T) {
	broker := &fakeBroker{}
	q := NewQueue(broker, Policy{MaxAttempts: 8, BaseDelay: 2 * time.Second}, time.Minute, testLogger())

	item := testItem()
	item.Attempt = 3

	require.NoError(t, q.ScheduleRetry(context.Background(), item))
	require.Len(t, broker.published, 1)

	msg := broker.published[0]
	assert.Equal(t, "retry.3", broker.routed[0], "retry must route to the tier for the attempt")
	assert.Empty(t, msg.Expiration, "delay comes from the tier queue TTL, not the message")
	assert.Equal(t, int32(3), msg.Headers["x-attempt"])
	assert.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)

	decoded, err := DecodeWorkItem(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.Attempt)
}

func TestDecodeWorkItem_Invalid(t *testing.T) {
	_, err := DecodeWorkItem([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeWorkItem([]byte(`{"attempt":1}`))
	assert.Error(t, err)
}
