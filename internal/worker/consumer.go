package worker

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hookrelay/hookrelay/internal/dispatch"
)

// startMessageDispatcher listens to broker deliveries and hands decoded work
// items to the worker pool. Malformed messages are dropped without requeue.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			item, err := dispatch.DecodeWorkItem(delivery.Body)
			if err != nil {
				w.logger.Error("Failed to decode work item",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if _, err := uuid.Parse(item.DeliveryID); err != nil {
				w.logger.Error("Invalid delivery_id in work item - not a UUID",
					slog.String("delivery_id", item.DeliveryID),
					slog.String("error", err.Error()),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK message with invalid delivery_id",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			msg := &attemptMessage{
				Item:        item,
				DeliveryTag: delivery.DeliveryTag,
			}

			select {
			case w.attemptsChan <- msg:
				w.logger.Debug("Work item dispatched to worker pool",
					slog.String("delivery_id", item.DeliveryID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching work item")
				// Requeue so another consumer picks it up after shutdown
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
