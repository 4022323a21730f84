package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine.
// processAttempt absorbs delivery failures internally (rescheduling through
// the dispatch queue), so a returned error always means the attempt could not
// be started or finished bookkeeping; only RetryableError warrants a broker
// requeue.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.attemptsChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - attempts channel closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			err := w.processAttempt(ctx, msg.Item)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("delivery_id", msg.Item.DeliveryID),
				)
				continue
			}

			if err != nil {
				requeue := w.shouldRequeue(err)

				w.logger.Error("Attempt processing failed",
					slog.String("worker_name", workerName),
					slog.String("delivery_id", msg.Item.DeliveryID),
					slog.Bool("requeue", requeue),
					slog.String("error", err.Error()),
				)

				if nackErr := channel.Nack(msg.DeliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("delivery_id", msg.Item.DeliveryID),
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("delivery_id", msg.Item.DeliveryID),
					slog.String("error", ackErr.Error()),
				)
			}
		}
	}
}

// shouldRequeue determines if the broker should redeliver the message
func (w *Worker) shouldRequeue(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
