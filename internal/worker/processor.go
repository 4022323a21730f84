package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hookrelay/hookrelay/internal/dispatch"
	"github.com/hookrelay/hookrelay/internal/signer"
	"github.com/hookrelay/hookrelay/internal/store"
)

const (
	headerSignature      = "X-Webhook-Signature"
	headerAttempt        = "X-Webhook-Attempt"
	headerIdempotencyKey = "X-Idempotency-Key"

	statusWriteRetries = 3
	statusWriteDelay   = 500 * time.Millisecond
)

// processAttempt performs one delivery attempt for a work item and reports
// the outcome to both the store and the dispatch queue. The delivery row is
// the source of truth for the payload and target; the work item only
// identifies the work.
func (w *Worker) processAttempt(ctx context.Context, item dispatch.WorkItem) error {
	d, err := w.store.GetDelivery(ctx, item.DeliveryID)
	if err != nil {
		if errors.Is(err, store.ErrDeliveryNotFound) {
			w.logger.Warn("Work item references unknown delivery, dropping",
				slog.String("delivery_id", item.DeliveryID),
			)
			return nil
		}
		// Store outage before the attempt started: safe to let the broker
		// redeliver, nothing has been sent yet
		return NewRetryableError(fmt.Errorf("failed to load delivery: %w", err))
	}

	if d.IsTerminal() {
		// Redundant re-delivery of an already-settled item (crash between
		// handler completion and ack, or a recovery re-submission racing the
		// original). Dropping it here is what keeps duplicates out of the
		// receiver.
		w.logger.Info("Delivery already in terminal state, skipping",
			slog.String("delivery_id", d.DeliveryID),
			slog.String("status", d.Status),
		)
		w.queue.Release(item.DeliveryID)
		return nil
	}

	if w.queue.Policy().Exhausted(item.Attempt) {
		// The budget was already spent but the terminal write was lost,
		// leaving the row PENDING. Settle it without another send so the
		// configured maximum is never exceeded.
		w.logger.Warn("Attempt budget already spent, settling without delivery",
			slog.String("delivery_id", d.DeliveryID),
			slog.Int("attempts", item.Attempt),
		)
		w.writeStatusWithRetry(ctx, "mark failed", d.DeliveryID, func(ctx context.Context) error {
			return w.store.MarkFailed(ctx, d.DeliveryID, item.Attempt, "delivery attempts exhausted")
		})
		w.queue.Release(item.DeliveryID)
		return nil
	}

	attempt := item.Attempt + 1

	w.logger.Info("Performing delivery attempt",
		slog.String("delivery_id", d.DeliveryID),
		slog.String("merchant_id", d.MerchantID),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", w.queue.Policy().MaxAttempts),
	)

	sendErr := w.send(ctx, d, attempt)
	if sendErr == nil {
		w.writeStatusWithRetry(ctx, "mark delivered", d.DeliveryID, func(ctx context.Context) error {
			return w.store.MarkDelivered(ctx, d.DeliveryID, attempt)
		})
		w.queue.Release(item.DeliveryID)

		w.logger.Info("Webhook delivered",
			slog.String("delivery_id", d.DeliveryID),
			slog.Int("attempt", attempt),
		)
		return nil
	}

	w.logger.Warn("Delivery attempt failed",
		slog.String("delivery_id", d.DeliveryID),
		slog.Int("attempt", attempt),
		slog.String("error", sendErr.Error()),
	)

	if w.queue.Policy().Exhausted(attempt) {
		w.writeStatusWithRetry(ctx, "mark failed", d.DeliveryID, func(ctx context.Context) error {
			return w.store.MarkFailed(ctx, d.DeliveryID, attempt, sendErr.Error())
		})
		w.queue.Release(item.DeliveryID)

		w.logger.Error("Delivery attempts exhausted",
			slog.String("delivery_id", d.DeliveryID),
			slog.Int("attempts", attempt),
		)
		return nil
	}

	// Persist attempt progress while the row is still PENDING so a recovery
	// re-submission resumes the budget where it stopped. Best effort: a lost
	// write only risks extra attempts, never lost ones.
	if err := w.store.RecordAttempt(ctx, d.DeliveryID, attempt); err != nil {
		w.logger.Warn("Failed to record attempt progress",
			slog.String("delivery_id", d.DeliveryID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	retry := item
	retry.Attempt = attempt
	if err := w.queue.ScheduleRetry(ctx, retry); err != nil {
		// The retry would be lost; let the broker redeliver the original
		// message instead
		return NewRetryableError(fmt.Errorf("failed to schedule retry: %w", err))
	}

	return nil
}

// send issues the outbound HTTP POST for one attempt. Any non-2xx response,
// transport error, or timeout is a failure.
func (w *Worker) send(ctx context.Context, d *store.Delivery, attempt int) error {
	payload := []byte(d.Payload)
	signature := signer.Sign(payload, w.signingSecret)

	attemptCtx, cancel := context.WithTimeout(ctx, w.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, d.TargetURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerSignature, signature)
	req.Header.Set(headerAttempt, strconv.Itoa(attempt))
	// Stable across retries of the same delivery so the receiver can dedupe
	req.Header.Set(headerIdempotencyKey, "delivery-"+d.DeliveryID)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("receiver returned status %d", resp.StatusCode)
	}

	return nil
}

// writeStatusWithRetry retries a terminal status write a bounded number of
// times. The delivery outcome is already decided at this point; the write is
// metadata and must never re-trigger the delivery, so exhausting the retries
// only logs.
func (w *Worker) writeStatusWithRetry(ctx context.Context, op, deliveryID string, write func(context.Context) error) {
	var err error
	for i := 0; i < statusWriteRetries; i++ {
		if err = write(ctx); err == nil {
			return
		}

		w.logger.Warn("Status write failed, retrying",
			slog.String("op", op),
			slog.String("delivery_id", deliveryID),
			slog.Int("try", i+1),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(statusWriteDelay):
		}
	}

	w.logger.Error("Status write failed after retries, store and queue may diverge until reconciliation",
		slog.String("op", op),
		slog.String("delivery_id", deliveryID),
		slog.String("error", err.Error()),
	)
}
