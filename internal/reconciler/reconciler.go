package reconciler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hookrelay/hookrelay/internal/dispatch"
	"github.com/hookrelay/hookrelay/internal/store"
)

// PendingLister is the slice of the durable store the reconciler scans
type PendingLister interface {
	ListPendingOlderThan(ctx context.Context, threshold time.Duration) ([]store.Delivery, error)
}

// Enqueuer is the slice of the dispatch queue the reconciler re-submits into
type Enqueuer interface {
	Enqueue(ctx context.Context, item dispatch.WorkItem) error
}

// Reconciler closes the crash window between "delivery durably created" and
// "work item durably enqueued". It re-submits every sufficiently old PENDING
// delivery unconditionally; the dispatch queue dedupes on the delivery id, so
// a re-offer of work that is merely slow is absorbed as a no-op and repeated
// passes never create duplicate in-flight work.
type Reconciler struct {
	store     PendingLister
	queue     Enqueuer
	interval  time.Duration
	threshold time.Duration
	logger    *slog.Logger
}

// New creates a reconciler. threshold is the minimum age of a PENDING
// delivery before it is considered stuck; interval is the period between
// passes when Start is used.
func New(st PendingLister, queue Enqueuer, interval, threshold time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     st,
		queue:     queue,
		interval:  interval,
		threshold: threshold,
		logger:    logger,
	}
}

// Start runs a reconciliation pass immediately, then periodically until the
// context is canceled. The maximum exposure window for a lost enqueue is
// threshold + interval.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("Starting reconciler",
		slog.Duration("interval", r.interval),
		slog.Duration("pending_threshold", r.threshold),
	)

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping reconciler")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single reconciliation pass
func (r *Reconciler) RunOnce(ctx context.Context) {
	pending, err := r.store.ListPendingOlderThan(ctx, r.threshold)
	if err != nil {
		r.logger.Error("Failed to list pending deliveries",
			slog.String("error", err.Error()),
		)
		return
	}

	if len(pending) == 0 {
		return
	}

	r.logger.Info("Reconciling pending deliveries",
		slog.Int("count", len(pending)),
	)

	var resubmitted int
	for _, d := range pending {
		// AttemptCount carries forward so the re-submitted item resumes the
		// attempt budget where it stopped
		item := dispatch.WorkItem{
			DeliveryID: d.DeliveryID,
			MerchantID: d.MerchantID,
			Payload:    json.RawMessage(d.Payload),
			TargetURL:  d.TargetURL,
			Attempt:    d.AttemptCount,
		}

		if err := r.queue.Enqueue(ctx, item); err != nil {
			r.logger.Error("Failed to re-submit delivery",
				slog.String("delivery_id", d.DeliveryID),
				slog.String("error", err.Error()),
			)
			continue
		}
		resubmitted++
	}

	r.logger.Info("Reconciliation pass complete",
		slog.Int("resubmitted", resubmitted),
	)
}
