package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hookrelay/hookrelay/internal/dispatch"
	"github.com/hookrelay/hookrelay/internal/store"
	"github.com/hookrelay/hookrelay/shared/rabbitmq"
)

// DeliveryStore is the slice of the durable store the worker writes outcomes to
type DeliveryStore interface {
	GetDelivery(ctx context.Context, deliveryID string) (*store.Delivery, error)
	MarkDelivered(ctx context.Context, deliveryID string, attempt int) error
	MarkFailed(ctx context.Context, deliveryID string, attempts int, lastError string) error
	RecordAttempt(ctx context.Context, deliveryID string, attempt int) error
}

// RetryScheduler is the slice of the dispatch queue the worker reports back to
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, item dispatch.WorkItem) error
	Release(dedupeKey string)
	Policy() dispatch.Policy
}

// Config holds worker configuration
type Config struct {
	Logger         *slog.Logger
	Store          DeliveryStore
	Queue          RetryScheduler
	RabbitClient   *rabbitmq.Client
	Concurrency    int
	PrefetchCount  int
	AttemptTimeout time.Duration
	SigningSecret  []byte
}

// Worker consumes work items from the dispatch queue, performs delivery
// attempts, and reports outcomes back into both the queue and the store.
// Workers are stateless between attempts; the queue and the store are the
// only shared state.
type Worker struct {
	logger         *slog.Logger
	store          DeliveryStore
	queue          RetryScheduler
	rabbitClient   *rabbitmq.Client
	httpClient     *http.Client
	concurrency    int
	prefetchCount  int
	attemptTimeout time.Duration
	signingSecret  []byte
	workerID       string
	attemptsChan   chan *attemptMessage
	wg             sync.WaitGroup
	stopChan       chan struct{}
}

// attemptMessage pairs a decoded work item with its broker delivery tag
type attemptMessage struct {
	Item        dispatch.WorkItem
	DeliveryTag uint64
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}

	return &Worker{
		logger:         cfg.Logger,
		store:          cfg.Store,
		queue:          cfg.Queue,
		rabbitClient:   cfg.RabbitClient,
		httpClient:     &http.Client{Timeout: timeout},
		concurrency:    cfg.Concurrency,
		prefetchCount:  cfg.PrefetchCount,
		attemptTimeout: timeout,
		signingSecret:  cfg.SigningSecret,
		workerID:       fmt.Sprintf("webhook-worker-%s", uuid.New().String()[:8]),
		attemptsChan:   make(chan *attemptMessage, cfg.Concurrency),
		stopChan:       make(chan struct{}),
	}
}

// Start begins consuming and processing delivery attempts. It blocks until
// the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("attempt_timeout", w.attemptTimeout),
	)

	deliveries, err := w.rabbitClient.Consume(w.workerID, w.prefetchCount)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	go w.startMessageDispatcher(ctx, deliveries)

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker, letting in-flight attempts finish or
// time out naturally before returning.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...",
		slog.String("worker_id", w.workerID),
	)
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
