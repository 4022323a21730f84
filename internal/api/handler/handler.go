package handler

import (
	"context"
	"log/slog"

	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/dispatch"
	"github.com/hookrelay/hookrelay/internal/store"
	"github.com/hookrelay/hookrelay/shared/postgresql"
	"github.com/hookrelay/hookrelay/shared/rabbitmq"
)

// DeliveryStore is the slice of the store the API handlers need
type DeliveryStore interface {
	CreateDelivery(ctx context.Context, d *store.Delivery) error
	GetDelivery(ctx context.Context, deliveryID string) (*store.Delivery, error)
	ListDeliveries(ctx context.Context, filter store.DeliveryFilter) ([]store.Delivery, error)
	StatusSummary(ctx context.Context) ([]store.StatusCount, error)
}

// Enqueuer submits freshly accepted deliveries to the dispatch queue
type Enqueuer interface {
	Enqueue(ctx context.Context, item dispatch.WorkItem) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Store        DeliveryStore
	Queue        Enqueuer
	Delivery     *config.DeliveryConfig
	DBClient     *postgresql.Client
	RabbitClient *rabbitmq.Client
}

// WebhookHandler handles webhook-related HTTP requests
type WebhookHandler struct {
	logger   *slog.Logger
	store    DeliveryStore
	queue    Enqueuer
	delivery *config.DeliveryConfig
}

// NewWebhookHandler creates a new WebhookHandler instance
func NewWebhookHandler(deps *Dependencies) *WebhookHandler {
	return &WebhookHandler{
		logger:   deps.Logger,
		store:    deps.Store,
		queue:    deps.Queue,
		delivery: deps.Delivery,
	}
}
