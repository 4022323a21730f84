package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hookrelay/hookrelay/internal/api/dto"
	"github.com/hookrelay/hookrelay/internal/dispatch"
	"github.com/hookrelay/hookrelay/internal/store"
)

// CreateWebhook handles POST /api/v1/webhooks
// Accepts a payment event and schedules its webhook delivery
func (h *WebhookHandler) CreateWebhook(c *gin.Context) {
	var req dto.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	payload := store.Payload{
		MerchantID:    req.MerchantID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		TransactionID: req.TransactionID,
	}

	canonical, err := payload.Canonical()
	if err != nil {
		h.logger.Error("Failed to canonicalize payload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to process payload",
		})
		return
	}

	now := time.Now()
	delivery := store.Delivery{
		DeliveryID:     uuid.New().String(),
		MerchantID:     req.MerchantID,
		Payload:        string(canonical),
		TargetURL:      h.delivery.TargetURL(req.MerchantID),
		IdempotencyKey: req.MerchantID + ":" + req.TransactionID,
		Status:         store.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// The insert is the acceptance point: once the row exists the delivery
	// will happen even if everything after this line fails
	if err := h.store.CreateDelivery(c.Request.Context(), &delivery); err != nil {
		if errors.Is(err, store.ErrDuplicateDelivery) {
			h.logger.Info("Duplicate submission rejected",
				slog.String("merchant_id", req.MerchantID),
				slog.String("transaction_id", req.TransactionID),
			)
			c.JSON(http.StatusConflict, gin.H{
				"error":           "A delivery already exists for this transaction",
				"idempotency_key": delivery.IdempotencyKey,
			})
			return
		}

		h.logger.Error("Failed to create delivery", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create delivery",
		})
		return
	}

	item := dispatch.WorkItem{
		DeliveryID: delivery.DeliveryID,
		MerchantID: delivery.MerchantID,
		Payload:    json.RawMessage(canonical),
		TargetURL:  delivery.TargetURL,
		Attempt:    0,
	}

	// An enqueue failure is not an acceptance failure: the row is durable and
	// the reconciler will pick it up
	if err := h.queue.Enqueue(c.Request.Context(), item); err != nil {
		h.logger.Warn("Failed to enqueue delivery, reconciler will recover it",
			slog.String("delivery_id", delivery.DeliveryID),
			slog.String("error", err.Error()),
		)
	}

	c.JSON(http.StatusCreated, toDeliveryDTO(&delivery))
}

// GetDelivery handles GET /api/v1/webhooks/:delivery_id
// Retrieves the current state of a single delivery
func (h *WebhookHandler) GetDelivery(c *gin.Context) {
	deliveryID := c.Param("delivery_id")

	if _, err := uuid.Parse(deliveryID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "delivery_id must be a valid UUID",
		})
		return
	}

	delivery, err := h.store.GetDelivery(c.Request.Context(), deliveryID)
	if err != nil {
		if errors.Is(err, store.ErrDeliveryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Delivery not found",
			})
			return
		}

		h.logger.Error("Failed to get delivery", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get delivery",
		})
		return
	}

	c.JSON(http.StatusOK, toDeliveryDTO(delivery))
}

// ListDeliveries handles GET /api/v1/webhooks
// Lists deliveries with optional filtering and cursor pagination
func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	var req dto.ListDeliveriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeDeliveryCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := store.DeliveryFilter{
		MerchantID: req.MerchantID,
		Status:     req.Status,
		PageSize:   req.PageSize,
		Cursor:     cursor,
	}

	deliveries, err := h.store.ListDeliveries(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list deliveries", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list deliveries",
		})
		return
	}

	hasMore := len(deliveries) > req.PageSize
	if hasMore {
		deliveries = deliveries[:req.PageSize]
	}

	response := dto.ListDeliveriesResponse{
		Deliveries: make([]dto.DeliveryDTO, len(deliveries)),
	}
	for i := range deliveries {
		response.Deliveries[i] = toDeliveryDTO(&deliveries[i])
	}

	if hasMore {
		last := deliveries[len(deliveries)-1]
		response.NextCursor = EncodeDeliveryCursor(&store.DeliveryCursor{
			CreatedAt:  last.CreatedAt,
			DeliveryID: last.DeliveryID,
		})
	}

	c.JSON(http.StatusOK, response)
}

// GetSummary handles GET /api/v1/webhooks/summary
// Returns delivery counts and attempt statistics grouped by status
func (h *WebhookHandler) GetSummary(c *gin.Context) {
	summary, err := h.store.StatusSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get status summary", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get status summary",
		})
		return
	}

	response := dto.SummaryResponse{
		Summary: make([]dto.StatusCountDTO, len(summary)),
	}
	for i, row := range summary {
		response.Summary[i] = dto.StatusCountDTO{
			Status:      row.Status,
			Count:       row.Count,
			AvgAttempts: row.AvgAttempts,
			MaxAttempts: row.MaxAttempts,
		}
	}

	c.JSON(http.StatusOK, response)
}

func toDeliveryDTO(d *store.Delivery) dto.DeliveryDTO {
	return dto.DeliveryDTO{
		DeliveryID:     d.DeliveryID,
		MerchantID:     d.MerchantID,
		Payload:        d.Payload,
		TargetURL:      d.TargetURL,
		IdempotencyKey: d.IdempotencyKey,
		Status:         d.Status,
		AttemptCount:   d.AttemptCount,
		LastError:      d.LastError,
		CreatedAt:      d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      d.UpdatedAt.Format(time.RFC3339),
	}
}
