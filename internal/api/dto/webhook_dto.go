package dto

// CreateWebhookRequest is the body of POST /api/v1/webhooks
type CreateWebhookRequest struct {
	MerchantID    string `json:"merchant_id" binding:"required"`
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	Currency      string `json:"currency" binding:"required"`
	TransactionID string `json:"transaction_id" binding:"required"`
}

// DeliveryDTO is the API representation of a delivery record
type DeliveryDTO struct {
	DeliveryID     string `json:"delivery_id"`
	MerchantID     string `json:"merchant_id"`
	Payload        string `json:"payload"`
	TargetURL      string `json:"target_url"`
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
	AttemptCount   int    `json:"attempt_count"`
	LastError      string `json:"last_error,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// ListDeliveriesRequest holds the query parameters of GET /api/v1/webhooks
type ListDeliveriesRequest struct {
	MerchantID string `form:"merchant_id"`
	Status     string `form:"status"`
	PageSize   int    `form:"page_size"`
	Cursor     string `form:"cursor"`
}

// ListDeliveriesResponse is the paginated response of GET /api/v1/webhooks
type ListDeliveriesResponse struct {
	Deliveries []DeliveryDTO `json:"deliveries"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// StatusCountDTO is one row of the status summary
type StatusCountDTO struct {
	Status      string  `json:"status"`
	Count       int     `json:"count"`
	AvgAttempts float64 `json:"avg_attempts"`
	MaxAttempts int     `json:"max_attempts"`
}

// SummaryResponse is the body of GET /api/v1/webhooks/summary
type SummaryResponse struct {
	Summary []StatusCountDTO `json:"summary"`
}
