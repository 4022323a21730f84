package store

import (
	"encoding/json"
	"errors"
	"time"
)

// Delivery status constants
const (
	StatusPending   = "PENDING"
	StatusDelivered = "DELIVERED"
	StatusFailed    = "FAILED"
)

var (
	// ErrDeliveryNotFound is returned when a delivery cannot be found in the database
	ErrDeliveryNotFound = errors.New("delivery not found")

	// ErrDuplicateDelivery is returned when the idempotency key already exists.
	// It signals a duplicate submission, not a failure: exactly one delivery
	// exists per key and the caller must not enqueue a second work item.
	ErrDuplicateDelivery = errors.New("duplicate idempotency key")
)

// Payload is the event document captured at submission time. It is immutable
// once created; retries always resend the identical bytes.
type Payload struct {
	MerchantID    string `json:"merchant_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	TransactionID string `json:"transaction_id"`
}

// Canonical returns the deterministic JSON representation of the payload.
// Field order is fixed by the struct definition, so the same event always
// produces the same bytes and therefore the same signature.
func (p Payload) Canonical() ([]byte, error) {
	return json.Marshal(p)
}

// Delivery is the durable record of a webhook delivery job. The store is the
// source of truth; the dispatch queue only ever holds a disposable work item
// derived from this row.
type Delivery struct {
	DeliveryID     string    `db:"delivery_id"`
	MerchantID     string    `db:"merchant_id"`
	Payload        string    `db:"payload"`
	TargetURL      string    `db:"target_url"`
	IdempotencyKey string    `db:"idempotency_key"`
	Status         string    `db:"status"`
	AttemptCount   int       `db:"attempt_count"`
	LastError      string    `db:"last_error"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// IsTerminal reports whether the delivery reached a final state.
// No transition ever leaves DELIVERED or FAILED.
func (d *Delivery) IsTerminal() bool {
	return d.Status == StatusDelivered || d.Status == StatusFailed
}

// StatusCount is one row of the status summary projection.
type StatusCount struct {
	Status      string  `db:"status" json:"status"`
	Count       int     `db:"count" json:"count"`
	AvgAttempts float64 `db:"avg_attempts" json:"avg_attempts"`
	MaxAttempts int     `db:"max_attempts" json:"max_attempts"`
}
