package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

const (
	queryCreateDelivery = `
		INSERT INTO deliveries (
			delivery_id, merchant_id, payload, target_url,
			idempotency_key, status, attempt_count, last_error,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10
		)
	`

	queryMarkDelivered = `
		UPDATE deliveries
		SET status = $1,
		    attempt_count = GREATEST(attempt_count, $2),
		    updated_at = NOW()
		WHERE delivery_id = $3
		  AND status <> $4
	`

	queryMarkFailed = `
		UPDATE deliveries
		SET status = $1,
		    attempt_count = GREATEST(attempt_count, $2),
		    last_error = $3,
		    updated_at = NOW()
		WHERE delivery_id = $4
		  AND status = $5
	`

	queryRecordAttempt = `
		UPDATE deliveries
		SET attempt_count = GREATEST(attempt_count, $1),
		    updated_at = NOW()
		WHERE delivery_id = $2
		  AND status = $3
	`
)

// Store handles all database operations on the deliveries table.
// Every mutation is a single-row atomic statement keyed by delivery_id,
// so the database is the serialization point and no in-process locking
// is needed.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// CreateDelivery inserts a new delivery row in status PENDING.
// A unique violation on idempotency_key returns ErrDuplicateDelivery:
// the submission already produced a delivery and must not produce another.
func (s *Store) CreateDelivery(ctx context.Context, d *Delivery) error {
	_, err := s.db.ExecContext(
		ctx,
		queryCreateDelivery,
		d.DeliveryID,
		d.MerchantID,
		d.Payload,
		d.TargetURL,
		d.IdempotencyKey,
		d.Status,
		d.AttemptCount,
		d.LastError,
		d.CreatedAt,
		d.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateDelivery
		}
		return fmt.Errorf("failed to create delivery: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint error
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// MarkDelivered transitions a delivery to DELIVERED with the attempt number
// that succeeded. Calling it again with the same or a higher attempt number
// is a no-op on the status and only raises attempt_count; a FAILED delivery
// is never resurrected.
func (s *Store) MarkDelivered(ctx context.Context, deliveryID string, attempt int) error {
	_, err := s.db.ExecContext(ctx, queryMarkDelivered, StatusDelivered, attempt, deliveryID, StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to mark delivery delivered: %w", err)
	}

	s.logger.Info("Delivery marked as delivered",
		slog.String("delivery_id", deliveryID),
		slog.Int("attempt", attempt),
	)

	return nil
}

// MarkFailed transitions a delivery to FAILED after its attempt budget is
// exhausted, recording the attempts made and the most recent error.
// Only a PENDING delivery can fail; terminal states are never overwritten.
func (s *Store) MarkFailed(ctx context.Context, deliveryID string, attempts int, lastError string) error {
	_, err := s.db.ExecContext(ctx, queryMarkFailed, StatusFailed, attempts, lastError, deliveryID, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}

	s.logger.Warn("Delivery marked as failed",
		slog.String("delivery_id", deliveryID),
		slog.Int("attempts", attempts),
		slog.String("last_error", lastError),
	)

	return nil
}

// RecordAttempt persists attempt progress on a still-PENDING delivery after a
// failed try. Keeping the count current is what lets a recovery re-submission
// resume the attempt budget instead of restarting it; a lost write here only
// risks extra attempts, never lost ones, so callers treat failures as
// non-fatal.
func (s *Store) RecordAttempt(ctx context.Context, deliveryID string, attempt int) error {
	_, err := s.db.ExecContext(ctx, queryRecordAttempt, attempt, deliveryID, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// GetDelivery retrieves a single delivery by its ID
func (s *Store) GetDelivery(ctx context.Context, deliveryID string) (*Delivery, error) {
	query := `
		SELECT
			delivery_id, merchant_id, payload, target_url,
			idempotency_key, status, attempt_count, last_error,
			created_at, updated_at
		FROM deliveries
		WHERE delivery_id = $1
	`

	var d Delivery
	err := s.db.GetContext(ctx, &d, query, deliveryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}

	return &d, nil
}

// ListPendingOlderThan returns all PENDING deliveries created before
// now-threshold, ordered by creation time ascending. Used by the reconciler
// to find rows that were durably created but may never have been enqueued.
func (s *Store) ListPendingOlderThan(ctx context.Context, threshold time.Duration) ([]Delivery, error) {
	query := `
		SELECT
			delivery_id, merchant_id, payload, target_url,
			idempotency_key, status, attempt_count, last_error,
			created_at, updated_at
		FROM deliveries
		WHERE status = $1
		  AND created_at < NOW() - $2::interval
		ORDER BY created_at ASC
	`

	var deliveries []Delivery
	err := s.db.SelectContext(ctx, &deliveries, query, StatusPending, threshold.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deliveries: %w", err)
	}

	return deliveries, nil
}

// StatusSummary returns delivery counts and attempt stats grouped by status
func (s *Store) StatusSummary(ctx context.Context) ([]StatusCount, error) {
	query := `
		SELECT
			status,
			COUNT(*) AS count,
			COALESCE(AVG(attempt_count), 0) AS avg_attempts,
			COALESCE(MAX(attempt_count), 0) AS max_attempts
		FROM deliveries
		GROUP BY status
		ORDER BY status
	`

	var summary []StatusCount
	err := s.db.SelectContext(ctx, &summary, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get status summary: %w", err)
	}

	return summary, nil
}

// DeliveryFilter holds the optional filters for ListDeliveries
type DeliveryFilter struct {
	MerchantID string
	Status     string
	PageSize   int
	Cursor     *DeliveryCursor
}

// DeliveryCursor marks the position of the last row of the previous page
type DeliveryCursor struct {
	CreatedAt  time.Time
	DeliveryID string
}

// ListDeliveries returns deliveries matching the filter, newest first,
// fetching one extra row so the caller can detect whether more pages exist.
func (s *Store) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]Delivery, error) {
	query := `
		SELECT
			delivery_id, merchant_id, payload, target_url,
			idempotency_key, status, attempt_count, last_error,
			created_at, updated_at
		FROM deliveries
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.MerchantID != "" {
		query += fmt.Sprintf(" AND merchant_id = $%d", argIdx)
		args = append(args, filter.MerchantID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, delivery_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.DeliveryID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, delivery_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var deliveries []Delivery
	err := s.db.SelectContext(ctx, &deliveries, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}

	return deliveries, nil
}
