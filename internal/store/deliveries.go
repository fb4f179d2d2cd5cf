package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"signalcast/api_scheduler/pkg/models"
)

const deliveryColumns = `id, registration_id, event_type, payload, status, attempts, max_attempts,
	next_retry_at, response_status, response_headers, error, created_at, updated_at, delivered_at`

// DeliveryStore persists webhook delivery records and their retry state.
type DeliveryStore struct {
	db *sql.DB
}

// NewDeliveryStore creates a delivery store.
func NewDeliveryStore(db *sql.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

func scanDelivery(row rowScanner) (*models.DeliveryRecord, error) {
	var rec models.DeliveryRecord
	var nextRetryAt, deliveredAt sql.NullTime
	var responseHeaders []byte
	err := row.Scan(
		&rec.ID, &rec.RegistrationID, &rec.EventType, &rec.Payload,
		&rec.Status, &rec.Attempts, &rec.MaxAttempts,
		&nextRetryAt, &rec.ResponseStatus, &responseHeaders, &rec.Error,
		&rec.CreatedAt, &rec.UpdatedAt, &deliveredAt,
	)
	if err != nil {
		return nil, err
	}
	if nextRetryAt.Valid {
		rec.NextRetryAt = &nextRetryAt.Time
	}
	if deliveredAt.Valid {
		rec.DeliveredAt = &deliveredAt.Time
	}
	if len(responseHeaders) > 0 {
		if err := json.Unmarshal(responseHeaders, &rec.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("failed to decode response headers: %w", err)
		}
	}
	return &rec, nil
}

// InsertDelivery records a new delivery before its first attempt.
func (s *DeliveryStore) InsertDelivery(ctx context.Context, rec *models.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO helmsman.webhook_deliveries (id, registration_id, event_type, payload, status, attempts, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.RegistrationID, rec.EventType, []byte(rec.Payload),
		rec.Status, rec.Attempts, rec.MaxAttempts)
	if err != nil {
		return fmt.Errorf("failed to insert webhook delivery: %w", err)
	}
	return nil
}

// UpdateDelivery persists the outcome of an attempt.
func (s *DeliveryStore) UpdateDelivery(ctx context.Context, rec *models.DeliveryRecord) error {
	headers, err := json.Marshal(rec.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("failed to encode response headers: %w", err)
	}
	if rec.ResponseHeaders == nil {
		headers = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE helmsman.webhook_deliveries
		SET status = $2, attempts = $3, next_retry_at = $4, response_status = $5,
		    response_headers = $6, error = $7, delivered_at = $8, updated_at = NOW()
		WHERE id = $1`,
		rec.ID, rec.Status, rec.Attempts, rec.NextRetryAt,
		rec.ResponseStatus, headers, rec.Error, rec.DeliveredAt)
	if err != nil {
		return fmt.Errorf("failed to update webhook delivery %s: %w", rec.ID, err)
	}
	return nil
}

// ListPendingDue returns pending deliveries whose retry time has elapsed,
// oldest retry first.
func (s *DeliveryStore) ListPendingDue(ctx context.Context, now time.Time, limit int) ([]models.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM helmsman.webhook_deliveries
		WHERE status = 'pending' AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		ORDER BY next_retry_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deliveries: %w", err)
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// ListByRegistration returns a registration's delivery history, newest first.
func (s *DeliveryStore) ListByRegistration(ctx context.Context, registrationID string, limit int) ([]models.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM helmsman.webhook_deliveries
		WHERE registration_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, registrationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries for registration %s: %w", registrationID, err)
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// Stats aggregates a registration's delivery outcomes.
func (s *DeliveryStore) Stats(ctx context.Context, registrationID string) (*models.DeliveryStats, error) {
	stats := &models.DeliveryStats{RegistrationID: registrationID}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'delivered'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status IN ('pending', 'delivering'))
		FROM helmsman.webhook_deliveries
		WHERE registration_id = $1`, registrationID).
		Scan(&stats.Total, &stats.Delivered, &stats.Failed, &stats.Pending)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate delivery stats for %s: %w", registrationID, err)
	}
	return stats, nil
}

func collectDeliveries(rows *sql.Rows) ([]models.DeliveryRecord, error) {
	var recs []models.DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook delivery: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}
