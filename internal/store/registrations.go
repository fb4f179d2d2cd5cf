package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"signalcast/api_scheduler/pkg/models"
)

const registrationColumns = `id, url, secret, events, max_retries, initial_delay_ms,
	backoff_multiplier, headers, timeout_ms, active, created_at, updated_at`

// RegistrationStore persists webhook registrations. Durations are stored as
// milliseconds so the schema stays driver-neutral.
type RegistrationStore struct {
	db *sql.DB
}

// NewRegistrationStore creates a registration store.
func NewRegistrationStore(db *sql.DB) *RegistrationStore {
	return &RegistrationStore{db: db}
}

func scanRegistration(row rowScanner) (*models.WebhookRegistration, error) {
	var reg models.WebhookRegistration
	var initialDelayMS, timeoutMS int64
	var headers []byte
	err := row.Scan(
		&reg.ID, &reg.URL, &reg.Secret, &reg.Events,
		&reg.Retry.MaxRetries, &initialDelayMS, &reg.Retry.BackoffMultiplier,
		&headers, &timeoutMS, &reg.Active, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	reg.Retry.InitialDelay = time.Duration(initialDelayMS) * time.Millisecond
	reg.Timeout = time.Duration(timeoutMS) * time.Millisecond
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &reg.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode registration headers: %w", err)
		}
	}
	return &reg, nil
}

func encodeHeaders(headers map[string]string) ([]byte, error) {
	if headers == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(headers)
}

// Create inserts a registration and fills in generated fields.
func (s *RegistrationStore) Create(ctx context.Context, reg *models.WebhookRegistration) error {
	headers, err := encodeHeaders(reg.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode registration headers: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO helmsman.webhook_registrations (url, secret, events, max_retries, initial_delay_ms, backoff_multiplier, headers, timeout_ms, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		reg.URL, reg.Secret, reg.Events, reg.Retry.MaxRetries,
		reg.Retry.InitialDelay.Milliseconds(), reg.Retry.BackoffMultiplier,
		headers, reg.Timeout.Milliseconds(), reg.Active,
	).Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook registration: %w", err)
	}
	return nil
}

// Get fetches one registration by id.
func (s *RegistrationStore) Get(ctx context.Context, id string) (*models.WebhookRegistration, error) {
	reg, err := scanRegistration(s.db.QueryRowContext(ctx, `
		SELECT `+registrationColumns+`
		FROM helmsman.webhook_registrations
		WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook registration %s: %w", id, err)
	}
	return reg, nil
}

// List returns all registrations, newest first.
func (s *RegistrationStore) List(ctx context.Context) ([]models.WebhookRegistration, error) {
	return s.list(ctx, `
		SELECT `+registrationColumns+`
		FROM helmsman.webhook_registrations
		ORDER BY created_at DESC`)
}

// ListActive returns registrations eligible for delivery.
func (s *RegistrationStore) ListActive(ctx context.Context) ([]models.WebhookRegistration, error) {
	return s.list(ctx, `
		SELECT `+registrationColumns+`
		FROM helmsman.webhook_registrations
		WHERE active = TRUE
		ORDER BY created_at DESC`)
}

func (s *RegistrationStore) list(ctx context.Context, query string) ([]models.WebhookRegistration, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook registrations: %w", err)
	}
	defer rows.Close()

	var regs []models.WebhookRegistration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// Update rewrites a registration's mutable fields.
func (s *RegistrationStore) Update(ctx context.Context, reg *models.WebhookRegistration) error {
	headers, err := encodeHeaders(reg.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode registration headers: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE helmsman.webhook_registrations
		SET url = $2, secret = $3, events = $4, max_retries = $5, initial_delay_ms = $6,
		    backoff_multiplier = $7, headers = $8, timeout_ms = $9, active = $10, updated_at = NOW()
		WHERE id = $1`,
		reg.ID, reg.URL, reg.Secret, reg.Events, reg.Retry.MaxRetries,
		reg.Retry.InitialDelay.Milliseconds(), reg.Retry.BackoffMultiplier,
		headers, reg.Timeout.Milliseconds(), reg.Active)
	if err != nil {
		return fmt.Errorf("failed to update webhook registration %s: %w", reg.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a registration along with its delivery history.
func (s *RegistrationStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM helmsman.webhook_registrations
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook registration %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
