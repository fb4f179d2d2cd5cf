package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"signalcast/api_scheduler/internal/lifecycle"
	"signalcast/api_scheduler/pkg/models"
)

const contentColumns = `id, owner_id, topic, audience_segment_id, payloads, channels, status,
	publish_attempts, scheduled_at, posted_at, last_error, created_at, updated_at`

// ContentStore persists content items and their publish lifecycle.
type ContentStore struct {
	db *sql.DB
}

// NewContentStore creates a content store over the given connection.
func NewContentStore(db *sql.DB) *ContentStore {
	return &ContentStore{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContentItem(row rowScanner) (*models.ContentItem, error) {
	var item models.ContentItem
	var postedAt, scheduledAt sql.NullTime
	err := row.Scan(
		&item.ID, &item.OwnerID, &item.Topic, &item.AudienceSegmentID,
		&item.Payloads, &item.Channels, &item.Status,
		&item.PublishAttempts, &scheduledAt, &postedAt, &item.LastError,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if scheduledAt.Valid {
		item.ScheduledAt = &scheduledAt.Time
	}
	if postedAt.Valid {
		item.PostedAt = &postedAt.Time
	}
	return &item, nil
}

// Create inserts a draft content item and fills in generated fields.
func (s *ContentStore) Create(ctx context.Context, item *models.ContentItem) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO helmsman.content_items (owner_id, topic, audience_segment_id, payloads, channels, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		item.OwnerID, item.Topic, item.AudienceSegmentID, item.Payloads, item.Channels, item.Status, item.ScheduledAt,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create content item: %w", err)
	}
	return nil
}

// Get fetches one content item by id.
func (s *ContentStore) Get(ctx context.Context, id string) (*models.ContentItem, error) {
	item, err := scanContentItem(s.db.QueryRowContext(ctx, `
		SELECT `+contentColumns+`
		FROM helmsman.content_items
		WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get content item %s: %w", id, err)
	}
	return item, nil
}

// ListByIDs fetches a batch of content items in one round trip.
func (s *ContentStore) ListByIDs(ctx context.Context, ids []string) ([]models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contentColumns+`
		FROM helmsman.content_items
		WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list content items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ListDue returns scheduled items whose publish time has arrived, oldest
// first.
func (s *ContentStore) ListDue(ctx context.Context, now time.Time, limit int) ([]models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contentColumns+`
		FROM helmsman.content_items
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due content items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ClaimForPublish atomically moves a scheduled item to posting. The WHERE
// clause doubles as the optimistic lock: if another dispatcher already claimed
// the item (or it left the scheduled state) no row matches and the claim
// fails with ErrAlreadyClaimed.
func (s *ContentStore) ClaimForPublish(ctx context.Context, id string) (*models.ContentItem, error) {
	item, err := scanContentItem(s.db.QueryRowContext(ctx, `
		UPDATE helmsman.content_items
		SET status = 'posting', updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING `+contentColumns, id))
	if err == sql.ErrNoRows {
		return nil, lifecycle.ErrAlreadyClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim content item %s: %w", id, err)
	}
	return item, nil
}

// MarkPosted completes a publish.
func (s *ContentStore) MarkPosted(ctx context.Context, id string, postedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE helmsman.content_items
		SET status = 'posted', posted_at = $2, last_error = '', updated_at = NOW()
		WHERE id = $1`, id, postedAt)
	if err != nil {
		return fmt.Errorf("failed to mark content item %s posted: %w", id, err)
	}
	return nil
}

// ReturnToScheduled releases a failed claim so the item is retried on a later
// dispatch tick.
func (s *ContentStore) ReturnToScheduled(ctx context.Context, id string, attempts int, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE helmsman.content_items
		SET status = 'scheduled', publish_attempts = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1`, id, attempts, lastError)
	if err != nil {
		return fmt.Errorf("failed to reschedule content item %s: %w", id, err)
	}
	return nil
}

// MarkFailed dead-letters an item after publish attempts are exhausted.
func (s *ContentStore) MarkFailed(ctx context.Context, id string, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE helmsman.content_items
		SET status = 'failed', publish_attempts = publish_attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1`, id, lastError)
	if err != nil {
		return fmt.Errorf("failed to dead-letter content item %s: %w", id, err)
	}
	return nil
}

// UpdateSchedule assigns a publish time and moves the item into the scheduled
// state. Items already in flight or terminal are left untouched.
func (s *ContentStore) UpdateSchedule(ctx context.Context, id string, scheduledAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE helmsman.content_items
		SET status = 'scheduled', scheduled_at = $2, publish_attempts = 0, last_error = '', updated_at = NOW()
		WHERE id = $1 AND status IN ('draft', 'scheduled')`, id, scheduledAt)
	if err != nil {
		return fmt.Errorf("failed to schedule content item %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("content item %s is not schedulable", id)
	}
	return nil
}

func collectItems(rows *sql.Rows) ([]models.ContentItem, error) {
	var items []models.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
