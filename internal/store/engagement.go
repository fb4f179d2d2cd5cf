package store

import (
	"context"
	"fmt"
	"time"

	"signalcast/api_scheduler/pkg/database"
	"signalcast/api_scheduler/pkg/models"
)

// EngagementStore reads historical engagement from ClickHouse. The table is
// populated by the analytics ingest pipeline; this service only queries it.
type EngagementStore struct {
	conn database.ClickHouseConn
}

// NewEngagementStore creates an engagement store over a ClickHouse connection.
func NewEngagementStore(conn database.ClickHouseConn) *EngagementStore {
	return &EngagementStore{conn: conn}
}

// NoEngagementHistory stands in when ClickHouse is not configured. Every
// query reports no history, so the analyzer serves its default slot tables.
type NoEngagementHistory struct{}

func (NoEngagementHistory) QueryEngagement(ctx context.Context, channel string, start, end time.Time) ([]models.EngagementRecord, error) {
	return nil, nil
}

// QueryEngagement returns engagement observations for a channel within the
// window, ordered by time.
func (s *EngagementStore) QueryEngagement(ctx context.Context, channel string, start, end time.Time) ([]models.EngagementRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT recorded_at, likes, shares, comments, clicks, impressions
		FROM engagement_events
		WHERE channel = ? AND recorded_at >= ? AND recorded_at < ?
		ORDER BY recorded_at`, channel, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query engagement for %s: %w", channel, err)
	}
	defer rows.Close()

	var records []models.EngagementRecord
	for rows.Next() {
		var rec models.EngagementRecord
		if err := rows.Scan(&rec.RecordedAt, &rec.Likes, &rec.Shares, &rec.Comments, &rec.Clicks, &rec.Impressions); err != nil {
			return nil, fmt.Errorf("failed to scan engagement record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
