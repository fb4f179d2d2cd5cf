package models

import "time"

// EngagementRecord is one historical engagement observation for a channel,
// sourced from the analytics store.
type EngagementRecord struct {
	RecordedAt  time.Time `json:"recorded_at"`
	Likes       int64     `json:"likes"`
	Shares      int64     `json:"shares"`
	Comments    int64     `json:"comments"`
	Clicks      int64     `json:"clicks"`
	Impressions int64     `json:"impressions"`
}

// TotalEngagement sums the absolute engagement signals of a record.
func (r EngagementRecord) TotalEngagement() int64 {
	return r.Likes + r.Shares + r.Comments + r.Clicks
}
