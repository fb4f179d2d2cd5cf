package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// JSONB is a custom type for handling JSONB fields
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// StringSlice is a custom type for text[] / JSON array columns
type StringSlice []string

// Value implements the driver.Valuer interface for StringSlice
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for StringSlice
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, s)
}

// Content item lifecycle states
const (
	ContentStatusDraft     = "draft"
	ContentStatusScheduled = "scheduled"
	ContentStatusPosting   = "posting"
	ContentStatusPosted    = "posted"
	ContentStatusFailed    = "failed"
)

// ContentItem represents a unit of content with per-channel payloads and a
// publish lifecycle. The `posting` status is a transient claim held by exactly
// one dispatcher while the external publish call is in flight.
type ContentItem struct {
	ID                string     `json:"id" db:"id"`
	OwnerID           string     `json:"owner_id" db:"owner_id"`
	Topic             string     `json:"topic" db:"topic"`
	AudienceSegmentID *string    `json:"audience_segment_id,omitempty" db:"audience_segment_id"`
	Payloads          JSONB      `json:"payloads" db:"payloads"`
	Channels          StringSlice `json:"channels" db:"channels"`
	Status            string     `json:"status" db:"status"`
	PublishAttempts   int        `json:"publish_attempts" db:"publish_attempts"`
	ScheduledAt       *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	PostedAt          *time.Time `json:"posted_at,omitempty" db:"posted_at"`
	LastError         string     `json:"last_error,omitempty" db:"last_error"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}
