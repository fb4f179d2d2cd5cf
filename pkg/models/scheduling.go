package models

import "time"

// TimeSlot is a (weekday, hour) candidate publish time derived from engagement
// history. Never persisted as ground truth; always reproducible from history.
type TimeSlot struct {
	DayOfWeek       time.Weekday `json:"day_of_week"`
	HourOfDay       int          `json:"hour_of_day"`
	EngagementScore float64      `json:"engagement_score"`
	Confidence      float64      `json:"confidence"`
}

// Conflict kinds
const (
	ConflictKindTiming   = "timing"
	ConflictKindTopic    = "topic"
	ConflictKindAudience = "audience"
)

// Conflict severities
const (
	ConflictSeverityLow    = "low"
	ConflictSeverityMedium = "medium"
	ConflictSeverityHigh   = "high"
)

// ConflictRecord is a detected scheduling collision between two content items.
// Ephemeral: produced per analysis run, not stored.
type ConflictRecord struct {
	ItemIDA             string `json:"item_id_a"`
	ItemIDB             string `json:"item_id_b"`
	Channel             string `json:"channel,omitempty"`
	Kind                string `json:"kind"`
	Severity            string `json:"severity"`
	SuggestedResolution string `json:"suggested_resolution"`
}

// Spacing strategies for bulk scheduling
const (
	SpacingOptimal = "optimal"
	SpacingEven    = "even"
)

// ScheduleOptions control how a bulk scheduling run assigns timestamps.
type ScheduleOptions struct {
	Spacing             string `json:"spacing"`
	CustomIntervalHours int    `json:"custom_interval_hours,omitempty"`
	Timezone            string `json:"timezone,omitempty"`
	AvoidWeekends       bool   `json:"avoid_weekends"`
	AvoidConflicts      bool   `json:"avoid_conflicts"`
}

// ScheduleAssignment is one (item, channel) publish timestamp produced by the
// bulk scheduler. Persisting assignments is the caller's job.
type ScheduleAssignment struct {
	ItemID      string    `json:"item_id"`
	Channel     string    `json:"channel"`
	ScheduledAt time.Time `json:"scheduled_at"`
}
