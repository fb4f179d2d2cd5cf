package handlers

import (
	"time"

	"signalcast/api_scheduler/pkg/models"
)

// BulkScheduleRequest asks for publish times across a batch of content items.
type BulkScheduleRequest struct {
	ItemIDs             []string  `json:"item_ids" binding:"required"`
	Channels            []string  `json:"channels" binding:"required"`
	StartAt             time.Time `json:"start_at"`
	Spacing             string    `json:"spacing"`
	CustomIntervalHours int       `json:"custom_interval_hours"`
	Timezone            string    `json:"timezone"`
	AvoidWeekends       bool      `json:"avoid_weekends"`
	AvoidConflicts      bool      `json:"avoid_conflicts"`
}

// BulkScheduleResponse carries the computed assignments plus any conflicts
// remaining after resolution.
type BulkScheduleResponse struct {
	Assignments []models.ScheduleAssignment `json:"assignments"`
	Conflicts   []models.ConflictRecord     `json:"conflicts,omitempty"`
	Suggestions []string                    `json:"suggestions,omitempty"`
}

// ConflictAnalysisRequest asks for a conflict report over existing items.
type ConflictAnalysisRequest struct {
	ItemIDs []string `json:"item_ids" binding:"required"`
}

// ConflictAnalysisResponse is the detector's report.
type ConflictAnalysisResponse struct {
	Conflicts   []models.ConflictRecord `json:"conflicts"`
	Suggestions []string                `json:"suggestions"`
}

// WebhookRequest is the create/update body for a webhook registration.
// Durations are accepted in milliseconds.
type WebhookRequest struct {
	URL               string            `json:"url" binding:"required"`
	Secret            string            `json:"secret"`
	Events            []string          `json:"events" binding:"required"`
	MaxRetries        int               `json:"max_retries"`
	InitialDelayMS    int64             `json:"initial_delay_ms"`
	BackoffMultiplier float64           `json:"backoff_multiplier"`
	TimeoutMS         int64             `json:"timeout_ms"`
	Headers           map[string]string `json:"headers"`
	Active            *bool             `json:"active"`
}

func (r *WebhookRequest) toRegistration() *models.WebhookRegistration {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return &models.WebhookRegistration{
		URL:    r.URL,
		Secret: r.Secret,
		Events: models.StringSlice(r.Events),
		Retry: models.RetryPolicy{
			MaxRetries:        r.MaxRetries,
			InitialDelay:      time.Duration(r.InitialDelayMS) * time.Millisecond,
			BackoffMultiplier: r.BackoffMultiplier,
		},
		Timeout: time.Duration(r.TimeoutMS) * time.Millisecond,
		Headers: r.Headers,
		Active:  active,
	}
}
