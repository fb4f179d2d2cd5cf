package models

import (
	"encoding/json"
	"time"
)

// RetryPolicy controls webhook delivery retries. MaxRetries is the total
// attempt budget including the first attempt; delays are derived as
// initialDelay * backoffMultiplier^(attempt-1).
type RetryPolicy struct {
	MaxRetries        int           `json:"max_retries"`
	InitialDelay      time.Duration `json:"initial_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// WebhookRegistration is an external endpoint subscribed to scheduler events.
type WebhookRegistration struct {
	ID        string            `json:"id" db:"id"`
	URL       string            `json:"url" db:"url"`
	Secret    string            `json:"-" db:"secret"`
	Events    StringSlice       `json:"events" db:"events"`
	Retry     RetryPolicy       `json:"retry_policy" db:"retry_policy"`
	Headers   map[string]string `json:"headers,omitempty" db:"headers"`
	Timeout   time.Duration     `json:"timeout" db:"timeout"`
	Active    bool              `json:"active" db:"active"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// Delivery lifecycle states
const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusDelivering = "delivering"
	DeliveryStatusDelivered  = "delivered"
	DeliveryStatusFailed     = "failed"
)

// DeliveryRecord tracks one webhook delivery through its attempts. Retained
// for audit and statistics; the delivery id is the consumer-facing dedupe key.
type DeliveryRecord struct {
	ID              string            `json:"id" db:"id"`
	RegistrationID  string            `json:"registration_id" db:"registration_id"`
	EventType       string            `json:"event_type" db:"event_type"`
	Payload         json.RawMessage   `json:"payload" db:"payload"`
	Status          string            `json:"status" db:"status"`
	Attempts        int               `json:"attempts" db:"attempts"`
	MaxAttempts     int               `json:"max_attempts" db:"max_attempts"`
	NextRetryAt     *time.Time        `json:"next_retry_at,omitempty" db:"next_retry_at"`
	ResponseStatus  int               `json:"response_status,omitempty" db:"response_status"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty" db:"response_headers"`
	Error           string            `json:"error,omitempty" db:"error"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
	DeliveredAt     *time.Time        `json:"delivered_at,omitempty" db:"delivered_at"`
}

// DeliveryStats summarizes a registration's delivery history.
type DeliveryStats struct {
	RegistrationID string `json:"registration_id"`
	Total          int    `json:"total"`
	Delivered      int    `json:"delivered"`
	Failed         int    `json:"failed"`
	Pending        int    `json:"pending"`
}
