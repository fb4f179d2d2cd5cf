package kafka

import "time"

// Scheduler event types emitted on the notification side channel.
const (
	EventPublishSucceeded = "publish.succeeded"
	EventPublishFailed    = "publish.failed"
	EventItemDeadLettered = "item.dead_lettered"
	EventBatchScheduled   = "batch.scheduled"
)

// SchedulerEvent is the envelope for publish lifecycle notifications.
// Consumers treat EventID as the dedupe key, not arrival order.
type SchedulerEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Source    string    `json:"source"`
	ItemID    string    `json:"item_id,omitempty"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
