package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"signalcast/api_scheduler/internal/delivery"
	"signalcast/api_scheduler/pkg/kafka"
	"signalcast/api_scheduler/pkg/logging"
	"signalcast/api_scheduler/pkg/models"
)

const emitTimeout = 10 * time.Second

// Notifier fans publish lifecycle events out to webhook consumers and, when a
// producer is configured, to the Kafka side channel. Emission is asynchronous
// so a slow consumer never blocks the publish pipeline.
type Notifier struct {
	engine   *delivery.Engine
	producer *kafka.Producer
	source   string
	logger   logging.Logger
}

// New creates a notifier. producer may be nil when Kafka is not configured.
func New(engine *delivery.Engine, producer *kafka.Producer, source string, logger logging.Logger) *Notifier {
	return &Notifier{
		engine:   engine,
		producer: producer,
		source:   source,
		logger:   logger,
	}
}

// PublishSucceeded announces a completed publish.
func (n *Notifier) PublishSucceeded(item *models.ContentItem) {
	n.emit(kafka.EventPublishSucceeded, item, "")
}

// PublishFailed announces a failed attempt that will be retried.
func (n *Notifier) PublishFailed(item *models.ContentItem, reason string) {
	n.emit(kafka.EventPublishFailed, item, reason)
}

// ItemDeadLettered announces an item that exhausted its publish attempts.
// Alerting hooks subscribe to this event.
func (n *Notifier) ItemDeadLettered(item *models.ContentItem, reason string) {
	n.emit(kafka.EventItemDeadLettered, item, reason)
}

// BatchScheduled announces a completed bulk scheduling run.
func (n *Notifier) BatchScheduled(ownerID string, count int) {
	event := &kafka.SchedulerEvent{
		EventID:   uuid.New().String(),
		EventType: kafka.EventBatchScheduled,
		Source:    n.source,
		OwnerID:   ownerID,
		Timestamp: time.Now().UTC(),
	}
	go n.dispatch(event)
}

func (n *Notifier) emit(eventType string, item *models.ContentItem, reason string) {
	event := &kafka.SchedulerEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Source:    n.source,
		ItemID:    item.ID,
		OwnerID:   item.OwnerID,
		Error:     reason,
		Timestamp: time.Now().UTC(),
	}
	if len(item.Channels) == 1 {
		event.Channel = item.Channels[0]
	}
	go n.dispatch(event)
}

func (n *Notifier) dispatch(event *kafka.SchedulerEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	if err := n.engine.Deliver(ctx, event.EventType, event); err != nil {
		n.logger.WithError(err).WithField("event_type", event.EventType).Warn("Webhook fan-out failed")
	}

	if n.producer != nil {
		if err := n.producer.PublishEvent(event); err != nil {
			n.logger.WithError(err).WithField("event_type", event.EventType).Warn("Kafka notification failed")
		}
	}
}
