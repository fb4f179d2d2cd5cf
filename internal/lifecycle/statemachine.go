package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signalcast/api_scheduler/pkg/logging"
	"signalcast/api_scheduler/pkg/models"
)

var (
	// ErrMissingOwner is returned when an item has no owner identity; the
	// transition is refused and the item is left untouched.
	ErrMissingOwner = errors.New("content item has no owner identity")

	// ErrNotDue is returned when a scheduled item's publish time has not
	// arrived yet.
	ErrNotDue = errors.New("content item is not due for publishing")

	// ErrAlreadyClaimed is returned when the conditional claim finds the item
	// no longer in the scheduled state (another dispatcher won, or the item
	// moved on).
	ErrAlreadyClaimed = errors.New("content item already claimed")
)

// ContentStore is the storage collaborator for publish transitions. The claim
// must be a conditional update (status=scheduled -> posting) so concurrent
// dispatchers cannot both win it.
type ContentStore interface {
	ClaimForPublish(ctx context.Context, id string) (*models.ContentItem, error)
	MarkPosted(ctx context.Context, id string, postedAt time.Time) error
	ReturnToScheduled(ctx context.Context, id string, attempts int, lastError string) error
	MarkFailed(ctx context.Context, id string, lastError string) error
}

// Publisher is the external publish collaborator: one opaque call per
// (item, channel) that succeeds or fails.
type Publisher interface {
	Publish(ctx context.Context, item *models.ContentItem, channel string) error
}

// Notifier is the fire-and-forget local notification side channel. It must
// never block the publish pipeline.
type Notifier interface {
	PublishSucceeded(item *models.ContentItem)
	PublishFailed(item *models.ContentItem, reason string)
	ItemDeadLettered(item *models.ContentItem, reason string)
}

// StateMachine drives a content item through
// scheduled -> posting -> {posted | scheduled | failed}. The posting status is
// written before any external call so a crash is observable rather than
// silently double-published.
type StateMachine struct {
	store       ContentStore
	publisher   Publisher
	notifier    Notifier
	logger      logging.Logger
	maxAttempts int
	now         func() time.Time
}

// Config holds state machine tunables.
type Config struct {
	// MaxAttempts bounds publish retries; once exhausted the item moves to the
	// terminal failed state instead of hot-looping every tick.
	MaxAttempts int
}

// New creates a publish state machine.
func New(store ContentStore, publisher Publisher, notifier Notifier, cfg Config, logger logging.Logger) *StateMachine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &StateMachine{
		store:       store,
		publisher:   publisher,
		notifier:    notifier,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
	}
}

// Publish executes the full transition chain for one due item. On return the
// item is never left in posting: it is posted, rescheduled for the next tick,
// or dead-lettered as failed.
func (sm *StateMachine) Publish(ctx context.Context, item *models.ContentItem) error {
	if item.OwnerID == "" {
		return fmt.Errorf("refusing transition for item %s: %w", item.ID, ErrMissingOwner)
	}
	if item.ScheduledAt == nil || item.ScheduledAt.After(sm.now()) {
		return fmt.Errorf("item %s: %w", item.ID, ErrNotDue)
	}

	// Optimistic lock: claim must land in storage before any external call.
	claimed, err := sm.store.ClaimForPublish(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to claim item %s: %w", item.ID, err)
	}

	if publishErr := sm.publishAllChannels(ctx, claimed); publishErr != nil {
		return sm.handleFailure(ctx, claimed, publishErr)
	}

	postedAt := sm.now()
	if err := sm.store.MarkPosted(ctx, claimed.ID, postedAt); err != nil {
		return fmt.Errorf("failed to mark item %s posted: %w", claimed.ID, err)
	}
	claimed.Status = models.ContentStatusPosted
	claimed.PostedAt = &postedAt

	sm.logger.WithFields(logging.Fields{
		"item_id":  claimed.ID,
		"owner_id": claimed.OwnerID,
		"channels": len(claimed.Channels),
	}).Info("Content item published")

	sm.notifier.PublishSucceeded(claimed)
	return nil
}

func (sm *StateMachine) publishAllChannels(ctx context.Context, item *models.ContentItem) error {
	for _, channel := range item.Channels {
		if err := sm.publisher.Publish(ctx, item, channel); err != nil {
			return fmt.Errorf("publish to %s failed: %w", channel, err)
		}
	}
	return nil
}

// handleFailure reverts the claim. Attempts below the cap go back to
// scheduled and are retried on a later tick; exhausted items are
// dead-lettered into the terminal failed state with an alert.
func (sm *StateMachine) handleFailure(ctx context.Context, item *models.ContentItem, publishErr error) error {
	attempts := item.PublishAttempts + 1

	if attempts >= sm.maxAttempts {
		if err := sm.store.MarkFailed(ctx, item.ID, publishErr.Error()); err != nil {
			return fmt.Errorf("failed to dead-letter item %s: %w", item.ID, err)
		}
		sm.logger.WithError(publishErr).WithFields(logging.Fields{
			"item_id":  item.ID,
			"attempts": attempts,
		}).Error("Content item dead-lettered after exhausting publish attempts")
		sm.notifier.ItemDeadLettered(item, publishErr.Error())
		return fmt.Errorf("item %s dead-lettered: %w", item.ID, publishErr)
	}

	if err := sm.store.ReturnToScheduled(ctx, item.ID, attempts, publishErr.Error()); err != nil {
		return fmt.Errorf("failed to reschedule item %s: %w", item.ID, err)
	}
	sm.logger.WithError(publishErr).WithFields(logging.Fields{
		"item_id":  item.ID,
		"attempts": attempts,
	}).Warn("Publish failed, item returned to scheduled")
	sm.notifier.PublishFailed(item, publishErr.Error())
	return fmt.Errorf("publish failed for item %s: %w", item.ID, publishErr)
}
