package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signalcast/api_scheduler/internal/lifecycle"
	"signalcast/api_scheduler/pkg/models"
)

type memoryContentStore struct {
	mu     sync.Mutex
	items  map[string]*models.ContentItem
	posted []string
	failed []string
}

func newMemoryContentStore(items ...*models.ContentItem) *memoryContentStore {
	s := &memoryContentStore{items: make(map[string]*models.ContentItem)}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

func (s *memoryContentStore) ListDue(ctx context.Context, now time.Time, limit int) ([]models.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.ContentItem
	for _, item := range s.items {
		if item.Status == models.ContentStatusScheduled && item.ScheduledAt != nil && !item.ScheduledAt.After(now) {
			due = append(due, *item)
		}
	}
	return due, nil
}

func (s *memoryContentStore) ClaimForPublish(ctx context.Context, id string) (*models.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.Status != models.ContentStatusScheduled {
		return nil, lifecycle.ErrAlreadyClaimed
	}
	item.Status = models.ContentStatusPosting
	copied := *item
	return &copied, nil
}

func (s *memoryContentStore) MarkPosted(ctx context.Context, id string, postedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id].Status = models.ContentStatusPosted
	s.posted = append(s.posted, id)
	return nil
}

func (s *memoryContentStore) ReturnToScheduled(ctx context.Context, id string, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id].Status = models.ContentStatusScheduled
	s.items[id].PublishAttempts = attempts
	return nil
}

func (s *memoryContentStore) MarkFailed(ctx context.Context, id string, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id].Status = models.ContentStatusFailed
	s.failed = append(s.failed, id)
	return nil
}

type scriptedPublisher struct {
	mu      sync.Mutex
	failIDs map[string]bool
	calls   int
}

func (p *scriptedPublisher) Publish(ctx context.Context, item *models.ContentItem, channel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failIDs[item.ID] {
		return errors.New("adapter unavailable")
	}
	return nil
}

type silentNotifier struct{}

func (silentNotifier) PublishSucceeded(item *models.ContentItem)                {}
func (silentNotifier) PublishFailed(item *models.ContentItem, reason string)    {}
func (silentNotifier) ItemDeadLettered(item *models.ContentItem, reason string) {}

func scheduledItem(id string, at time.Time) *models.ContentItem {
	return &models.ContentItem{
		ID:          id,
		OwnerID:     "owner-1",
		Status:      models.ContentStatusScheduled,
		Channels:    models.StringSlice{"twitter"},
		ScheduledAt: &at,
	}
}

func newTestDispatcher(store *memoryContentStore, pub *scriptedPublisher) *PollingDispatcher {
	machine := lifecycle.New(store, pub, silentNotifier{}, lifecycle.Config{MaxAttempts: 5}, testLogger())
	return NewPollingDispatcher(store, machine, DispatcherConfig{Interval: time.Hour}, nil, testLogger())
}

func TestTriggerCheckPublishesDueItems(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	store := newMemoryContentStore(
		scheduledItem("due-1", past),
		scheduledItem("due-2", past),
		scheduledItem("later", future),
	)
	pub := &scriptedPublisher{}
	d := newTestDispatcher(store, pub)

	published, failed := d.TriggerCheck(context.Background())
	if published != 2 || failed != 0 {
		t.Fatalf("expected 2 published / 0 failed, got %d / %d", published, failed)
	}
	if len(store.posted) != 2 {
		t.Fatalf("expected 2 posted items, got %v", store.posted)
	}
	if store.items["later"].Status != models.ContentStatusScheduled {
		t.Fatalf("expected future item untouched, got %s", store.items["later"].Status)
	}
}

func TestTriggerCheckIsolatesFailures(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	store := newMemoryContentStore(
		scheduledItem("bad", past),
		scheduledItem("good", past),
	)
	pub := &scriptedPublisher{failIDs: map[string]bool{"bad": true}}
	d := newTestDispatcher(store, pub)

	published, failed := d.TriggerCheck(context.Background())
	if published != 1 || failed != 1 {
		t.Fatalf("expected 1 published / 1 failed, got %d / %d", published, failed)
	}
	if store.items["good"].Status != models.ContentStatusPosted {
		t.Fatalf("expected good item posted, got %s", store.items["good"].Status)
	}
	if store.items["bad"].Status != models.ContentStatusScheduled {
		t.Fatalf("expected failed item back in scheduled, got %s", store.items["bad"].Status)
	}
	if store.items["bad"].PublishAttempts != 1 {
		t.Fatalf("expected 1 recorded attempt, got %d", store.items["bad"].PublishAttempts)
	}
}

func TestDispatcherStartRunsImmediately(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	store := newMemoryContentStore(scheduledItem("due-1", past))
	d := newTestDispatcher(store, &scriptedPublisher{})

	d.Start(context.Background())
	defer d.Stop()

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		posted := len(store.posted)
		store.mu.Unlock()
		if posted == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("due item was not published by the initial check")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDispatcherStopIsIdempotent(t *testing.T) {
	store := newMemoryContentStore()
	d := newTestDispatcher(store, &scriptedPublisher{})

	// Stopping a never-started dispatcher must not panic or hang.
	d.Stop()

	d.Start(context.Background())
	if !d.IsRunning() {
		t.Fatal("expected dispatcher running after Start")
	}

	d.Stop()
	d.Stop()
	if d.IsRunning() {
		t.Fatal("expected dispatcher stopped")
	}

	// Restart after stop works.
	d.Start(context.Background())
	if !d.IsRunning() {
		t.Fatal("expected dispatcher running after restart")
	}
	d.Stop()
}
