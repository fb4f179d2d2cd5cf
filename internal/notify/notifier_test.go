package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"signalcast/api_scheduler/internal/delivery"
	"signalcast/api_scheduler/pkg/kafka"
	"signalcast/api_scheduler/pkg/models"
)

type nullDeliveryStore struct{}

func (nullDeliveryStore) InsertDelivery(ctx context.Context, rec *models.DeliveryRecord) error {
	return nil
}

func (nullDeliveryStore) UpdateDelivery(ctx context.Context, rec *models.DeliveryRecord) error {
	return nil
}

type staticLister struct {
	regs []models.WebhookRegistration
}

func (l *staticLister) ListActive(ctx context.Context) ([]models.WebhookRegistration, error) {
	return l.regs, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// newTestNotifier wires a notifier to a real delivery engine pointed at url,
// with no Kafka producer configured.
func newTestNotifier(url string, events ...string) *Notifier {
	lister := &staticLister{regs: []models.WebhookRegistration{{
		ID:      "reg-1",
		URL:     url,
		Secret:  "topsecret",
		Events:  models.StringSlice(events),
		Retry:   models.RetryPolicy{MaxRetries: 1, InitialDelay: time.Second, BackoffMultiplier: 2.0},
		Timeout: 5 * time.Second,
		Active:  true,
	}}}
	engine := delivery.NewEngine(nullDeliveryStore{}, delivery.NewCache(lister), nil, quietLogger())
	return New(engine, nil, "helmsman", quietLogger())
}

func waitForBody(t *testing.T, mu *sync.Mutex, body *[]byte) []byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := *body
		mu.Unlock()
		if got != nil {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for webhook fan-out")
	return nil
}

func TestPublishSucceededFansOutToWebhooks(t *testing.T) {
	var mu sync.Mutex
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = raw
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL, kafka.EventPublishSucceeded)
	n.PublishSucceeded(&models.ContentItem{
		ID:       "item-1",
		OwnerID:  "user-1",
		Channels: models.StringSlice{"twitter"},
	})

	var event kafka.SchedulerEvent
	if err := json.Unmarshal(waitForBody(t, &mu, &body), &event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.EventType != kafka.EventPublishSucceeded {
		t.Fatalf("expected %s, got %s", kafka.EventPublishSucceeded, event.EventType)
	}
	if event.ItemID != "item-1" || event.OwnerID != "user-1" {
		t.Fatalf("unexpected identifiers: item=%q owner=%q", event.ItemID, event.OwnerID)
	}
	if event.Source != "helmsman" {
		t.Fatalf("expected source helmsman, got %q", event.Source)
	}
	// Single-channel items carry the channel on the event.
	if event.Channel != "twitter" {
		t.Fatalf("expected channel twitter, got %q", event.Channel)
	}
	if event.EventID == "" {
		t.Fatal("expected event id set")
	}
}

func TestDeadLetterEventCarriesReason(t *testing.T) {
	var mu sync.Mutex
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = raw
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL, kafka.EventItemDeadLettered)
	n.ItemDeadLettered(&models.ContentItem{
		ID:       "item-2",
		OwnerID:  "user-1",
		Channels: models.StringSlice{"twitter", "linkedin"},
	}, "adapter unreachable")

	var event kafka.SchedulerEvent
	if err := json.Unmarshal(waitForBody(t, &mu, &body), &event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.EventType != kafka.EventItemDeadLettered {
		t.Fatalf("expected %s, got %s", kafka.EventItemDeadLettered, event.EventType)
	}
	if event.Error != "adapter unreachable" {
		t.Fatalf("expected failure reason on event, got %q", event.Error)
	}
	// Multi-channel items leave the channel field empty.
	if event.Channel != "" {
		t.Fatalf("expected no channel for multi-channel item, got %q", event.Channel)
	}
}
