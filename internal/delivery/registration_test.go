package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"signalcast/api_scheduler/pkg/models"
)

func validRegistration() *models.WebhookRegistration {
	return &models.WebhookRegistration{
		URL:    "https://consumer.example.com/hooks",
		Secret: "s3cret",
		Events: models.StringSlice{"publish.succeeded"},
	}
}

func TestValidateRegistrationDefaults(t *testing.T) {
	reg := validRegistration()
	if err := ValidateRegistration(reg); err != nil {
		t.Fatalf("expected valid registration, got %v", err)
	}
	if reg.Timeout != 30*time.Second {
		t.Fatalf("expected default timeout, got %v", reg.Timeout)
	}
	if reg.Retry.MaxRetries != 3 || reg.Retry.BackoffMultiplier != 2.0 {
		t.Fatalf("expected default retry policy, got %+v", reg.Retry)
	}
	if reg.Retry.InitialDelay != 30*time.Second {
		t.Fatalf("expected default initial delay, got %v", reg.Retry.InitialDelay)
	}
}

func TestValidateRegistrationRejectsBadURL(t *testing.T) {
	for _, url := range []string{"", "not-a-url", "ftp://host/path", "/relative/path", "http://"} {
		reg := validRegistration()
		reg.URL = url
		if err := ValidateRegistration(reg); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("url %q: expected ErrInvalidURL, got %v", url, err)
		}
	}
}

func TestValidateRegistrationRejectsNoEvents(t *testing.T) {
	reg := validRegistration()
	reg.Events = nil
	if err := ValidateRegistration(reg); !errors.Is(err, ErrNoEvents) {
		t.Fatalf("expected ErrNoEvents, got %v", err)
	}
}

func TestValidateRegistrationTimeoutBounds(t *testing.T) {
	reg := validRegistration()
	reg.Timeout = 500 * time.Millisecond
	if err := ValidateRegistration(reg); !errors.Is(err, ErrInvalidTimeout) {
		t.Fatalf("expected ErrInvalidTimeout below floor, got %v", err)
	}

	reg = validRegistration()
	reg.Timeout = 301 * time.Second
	if err := ValidateRegistration(reg); !errors.Is(err, ErrInvalidTimeout) {
		t.Fatalf("expected ErrInvalidTimeout above ceiling, got %v", err)
	}

	reg = validRegistration()
	reg.Timeout = 5 * time.Second
	if err := ValidateRegistration(reg); err != nil {
		t.Fatalf("expected 5s timeout accepted, got %v", err)
	}
}

type countingLister struct {
	loads int
	regs  []models.WebhookRegistration
}

func (l *countingLister) ListActive(ctx context.Context) ([]models.WebhookRegistration, error) {
	l.loads++
	return l.regs, nil
}

func TestCacheLoadsOnceUntilInvalidated(t *testing.T) {
	lister := &countingLister{regs: []models.WebhookRegistration{*validRegistration()}}
	cache := NewCache(lister)

	for i := 0; i < 3; i++ {
		regs, err := cache.Active(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(regs) != 1 {
			t.Fatalf("expected 1 registration, got %d", len(regs))
		}
	}
	if lister.loads != 1 {
		t.Fatalf("expected single storage load, got %d", lister.loads)
	}

	cache.Invalidate()
	if _, err := cache.Active(context.Background()); err != nil {
		t.Fatalf("unexpected error after invalidation: %v", err)
	}
	if lister.loads != 2 {
		t.Fatalf("expected reload after invalidation, got %d loads", lister.loads)
	}
}

func TestSubscribedMatchesWildcard(t *testing.T) {
	reg := validRegistration()
	if !subscribed(reg, "publish.succeeded") {
		t.Fatal("expected exact event match")
	}
	if subscribed(reg, "publish.failed") {
		t.Fatal("expected unsubscribed event rejected")
	}

	reg.Events = models.StringSlice{"*"}
	if !subscribed(reg, "item.dead_lettered") {
		t.Fatal("expected wildcard subscription to match")
	}
}
