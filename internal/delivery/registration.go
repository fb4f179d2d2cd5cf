package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"signalcast/api_scheduler/pkg/models"
)

const (
	minDeliveryTimeout = 1 * time.Second
	maxDeliveryTimeout = 300 * time.Second

	defaultMaxRetries        = 3
	defaultInitialDelay      = 30 * time.Second
	defaultBackoffMultiplier = 2.0
	defaultDeliveryTimeout   = 30 * time.Second
)

var (
	ErrInvalidURL     = errors.New("webhook url must be an absolute http or https url")
	ErrNoEvents       = errors.New("webhook must subscribe to at least one event type")
	ErrInvalidTimeout = fmt.Errorf("webhook timeout must be between %s and %s", minDeliveryTimeout, maxDeliveryTimeout)
)

// ValidateRegistration checks a registration before it is persisted and fills
// in retry policy defaults for unset fields.
func ValidateRegistration(reg *models.WebhookRegistration) error {
	parsed, err := url.Parse(reg.URL)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ErrInvalidURL
	}
	if len(reg.Events) == 0 {
		return ErrNoEvents
	}

	if reg.Timeout == 0 {
		reg.Timeout = defaultDeliveryTimeout
	}
	if reg.Timeout < minDeliveryTimeout || reg.Timeout > maxDeliveryTimeout {
		return ErrInvalidTimeout
	}

	if reg.Retry.MaxRetries <= 0 {
		reg.Retry.MaxRetries = defaultMaxRetries
	}
	if reg.Retry.InitialDelay <= 0 {
		reg.Retry.InitialDelay = defaultInitialDelay
	}
	if reg.Retry.BackoffMultiplier <= 0 {
		reg.Retry.BackoffMultiplier = defaultBackoffMultiplier
	}
	return nil
}

// ActiveLister loads the active registration set from storage.
type ActiveLister interface {
	ListActive(ctx context.Context) ([]models.WebhookRegistration, error)
}

// Cache holds the active registration set so the hot delivery path does not
// hit storage on every event. Loaded lazily; writers must call Invalidate
// after any registration mutation.
type Cache struct {
	store ActiveLister

	mu     sync.RWMutex
	loaded bool
	regs   []models.WebhookRegistration
}

// NewCache creates an empty registration cache over the given store.
func NewCache(store ActiveLister) *Cache {
	return &Cache{store: store}
}

// Active returns the cached active registrations, loading from storage on
// first use or after invalidation.
func (c *Cache) Active(ctx context.Context) ([]models.WebhookRegistration, error) {
	c.mu.RLock()
	if c.loaded {
		regs := c.regs
		c.mu.RUnlock()
		return regs, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.regs, nil
	}

	regs, err := c.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook registrations: %w", err)
	}
	c.regs = regs
	c.loaded = true
	return regs, nil
}

// Invalidate drops the cached set; the next Active call reloads it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.regs = nil
	c.mu.Unlock()
}

// subscribed reports whether the registration listens for the event type.
// A "*" subscription matches every event.
func subscribed(reg *models.WebhookRegistration, eventType string) bool {
	for _, ev := range reg.Events {
		if ev == eventType || ev == "*" {
			return true
		}
	}
	return false
}
