package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/google/uuid"

	"signalcast/api_scheduler/pkg/clients"
	"signalcast/api_scheduler/pkg/logging"
	"signalcast/api_scheduler/pkg/models"
)

// Delivery request headers. The signature covers the raw body; the delivery id
// doubles as the consumer-side dedupe key.
const (
	HeaderEvent      = "X-Webhook-Event"
	HeaderSignature  = "X-Webhook-Signature"
	HeaderDeliveryID = "X-Webhook-Delivery-ID"
	HeaderTimestamp  = "X-Webhook-Timestamp"
)

const responseHeaderCap = 10

// DeliveryStore persists delivery records across attempts.
type DeliveryStore interface {
	InsertDelivery(ctx context.Context, rec *models.DeliveryRecord) error
	UpdateDelivery(ctx context.Context, rec *models.DeliveryRecord) error
}

// EngineMetrics receives delivery outcome counts. Optional.
type EngineMetrics interface {
	ObserveDelivery(status string, elapsed time.Duration)
}

// Engine fans scheduler events out to registered webhook endpoints, signing
// each request and tracking per-delivery retry state in storage. Retry timing
// lives on the delivery record so backoff survives restarts; a per-endpoint
// circuit breaker sheds load from endpoints that are hard down.
type Engine struct {
	store      DeliveryStore
	cache      *Cache
	httpClient *http.Client
	logger     logging.Logger
	metrics    EngineMetrics
	now        func() time.Time

	breakerMu sync.Mutex
	breakers  map[string]*clients.CircuitBreaker
}

// NewEngine creates a delivery engine.
func NewEngine(store DeliveryStore, cache *Cache, metrics EngineMetrics, logger logging.Logger) *Engine {
	return &Engine{
		store: store,
		cache: cache,
		httpClient: &http.Client{
			// Per-attempt deadlines come from each registration's timeout;
			// this is the hard ceiling.
			Timeout: maxDeliveryTimeout,
		},
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		breakers: make(map[string]*clients.CircuitBreaker),
	}
}

// Deliver fans one event out to every active registration subscribed to its
// type. Each target gets its own delivery record and an immediate first
// attempt; failures are left for the reconciler to retry.
func (e *Engine) Deliver(ctx context.Context, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	regs, err := e.cache.Active(ctx)
	if err != nil {
		return err
	}

	for i := range regs {
		reg := &regs[i]
		if !subscribed(reg, eventType) {
			continue
		}

		rec := &models.DeliveryRecord{
			ID:             uuid.New().String(),
			RegistrationID: reg.ID,
			EventType:      eventType,
			Payload:        body,
			Status:         models.DeliveryStatusPending,
			MaxAttempts:    reg.Retry.MaxRetries,
			CreatedAt:      e.now(),
		}
		if err := e.store.InsertDelivery(ctx, rec); err != nil {
			e.logger.WithError(err).WithField("registration_id", reg.ID).Error("Failed to record webhook delivery")
			continue
		}

		if err := e.Attempt(ctx, rec, reg); err != nil {
			e.logger.WithError(err).WithFields(logging.Fields{
				"delivery_id":     rec.ID,
				"registration_id": reg.ID,
				"event_type":      eventType,
			}).Warn("Webhook delivery attempt failed")
		}
	}
	return nil
}

// Attempt executes one delivery attempt and persists the outcome. A 2xx
// response completes the delivery; 429, 5xx, and transport errors schedule a
// backed-off retry until attempts run out; any other status fails immediately
// since retrying a rejected request cannot succeed.
func (e *Engine) Attempt(ctx context.Context, rec *models.DeliveryRecord, reg *models.WebhookRegistration) error {
	started := e.now()

	rec.Status = models.DeliveryStatusDelivering
	rec.Attempts++
	rec.NextRetryAt = nil
	if err := e.store.UpdateDelivery(ctx, rec); err != nil {
		return fmt.Errorf("failed to mark delivery %s in flight: %w", rec.ID, err)
	}

	resp, err := e.post(ctx, rec, reg)
	if err == nil {
		rec.ResponseStatus = resp.StatusCode
		rec.ResponseHeaders = captureHeaders(resp.Header)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	switch {
	case err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300:
		now := e.now()
		rec.Status = models.DeliveryStatusDelivered
		rec.Error = ""
		rec.DeliveredAt = &now
	case clients.DefaultShouldRetry(resp, err):
		e.scheduleRetry(rec, reg, resp, err)
	default:
		// Non-retryable rejection.
		rec.Status = models.DeliveryStatusFailed
		rec.Error = fmt.Sprintf("endpoint rejected delivery with status %d", resp.StatusCode)
	}

	if updateErr := e.store.UpdateDelivery(ctx, rec); updateErr != nil {
		return fmt.Errorf("failed to persist delivery %s outcome: %w", rec.ID, updateErr)
	}

	if e.metrics != nil {
		e.metrics.ObserveDelivery(rec.Status, e.now().Sub(started))
	}

	if rec.Status == models.DeliveryStatusDelivered {
		return nil
	}
	if rec.Error != "" {
		return fmt.Errorf("delivery %s: %s", rec.ID, rec.Error)
	}
	return fmt.Errorf("delivery %s failed", rec.ID)
}

func (e *Engine) post(ctx context.Context, rec *models.DeliveryRecord, reg *models.WebhookRegistration) (*http.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, reg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, reg.URL, bytes.NewReader(rec.Payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, rec.EventType)
	req.Header.Set(HeaderSignature, Sign(rec.Payload, reg.Secret))
	req.Header.Set(HeaderDeliveryID, rec.ID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(e.now().Unix(), 10))
	for k, v := range reg.Headers {
		req.Header.Set(k, v)
	}

	breaker := e.breakerFor(reg.ID)
	resp, execErr := breaker.Execute(func() (any, error) {
		r, doErr := e.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 {
			// Feed 5xx to the breaker without consuming the body twice.
			return r, fmt.Errorf("endpoint returned status %d", r.StatusCode)
		}
		return r, nil
	})

	if r, ok := resp.(*http.Response); ok {
		return r, nil
	}
	return nil, execErr
}

// scheduleRetry computes the next attempt time from the registration's backoff
// policy, or marks the delivery failed once attempts are exhausted.
func (e *Engine) scheduleRetry(rec *models.DeliveryRecord, reg *models.WebhookRegistration, resp *http.Response, attemptErr error) {
	reason := "request failed"
	switch {
	case errors.Is(attemptErr, circuitbreaker.ErrOpen):
		reason = "endpoint circuit open"
	case attemptErr != nil:
		reason = attemptErr.Error()
	case resp != nil:
		reason = fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	}
	rec.Error = reason

	if rec.Attempts >= rec.MaxAttempts {
		rec.Status = models.DeliveryStatusFailed
		return
	}

	initial := reg.Retry.InitialDelay
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	multiplier := reg.Retry.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = defaultBackoffMultiplier
	}

	// First retry waits the initial delay; each further retry multiplies it.
	delay := time.Duration(float64(initial) * math.Pow(multiplier, float64(rec.Attempts-1)))
	next := e.now().Add(delay)
	rec.Status = models.DeliveryStatusPending
	rec.NextRetryAt = &next
}

func (e *Engine) breakerFor(registrationID string) *clients.CircuitBreaker {
	e.breakerMu.Lock()
	defer e.breakerMu.Unlock()

	if cb, ok := e.breakers[registrationID]; ok {
		return cb
	}
	cb := clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
		Name:   "webhook-" + registrationID,
		Logger: e.logger,
	})
	e.breakers[registrationID] = cb
	return cb
}

func captureHeaders(h http.Header) map[string]string {
	out := make(map[string]string, responseHeaderCap)
	for k, v := range h {
		if len(out) >= responseHeaderCap {
			break
		}
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
