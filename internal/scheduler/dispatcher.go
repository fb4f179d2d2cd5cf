package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"signalcast/api_scheduler/internal/lifecycle"
	"signalcast/api_scheduler/pkg/logging"
	"signalcast/api_scheduler/pkg/models"
)

// DueLister returns items whose publish time has arrived.
type DueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.ContentItem, error)
}

// DispatcherConfig holds polling dispatcher tunables.
type DispatcherConfig struct {
	// Interval between due-item checks. Defaults to one minute.
	Interval time.Duration

	// BatchLimit caps items pulled per tick.
	BatchLimit int
}

// DispatcherMetrics receives per-tick outcome counts. Nil-safe via the
// dispatcher, which skips reporting when unset.
type DispatcherMetrics interface {
	ObserveDispatch(published, failed int, elapsed time.Duration)
}

// PollingDispatcher periodically scans for due content items and hands each
// one to the publish state machine. Items are processed sequentially within a
// tick; one item's failure never aborts the rest of the batch.
type PollingDispatcher struct {
	store    DueLister
	machine  *lifecycle.StateMachine
	logger   logging.Logger
	interval time.Duration
	limit    int
	metrics  DispatcherMetrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPollingDispatcher creates a dispatcher. Start must be called to begin
// polling.
func NewPollingDispatcher(store DueLister, machine *lifecycle.StateMachine, cfg DispatcherConfig, metrics DispatcherMetrics, logger logging.Logger) *PollingDispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	return &PollingDispatcher{
		store:    store,
		machine:  machine,
		logger:   logger,
		interval: cfg.Interval,
		limit:    cfg.BatchLimit,
		metrics:  metrics,
	}
}

// Start launches the polling loop. The first check runs immediately rather
// than waiting a full interval. Calling Start on a running dispatcher is a
// no-op.
func (pd *PollingDispatcher) Start(ctx context.Context) {
	pd.mu.Lock()
	if pd.running {
		pd.mu.Unlock()
		return
	}
	pd.running = true
	pd.stopCh = make(chan struct{})
	pd.doneCh = make(chan struct{})
	stopCh, doneCh := pd.stopCh, pd.doneCh
	pd.mu.Unlock()

	pd.logger.WithField("interval", pd.interval.String()).Info("Polling dispatcher started")

	go func() {
		defer close(doneCh)

		pd.runCheck(ctx)

		ticker := time.NewTicker(pd.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				pd.runCheck(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts polling and waits for an in-flight tick to finish. Safe to call
// multiple times and on a dispatcher that was never started.
func (pd *PollingDispatcher) Stop() {
	pd.mu.Lock()
	if !pd.running {
		pd.mu.Unlock()
		return
	}
	pd.running = false
	close(pd.stopCh)
	doneCh := pd.doneCh
	pd.mu.Unlock()

	<-doneCh
	pd.logger.Info("Polling dispatcher stopped")
}

// IsRunning reports whether the polling loop is active.
func (pd *PollingDispatcher) IsRunning() bool {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return pd.running
}

// TriggerCheck runs one due-item sweep on the caller's goroutine, outside the
// polling schedule. Used by the management API and by tests.
func (pd *PollingDispatcher) TriggerCheck(ctx context.Context) (published, failed int) {
	return pd.runCheck(ctx)
}

func (pd *PollingDispatcher) runCheck(ctx context.Context) (published, failed int) {
	started := time.Now()

	items, err := pd.store.ListDue(ctx, started, pd.limit)
	if err != nil {
		pd.logger.WithError(err).Error("Failed to list due content items")
		return 0, 0
	}
	if len(items) == 0 {
		return 0, 0
	}

	for i := range items {
		if err := pd.machine.Publish(ctx, &items[i]); err != nil {
			// Lost claims are routine when multiple dispatchers race.
			if errors.Is(err, lifecycle.ErrAlreadyClaimed) {
				continue
			}
			failed++
			continue
		}
		published++
	}

	elapsed := time.Since(started)
	pd.logger.WithFields(logging.Fields{
		"due":       len(items),
		"published": published,
		"failed":    failed,
		"elapsed":   elapsed.String(),
	}).Info("Dispatch tick complete")

	if pd.metrics != nil {
		pd.metrics.ObserveDispatch(published, failed, elapsed)
	}
	return published, failed
}
