package delivery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"signalcast/api_scheduler/pkg/logging"
	"signalcast/api_scheduler/pkg/models"
)

// PendingLister returns deliveries whose retry time has arrived.
type PendingLister interface {
	ListPendingDue(ctx context.Context, now time.Time, limit int) ([]models.DeliveryRecord, error)
}

// ReconcilerConfig holds retry reconciler tunables.
type ReconcilerConfig struct {
	// Interval between retry sweeps. Defaults to 30 seconds.
	Interval time.Duration

	// BatchLimit caps deliveries pulled per sweep.
	BatchLimit int

	// Concurrency bounds in-flight retry attempts per sweep.
	Concurrency int
}

// Reconciler sweeps pending deliveries whose next_retry_at has passed and
// re-attempts them. Attempts within a sweep run concurrently but bounded, so
// one slow endpoint cannot starve the rest.
type Reconciler struct {
	store       PendingLister
	engine      *Engine
	cache       *Cache
	logger      logging.Logger
	interval    time.Duration
	limit       int
	concurrency int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReconciler creates a delivery retry reconciler.
func NewReconciler(store PendingLister, engine *Engine, cache *Cache, cfg ReconcilerConfig, logger logging.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Reconciler{
		store:       store,
		engine:      engine,
		cache:       cache,
		logger:      logger,
		interval:    cfg.Interval,
		limit:       cfg.BatchLimit,
		concurrency: cfg.Concurrency,
	}
}

// Start launches the sweep loop. No-op if already running.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	r.logger.WithField("interval", r.interval.String()).Info("Delivery reconciler started")

	go func() {
		defer close(doneCh)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.ProcessPending(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts sweeping and waits for an in-flight sweep to finish. Safe to call
// repeatedly.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	doneCh := r.doneCh
	r.mu.Unlock()

	<-doneCh
	r.logger.Info("Delivery reconciler stopped")
}

// ProcessPending runs one sweep and returns the number of deliveries
// attempted.
func (r *Reconciler) ProcessPending(ctx context.Context) int {
	due, err := r.store.ListPendingDue(ctx, time.Now(), r.limit)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list pending webhook deliveries")
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	regs, err := r.cache.Active(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Failed to load registrations for retry sweep")
		return 0
	}
	byID := make(map[string]*models.WebhookRegistration, len(regs))
	for i := range regs {
		byID[regs[i].ID] = &regs[i]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i := range due {
		rec := &due[i]
		g.Go(func() error {
			reg, ok := byID[rec.RegistrationID]
			if !ok {
				// Registration deleted or deactivated mid-flight.
				rec.Status = models.DeliveryStatusFailed
				rec.Error = "registration no longer active"
				if err := r.engine.store.UpdateDelivery(gctx, rec); err != nil {
					r.logger.WithError(err).WithField("delivery_id", rec.ID).Error("Failed to fail orphaned delivery")
				}
				return nil
			}
			// Attempt outcomes are persisted on the record; a sweep never
			// aborts on a single failed endpoint.
			_ = r.engine.Attempt(gctx, rec, reg)
			return nil
		})
	}
	_ = g.Wait()

	r.logger.WithField("attempted", len(due)).Debug("Retry sweep complete")
	return len(due)
}
