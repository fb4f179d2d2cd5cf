package handlers

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signalcast/api_scheduler/internal/analyzer"
	"signalcast/api_scheduler/internal/conflicts"
	"signalcast/api_scheduler/internal/delivery"
	"signalcast/api_scheduler/internal/notify"
	"signalcast/api_scheduler/internal/scheduler"
	"signalcast/api_scheduler/internal/store"
	"signalcast/api_scheduler/pkg/logging"
)

var (
	db            *sql.DB
	logger        logging.Logger
	metrics       *HelmsmanMetrics
	contentStore  *store.ContentStore
	regStore      *store.RegistrationStore
	deliveryStore *store.DeliveryStore
	slotAnalyzer  *analyzer.Analyzer
	detector      *conflicts.Detector
	bulkScheduler *scheduler.BulkScheduler
	dispatcher    *scheduler.PollingDispatcher
	regCache      *delivery.Cache
	notifier      *notify.Notifier
)

// HelmsmanMetrics holds all Prometheus metrics for Helmsman
type HelmsmanMetrics struct {
	SchedulesComputed *prometheus.CounterVec
	ConflictsDetected *prometheus.CounterVec
	PublishOutcomes   *prometheus.CounterVec
	WebhookDeliveries *prometheus.CounterVec
	DispatchDuration  *prometheus.HistogramVec
	DBQueries         *prometheus.CounterVec
	DBDuration        *prometheus.HistogramVec
	DBConnections     *prometheus.GaugeVec
}

// ObserveDispatch records one dispatch tick's outcome counts.
func (m *HelmsmanMetrics) ObserveDispatch(published, failed int, elapsed time.Duration) {
	m.PublishOutcomes.WithLabelValues("posted").Add(float64(published))
	m.PublishOutcomes.WithLabelValues("failed").Add(float64(failed))
	m.DispatchDuration.WithLabelValues("poll").Observe(elapsed.Seconds())
}

// ObserveDelivery records one webhook delivery attempt outcome.
func (m *HelmsmanMetrics) ObserveDelivery(status string, elapsed time.Duration) {
	m.WebhookDeliveries.WithLabelValues(status).Inc()
}

// Deps carries the wired collaborators into the handler layer.
type Deps struct {
	ContentStore  *store.ContentStore
	RegStore      *store.RegistrationStore
	DeliveryStore *store.DeliveryStore
	Analyzer      *analyzer.Analyzer
	Detector      *conflicts.Detector
	BulkScheduler *scheduler.BulkScheduler
	Dispatcher    *scheduler.PollingDispatcher
	RegCache      *delivery.Cache
	Notifier      *notify.Notifier
}

// Init initializes the handlers with database, logger, metrics, and domain
// collaborators
func Init(database *sql.DB, log logging.Logger, helmsmanMetrics *HelmsmanMetrics, deps Deps) {
	db = database
	logger = log
	metrics = helmsmanMetrics
	contentStore = deps.ContentStore
	regStore = deps.RegStore
	deliveryStore = deps.DeliveryStore
	slotAnalyzer = deps.Analyzer
	detector = deps.Detector
	bulkScheduler = deps.BulkScheduler
	dispatcher = deps.Dispatcher
	regCache = deps.RegCache
	notifier = deps.Notifier
}
