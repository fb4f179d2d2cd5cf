package main

import (
	"context"
	"strings"
	"time"

	"signalcast/api_scheduler/internal/analyzer"
	"signalcast/api_scheduler/internal/conflicts"
	"signalcast/api_scheduler/internal/delivery"
	"signalcast/api_scheduler/internal/handlers"
	"signalcast/api_scheduler/internal/lifecycle"
	"signalcast/api_scheduler/internal/notify"
	"signalcast/api_scheduler/internal/publisher"
	"signalcast/api_scheduler/internal/scheduler"
	"signalcast/api_scheduler/internal/store"
	"signalcast/api_scheduler/pkg/auth"
	"signalcast/api_scheduler/pkg/config"
	"signalcast/api_scheduler/pkg/database"
	"signalcast/api_scheduler/pkg/kafka"
	"signalcast/api_scheduler/pkg/logging"
	"signalcast/api_scheduler/pkg/monitoring"
	"signalcast/api_scheduler/pkg/server"
	"signalcast/api_scheduler/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("helmsman")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Helmsman (Scheduling & Delivery API)")

	dbURL := config.RequireEnv("DATABASE_URL")
	jwtSecret := config.RequireEnv("JWT_SECRET")
	serviceToken := config.RequireEnv("SERVICE_TOKEN")
	adapterURL := config.RequireEnv("CHANNEL_ADAPTER_URL")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("helmsman", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("helmsman", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":        dbURL,
		"JWT_SECRET":          jwtSecret,
		"CHANNEL_ADAPTER_URL": adapterURL,
	}))

	// Create custom scheduling metrics
	metrics := &handlers.HelmsmanMetrics{
		SchedulesComputed: metricsCollector.NewCounter("schedules_computed_total", "Content items scheduled", []string{"spacing"}),
		ConflictsDetected: metricsCollector.NewCounter("conflicts_detected_total", "Scheduling conflicts detected", []string{"kind"}),
		PublishOutcomes:   metricsCollector.NewCounter("publish_outcomes_total", "Publish attempt outcomes", []string{"status"}),
		WebhookDeliveries: metricsCollector.NewCounter("webhook_deliveries_total", "Webhook delivery attempts", []string{"status"}),
		DispatchDuration:  metricsCollector.NewHistogram("dispatch_duration_seconds", "Dispatch tick duration", []string{"trigger"}, nil),
	}

	// Create database metrics
	metrics.DBQueries, metrics.DBDuration, metrics.DBConnections = metricsCollector.CreateDatabaseMetrics()

	// Stores
	contentStore := store.NewContentStore(db)
	regStore := store.NewRegistrationStore(db)
	deliveryStore := store.NewDeliveryStore(db)

	// Engagement history is optional; without ClickHouse the analyzer serves
	// its built-in slot tables.
	var engagement analyzer.EngagementStore = store.NoEngagementHistory{}
	if chHost := config.GetEnv("CLICKHOUSE_HOST", ""); chHost != "" {
		chConfig := database.DefaultClickHouseConfig()
		chConfig.Addr = []string{chHost + ":" + config.GetEnv("CLICKHOUSE_PORT", "9000")}
		chConfig.Database = config.GetEnv("CLICKHOUSE_DATABASE", "analytics")
		chConfig.Username = config.GetEnv("CLICKHOUSE_USER", "default")
		chConfig.Password = config.GetEnv("CLICKHOUSE_PASSWORD", "")
		chDB := database.MustConnectClickHouse(chConfig, logger)
		defer chDB.Close()
		engagement = store.NewEngagementStore(chDB)
		healthChecker.AddCheck("clickhouse", monitoring.ClickHouseHealthCheck(chDB))
	}

	// Kafka side channel is optional
	var producer *kafka.Producer
	if brokers := config.GetEnv("KAFKA_BROKERS", ""); brokers != "" {
		var err error
		producer, err = kafka.NewProducer(strings.Split(brokers, ","), "helmsman", config.GetEnv("KAFKA_TOPIC", "scheduler_events"), logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		healthChecker.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(producer.GetClient()))
	}

	// Domain components
	slotAnalyzer := analyzer.New(engagement, logger)
	detector := conflicts.New()
	bulkScheduler := scheduler.NewBulkScheduler(slotAnalyzer, detector, logger)

	regCache := delivery.NewCache(regStore)
	engine := delivery.NewEngine(deliveryStore, regCache, metrics, logger)
	notifier := notify.New(engine, producer, "helmsman", logger)

	channelPublisher := publisher.New(publisher.Config{
		BaseURL:      adapterURL,
		ServiceToken: serviceToken,
		Timeout:      config.GetEnvDuration("PUBLISH_TIMEOUT", 30*time.Second),
	}, logger)

	machine := lifecycle.New(contentStore, channelPublisher, notifier, lifecycle.Config{
		MaxAttempts: config.GetEnvInt("PUBLISH_MAX_ATTEMPTS", 5),
	}, logger)

	dispatcher := scheduler.NewPollingDispatcher(contentStore, machine, scheduler.DispatcherConfig{
		Interval:   config.GetEnvDuration("DISPATCH_INTERVAL", time.Minute),
		BatchLimit: config.GetEnvInt("DISPATCH_BATCH_LIMIT", 100),
	}, metrics, logger)

	reconciler := delivery.NewReconciler(deliveryStore, engine, regCache, delivery.ReconcilerConfig{
		Interval:    config.GetEnvDuration("RECONCILE_INTERVAL", 30*time.Second),
		BatchLimit:  config.GetEnvInt("RECONCILE_BATCH_LIMIT", 200),
		Concurrency: config.GetEnvInt("RECONCILE_CONCURRENCY", 8),
	}, logger)

	// Initialize handlers
	handlers.Init(db, logger, metrics, handlers.Deps{
		ContentStore:  contentStore,
		RegStore:      regStore,
		DeliveryStore: deliveryStore,
		Analyzer:      slotAnalyzer,
		Detector:      detector,
		BulkScheduler: bulkScheduler,
		Dispatcher:    dispatcher,
		RegCache:      regCache,
		Notifier:      notifier,
	})

	// Start background loops
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher.Start(ctx)
	defer dispatcher.Stop()
	reconciler.Start(ctx)
	defer reconciler.Stop()

	logger.Info("Dispatcher and delivery reconciler started")

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "helmsman", healthChecker, metricsCollector)

	// API routes (root level - nginx adds /api/scheduler/ prefix)
	{
		// Authentication required endpoints
		protected := router.Group("")
		protected.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
		{
			protected.POST("/schedule/bulk", handlers.BulkSchedule)
			protected.GET("/schedule/slots", handlers.GetSlots)
			protected.POST("/schedule/conflicts", handlers.AnalyzeConflicts)

			protected.POST("/webhooks", handlers.CreateWebhook)
			protected.GET("/webhooks", handlers.ListWebhooks)
			protected.GET("/webhooks/:id", handlers.GetWebhook)
			protected.PUT("/webhooks/:id", handlers.UpdateWebhook)
			protected.DELETE("/webhooks/:id", handlers.DeleteWebhook)
			protected.GET("/webhooks/:id/deliveries", handlers.GetWebhookDeliveries)
			protected.GET("/webhooks/:id/stats", handlers.GetWebhookStats)
		}

		// Service-to-service endpoints
		serviceAPI := router.Group("")
		serviceAPI.Use(auth.ServiceAuthMiddleware(serviceToken))
		{
			serviceAPI.POST("/dispatcher/check", handlers.TriggerDispatch)
		}
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("helmsman", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
