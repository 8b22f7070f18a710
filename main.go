package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-optimizer/internal/capability"
	"media-optimizer/internal/convert"
	"media-optimizer/internal/database"
	"media-optimizer/internal/handlers"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/memory"
	"media-optimizer/internal/metrics"
	"media-optimizer/internal/middleware"
	"media-optimizer/internal/quota"
	"media-optimizer/internal/remote"
	"media-optimizer/internal/scheduler"
	"media-optimizer/internal/startup"
	"media-optimizer/internal/tracker"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Set the heap limit from container metadata before anything big
	// allocates, then watch for pressure from encode bursts.
	memory.ConfigureFromEnv()
	monitor := memory.NewMonitor(memory.DefaultMonitorConfig())
	monitor.Start()
	defer monitor.Stop()

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Probe codec backends once up front so the first conversion does
	// not pay for detection.
	startup.LogCapabilityInit()
	detector := capability.NewDetector()
	detector.Detect(context.Background())
	defer capability.ShutdownVips()

	// Conversion pipeline and tracker
	startup.LogPipelineInit(config.ConversionEnabled)
	pipeline := convert.NewPipeline(detector)
	trk := tracker.New(db)

	// Quota gate
	gate := quota.New(db, int64(config.ImageQuotaLimit), int64(config.VideoQuotaLimit), config.QuotaWindow)

	// External service client and webhook reconciler
	externalConfig := remote.Config{
		Enabled:    config.ExternalEnabled,
		BaseURL:    config.ExternalBaseURL,
		AccountID:  config.AccountID,
		WebhookURL: config.WebhookURL,
	}
	if err := externalConfig.Validate(); err != nil {
		startup.LogFatal("External service configuration error: %v", err)
	}
	startup.LogExternalInit(config.ExternalEnabled, config.ExternalBaseURL)
	client := remote.NewClient(externalConfig, db)
	reconciler := remote.NewReconciler(db, trk, config.AccountID)

	// Background conversion scheduler
	sched := scheduler.New(config, pipeline, trk, db, monitor)
	startup.LogSchedulerInit(sched.WorkerCount())

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	if config.ConversionEnabled {
		sched.Start(schedCtx)
	}

	var submitter scheduler.ExternalSubmitter
	if config.ExternalEnabled {
		submitter = client
	}
	bulk := scheduler.NewBulk(sched, detector, gate, submitter)

	// Metrics
	metrics.InitializeMetrics()
	metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, startup.GoVersion).Set(1)
	collector := metrics.NewCollector(trk, 30*time.Second)
	collector.Start()
	defer collector.Stop()

	// Initialize handlers and router
	h := handlers.New(config, db, detector, trk, gate, reconciler, bulk)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply middleware: request id, logging, metrics, compression
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.RequestID(router)
	handler = middleware.Logger(loggingConfig)(handler)
	handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)

	// Create server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Metrics server on its own port so scrapes bypass the API
	// middleware stack.
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:         ":" + config.MetricsPort,
			Handler:      metricsMux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv, sched, schedCancel)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func handleShutdown(srv, metricsSrv *http.Server, sched *scheduler.Scheduler, schedCancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Draining conversion scheduler")
	schedCancel()
	sched.Stop()
	startup.LogShutdownStepComplete("Conversion scheduler stopped")

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
