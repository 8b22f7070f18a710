package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_optimizer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_optimizer_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Capability metrics
var (
	CapabilityProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_capability_probes_total",
			Help: "Total number of backend capability probes",
		},
		[]string{"backend", "status"},
	)

	BackendAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_optimizer_backend_available",
			Help: "Whether a codec backend is available (1) or not (0)",
		},
		[]string{"backend"},
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_conversions_total",
			Help: "Total number of conversion attempts",
		},
		[]string{"backend", "format", "status"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_optimizer_conversion_duration_seconds",
			Help:    "Conversion duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"backend", "format"},
	)

	ConversionBytesSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_conversion_bytes_saved_total",
			Help: "Total bytes saved by completed conversions",
		},
		[]string{"format"},
	)

	ConversionsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_conversions_in_progress",
			Help: "Number of conversions currently executing",
		},
	)

	ConversionQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_conversion_queue_depth",
			Help: "Number of conversion tasks waiting in the queue",
		},
	)
)

// Quota metrics
var (
	QuotaAdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_quota_admissions_total",
			Help: "Total quota admission decisions",
		},
		[]string{"kind", "decision"},
	)

	QuotaUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_optimizer_quota_used",
			Help: "Conversions used in the current quota window",
		},
		[]string{"kind"},
	)
)

// External job metrics
var (
	ExternalSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_external_submissions_total",
			Help: "Total external job submissions",
		},
		[]string{"status"},
	)

	WebhookCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_webhook_callbacks_total",
			Help: "Total inbound webhook callbacks",
		},
		[]string{"outcome"},
	)

	ExternalJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_external_jobs_in_flight",
			Help: "Number of external jobs awaiting a completion callback",
		},
	)
)

// Bulk scheduler metrics
var (
	BulkRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_optimizer_bulk_runs_total",
			Help: "Total number of bulk conversion runs",
		},
	)

	BulkAssetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_bulk_assets_total",
			Help: "Total assets handled by bulk runs, by outcome",
		},
		[]string{"outcome"},
	)

	BulkRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_optimizer_bulk_run_duration_seconds",
			Help:    "Bulk run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
	)
)

// Savings gauges updated by the stats collector
var (
	TrackedConversions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_tracked_conversions",
			Help: "Number of conversion records currently tracked",
		},
	)

	TrackedOriginalBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_tracked_original_bytes",
			Help: "Sum of original bytes across tracked conversions",
		},
	)

	TrackedConvertedBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_tracked_converted_bytes",
			Help: "Sum of converted bytes across tracked conversions",
		},
	)

	SavingsRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_savings_ratio",
			Help: "Overall savings ratio across tracked conversions (0.0-1.0)",
		},
	)
)

// Memory pressure metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_memory_usage_ratio",
			Help: "Heap usage as a fraction of the configured memory limit (0.0-1.0)",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_optimizer_memory_paused",
			Help: "Whether conversion work is paused due to memory pressure (0 or 1)",
		},
	)

	MemoryForcedGC = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_optimizer_memory_forced_gc_total",
			Help: "Number of garbage collections forced by the memory monitor",
		},
	)
)

// Filesystem retry metrics for source volumes on NFS
var (
	FilesystemRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_filesystem_retries_total",
			Help: "Filesystem operation retries after stale NFS file handles",
		},
		[]string{"operation", "result"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_optimizer_filesystem_stale_errors_total",
			Help: "Stale NFS file handle errors encountered per operation",
		},
		[]string{"operation"},
	)
)

// Application info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_optimizer_app_info",
			Help: "Application build information",
		},
		[]string{"version", "commit", "go_version"},
	)
)
