// Package metrics provides Prometheus instrumentation for the media
// optimizer service.
//
// All metrics are prefixed with "media_optimizer_" to avoid naming
// collisions with other applications. Metrics are registered with the
// default registry via promauto; expose them by mounting
// promhttp.Handler() on the metrics endpoint:
//
//	import "github.com/prometheus/client_golang/prometheus/promhttp"
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// # Metric Categories
//
//   - HTTP: request counts, duration, in-flight gauge
//   - Database: query counts, duration, open connections
//   - Capability: backend probe outcomes and availability
//   - Conversion: attempts, duration, bytes saved, queue depth
//   - Quota: admission decisions and current window usage
//   - External jobs: submissions, webhook callbacks, in-flight jobs
//   - Bulk scheduler: run counts, per-asset outcomes, run duration
//   - Savings: gauges updated periodically by the [Collector]
//
// # Recording Metrics
//
// Import this package and use the exported metric variables:
//
//	metrics.ConversionsTotal.WithLabelValues("vips", "webp", "success").Inc()
//	metrics.QuotaAdmissionsTotal.WithLabelValues("image", "denied").Inc()
//
// # Collector
//
// The [Collector] periodically gathers aggregate conversion statistics
// from a [StatsProvider] (the conversion tracker) and updates the savings
// gauges:
//
//	collector := metrics.NewCollector(trackerAdapter, 1*time.Minute)
//	collector.Start()
//	defer collector.Stop()
package metrics
