package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	backends := []string{"vips", "native", "ffmpeg"}
	formats := []string{"webp", "avif", "av1", "vp9"}

	// --- Capability probes (per backend × status) ---
	for _, backend := range backends {
		BackendAvailable.WithLabelValues(backend)
		for _, status := range []string{"success", "failure"} {
			CapabilityProbesTotal.WithLabelValues(backend, status)
		}
	}

	// --- Conversions (per backend × format × status) ---
	for _, backend := range backends {
		for _, format := range formats {
			ConversionDuration.WithLabelValues(backend, format)
			for _, status := range []string{"success", "failure"} {
				ConversionsTotal.WithLabelValues(backend, format, status)
			}
		}
	}
	for _, format := range formats {
		ConversionBytesSaved.WithLabelValues(format)
	}

	// --- Quota decisions (per kind × decision) ---
	for _, kind := range []string{"image", "video"} {
		QuotaUsed.WithLabelValues(kind)
		for _, decision := range []string{"admitted", "denied", "error"} {
			QuotaAdmissionsTotal.WithLabelValues(kind, decision)
		}
	}

	// --- External jobs and webhook outcomes ---
	for _, status := range []string{"accepted", "refused", "error"} {
		ExternalSubmissionsTotal.WithLabelValues(status)
	}
	for _, outcome := range []string{"completed", "failed", "rejected", "invalid"} {
		WebhookCallbacksTotal.WithLabelValues(outcome)
	}

	// --- Bulk run outcomes ---
	for _, outcome := range []string{"dispatched", "skipped", "deferred", "failed"} {
		BulkAssetsTotal.WithLabelValues(outcome)
	}
}
