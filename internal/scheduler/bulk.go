package scheduler

import (
	"context"
	"time"

	"media-optimizer/internal/capability"
	"media-optimizer/internal/filesystem"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediatypes"
	"media-optimizer/internal/metrics"
	"media-optimizer/internal/quota"
	"media-optimizer/internal/startup"
)

// ExternalSubmitter is the slice of the remote client the bulk
// scheduler needs for external dispatch.
type ExternalSubmitter interface {
	Enabled() bool
	Submit(ctx context.Context, assetID int64, sourceURL, mimeType string, operations []string) error
}

// Report summarizes one bulk run. Every asset lands in exactly one
// bucket.
type Report struct {
	// Dispatched assets had conversion work started (locally queued or
	// submitted externally).
	Dispatched int `json:"dispatched"`
	// Skipped assets needed no work (unconvertible or already fully
	// converted).
	Skipped int `json:"skipped"`
	// Deferred assets were held back by quota; they are expected to be
	// retried in a later window.
	Deferred int `json:"deferred"`
	// Failed assets hit an error during dispatch.
	Failed int `json:"failed"`
}

// BulkScheduler walks a batch of assets and dispatches the missing
// conversions for each, subject to quota admission.
type BulkScheduler struct {
	*Scheduler

	detector *capability.Detector
	gate     *quota.Gate
	external ExternalSubmitter
}

// NewBulk creates a bulk scheduler on top of the background queue.
// external may be nil when no remote service is configured.
func NewBulk(s *Scheduler, detector *capability.Detector, gate *quota.Gate, external ExternalSubmitter) *BulkScheduler {
	return &BulkScheduler{
		Scheduler: s,
		detector:  detector,
		gate:      gate,
		external:  external,
	}
}

// Run processes one batch. Quota denial for a kind stops dispatching
// further assets of that kind (they count as deferred); a failure on
// one asset never aborts the run.
func (b *BulkScheduler) Run(ctx context.Context, assets []Asset) Report {
	start := time.Now()
	matrix := b.detector.Detect(ctx)

	var report Report
	stopped := make(map[mediatypes.Kind]bool)

	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			report.Deferred += len(assets) - report.total()
			break
		}
		outcome := b.processAsset(ctx, asset, matrix, stopped)
		switch outcome {
		case "dispatched":
			report.Dispatched++
		case "skipped":
			report.Skipped++
		case "deferred":
			report.Deferred++
		case "failed":
			report.Failed++
		}
		metrics.BulkAssetsTotal.WithLabelValues(outcome).Inc()
	}

	metrics.BulkRunsTotal.Inc()
	metrics.BulkRunDuration.Observe(time.Since(start).Seconds())
	logging.Info("Bulk run over %d assets: %d dispatched, %d skipped, %d deferred, %d failed (%v)",
		len(assets), report.Dispatched, report.Skipped, report.Deferred, report.Failed,
		time.Since(start).Round(time.Millisecond))
	return report
}

func (r Report) total() int {
	return r.Dispatched + r.Skipped + r.Deferred + r.Failed
}

func (b *BulkScheduler) processAsset(ctx context.Context, asset Asset, matrix *capability.Matrix, stopped map[mediatypes.Kind]bool) string {
	kind := mediatypes.KindForMime(asset.MimeType)
	if kind == mediatypes.KindOther {
		logging.Debug("Asset %d has unconvertible type %s, skipping", asset.ID, asset.MimeType)
		return "skipped"
	}

	formats := b.formatsToProduce(kind, matrix)
	if len(formats) == 0 {
		logging.Debug("No supported target formats for asset %d (%s), skipping", asset.ID, asset.MimeType)
		return "skipped"
	}
	sizes := b.renditionsFor(kind)

	missing := b.missingTasks(ctx, asset, formats, sizes)
	if len(missing) == 0 {
		logging.Debug("Asset %d already fully converted, skipping", asset.ID)
		return "skipped"
	}

	if stopped[kind] {
		return "deferred"
	}

	admitted, err := b.gate.Admit(ctx, kind)
	if err != nil {
		logging.Error("Quota admission for asset %d failed: %v", asset.ID, err)
		return "failed"
	}
	if !admitted {
		stopped[kind] = true
		logging.Info("Quota exhausted for %s conversions, deferring the rest of the batch", kind)
		return "deferred"
	}

	if b.external != nil && b.external.Enabled() && asset.SourceURL != "" {
		return b.dispatchExternal(ctx, asset, formats, sizes)
	}
	return b.dispatchLocal(missing)
}

// missingTasks returns the (format, size) combinations with no current
// conversion record.
func (b *BulkScheduler) missingTasks(ctx context.Context, asset Asset, formats []mediatypes.Format, sizes []startup.RenditionSize) []task {
	var missing []task
	for _, format := range formats {
		for _, size := range sizes {
			rec, err := b.tracker.Lookup(ctx, asset.ID, format, size.Name)
			if err != nil {
				logging.Warn("Record lookup for asset %d failed: %v", asset.ID, err)
			}
			if rec == nil {
				missing = append(missing, task{asset: asset, format: format, size: size})
			}
		}
	}
	return missing
}

// formatsToProduce applies the conversion mode: hybrid produces every
// supported configured format, native only the most preferred one.
func (b *BulkScheduler) formatsToProduce(kind mediatypes.Kind, matrix *capability.Matrix) []mediatypes.Format {
	var out []mediatypes.Format
	for _, format := range b.config.FormatsFor(kind) {
		if !matrix.Supports(format) {
			continue
		}
		out = append(out, format)
		if b.config.Mode == startup.ModeNative {
			break
		}
	}
	return out
}

// dispatchExternal records size baselines and submits the asset to the
// remote service. The baseline is the source file size; the remote side
// produces its own renditions and reports converted sizes back.
func (b *BulkScheduler) dispatchExternal(ctx context.Context, asset Asset, formats []mediatypes.Format, sizes []startup.RenditionSize) string {
	info, err := filesystem.Stat(asset.SourcePath, filesystem.DefaultRetryConfig())
	if err != nil {
		logging.Error("Cannot stat asset %d source for external dispatch: %v", asset.ID, err)
		return "failed"
	}

	for _, size := range sizes {
		if err := b.db.RecordOriginalSize(ctx, asset.ID, size.Name, info.Size()); err != nil {
			logging.Error("Failed to record baseline for asset %d size %s: %v", asset.ID, size.Name, err)
			return "failed"
		}
	}

	operations := make([]string, 0, len(formats))
	for _, format := range formats {
		operations = append(operations, string(format))
	}

	if err := b.external.Submit(ctx, asset.ID, asset.SourceURL, asset.MimeType, operations); err != nil {
		logging.Error("External submission for asset %d failed: %v", asset.ID, err)
		return "failed"
	}
	return "dispatched"
}

// dispatchLocal queues the missing tasks on the background workers.
func (b *BulkScheduler) dispatchLocal(missing []task) string {
	queued := 0
	for _, t := range missing {
		if b.enqueue(t) {
			queued++
		}
	}
	if queued == 0 {
		// Queue full; nothing started, try again later.
		return "deferred"
	}
	return "dispatched"
}
