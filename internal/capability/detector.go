package capability

import (
	"context"
	"sort"
	"sync"

	"media-optimizer/internal/logging"
	"media-optimizer/internal/metrics"
)

// Probe determines what a single codec backend can do. Probes are
// best-effort and total: a failed probe yields an unavailable row,
// never an error.
type Probe interface {
	// Name returns the backend name the probe reports on.
	Name() string
	// Probe builds the capability row for the backend.
	Probe(ctx context.Context) Capability
}

// Detector builds and caches the capability matrix for the process
// lifetime. Detect is safe for concurrent use; the matrix is built at
// most once until Invalidate is called.
type Detector struct {
	mu     sync.Mutex
	matrix *Matrix
	probes []Probe
}

// NewDetector creates a detector over the default backends: libvips,
// the pure-Go fallback, and ffmpeg.
func NewDetector() *Detector {
	return NewDetectorWithProbes(
		&VipsProbe{},
		&NativeProbe{},
		&FFmpegProbe{},
	)
}

// NewDetectorWithProbes creates a detector over a custom probe set.
func NewDetectorWithProbes(probes ...Probe) *Detector {
	return &Detector{probes: probes}
}

// Detect returns the capability matrix, probing all backends on first
// use and serving the cached matrix afterwards.
func (d *Detector) Detect(ctx context.Context) *Matrix {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.matrix != nil {
		return d.matrix
	}

	rows := make([]Capability, 0, len(d.probes))
	for _, probe := range d.probes {
		row := d.runProbe(ctx, probe)
		rows = append(rows, row)

		available := 0.0
		status := "failure"
		if row.Available {
			available = 1.0
			status = "success"
		}
		metrics.BackendAvailable.WithLabelValues(row.Backend).Set(available)
		metrics.CapabilityProbesTotal.WithLabelValues(row.Backend, status).Inc()

		if row.Available {
			logging.Info("  [OK] %s available (version: %s, formats: %v, animated: %v)",
				row.Backend, row.Version, formatNames(row), row.AnimatedSource)
		} else {
			logging.Info("  %s unavailable", row.Backend)
		}
	}

	d.matrix = NewMatrix(rows...)
	return d.matrix
}

// Invalidate discards the cached matrix so the next Detect probes again.
func (d *Detector) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.matrix = nil
}

// runProbe executes one probe, converting a panic into an unavailable
// row. Probing must never take the process down.
func (d *Detector) runProbe(ctx context.Context, probe Probe) (row Capability) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("Capability probe for %s panicked: %v", probe.Name(), r)
			row = Capability{Backend: probe.Name(), Available: false}
		}
	}()
	return probe.Probe(ctx)
}

func formatNames(row Capability) []string {
	names := make([]string, 0, len(row.Formats))
	for f, ok := range row.Formats {
		if ok {
			names = append(names, string(f))
		}
	}
	sort.Strings(names)
	return names
}
