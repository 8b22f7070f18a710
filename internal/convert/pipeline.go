package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"media-optimizer/internal/capability"
	"media-optimizer/internal/filesystem"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediatypes"
	"media-optimizer/internal/metrics"
)

// encoder runs one backend-specific encode from the source into an
// already-open temporary file path.
type encoder func(ctx context.Context, req Request, row capability.Capability, tmpPath string, animated bool) error

// Pipeline converts media assets using whichever backends the
// capability matrix reports as available. It holds no per-request
// state and is safe for concurrent use.
type Pipeline struct {
	detector *capability.Detector
	encoders map[string]encoder
}

// NewPipeline builds a pipeline over a capability detector.
func NewPipeline(detector *capability.Detector) *Pipeline {
	p := &Pipeline{detector: detector}
	p.encoders = map[string]encoder{
		capability.BackendVips:   p.encodeVips,
		capability.BackendNative: p.encodeNative,
		capability.BackendFFmpeg: p.encodeFFmpeg,
	}
	return p
}

// Convert runs one conversion request to completion. On success the
// encoded artifact is at req.DestinationPath; on any failure no partial
// file is left behind. The same request always selects the same backend
// against the same capability matrix, so output is reproducible.
func (p *Pipeline) Convert(ctx context.Context, req Request) (Result, error) {
	if req.Format == "" || req.DestinationPath == "" {
		return Result{}, permanentError("", req.Format, fmt.Errorf("request missing target format or destination"))
	}

	// Source media lives on network mounts, so stale handles get retried.
	info, err := filesystem.Stat(req.SourcePath, filesystem.DefaultRetryConfig())
	if err != nil {
		return Result{}, permanentError("", req.Format, fmt.Errorf("source unavailable: %w", err))
	}

	animated := mediatypes.MaybeAnimated(req.MimeType)

	matrix := p.detector.Detect(ctx)
	backend := matrix.Select(req.Format, animated)
	if backend == "" {
		return Result{}, fmt.Errorf("convert %s to %s: %w", req.SourcePath, req.Format, ErrUnsupportedFormat)
	}
	row, _ := matrix.Backend(backend)

	encode, ok := p.encoders[backend]
	if !ok {
		return Result{}, permanentError(backend, req.Format, fmt.Errorf("no encoder registered for backend"))
	}

	start := time.Now()
	metrics.ConversionsInProgress.Inc()
	defer metrics.ConversionsInProgress.Dec()

	result, err := p.run(ctx, req, row, encode, animated, info.Size())

	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.ConversionsTotal.WithLabelValues(backend, string(req.Format), status).Inc()
	metrics.ConversionDuration.WithLabelValues(backend, string(req.Format)).Observe(time.Since(start).Seconds())
	if err != nil {
		logging.Error("Conversion of %s to %s via %s failed: %v", req.SourcePath, req.Format, backend, err)
		return Result{}, err
	}

	if saved := result.OriginalBytes - result.ConvertedBytes; saved > 0 {
		metrics.ConversionBytesSaved.WithLabelValues(string(req.Format)).Add(float64(saved))
	}
	logging.Debug("Converted %s to %s via %s in %v (%d -> %d bytes)",
		req.SourcePath, req.Format, backend, time.Since(start).Round(time.Millisecond),
		result.OriginalBytes, result.ConvertedBytes)
	return result, nil
}

// run performs the encode through a temporary file in the destination
// directory so the final publish is a single atomic rename on the same
// filesystem.
func (p *Pipeline) run(ctx context.Context, req Request, row capability.Capability, encode encoder, animated bool, sourceBytes int64) (Result, error) {
	destDir := filepath.Dir(req.DestinationPath)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, transientError(row.Backend, req.Format, fmt.Errorf("creating destination directory: %w", err))
	}

	tmp, err := os.CreateTemp(destDir, ".convert-*"+req.Format.Extension())
	if err != nil {
		return Result{}, transientError(row.Backend, req.Format, fmt.Errorf("creating temporary file: %w", err))
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := encode(ctx, req, row, tmpPath, animated); err != nil {
		os.Remove(tmpPath)
		return Result{}, err
	}

	converted, err := os.Stat(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return Result{}, transientError(row.Backend, req.Format, fmt.Errorf("reading encoded output: %w", err))
	}
	if converted.Size() == 0 {
		os.Remove(tmpPath)
		return Result{}, permanentError(row.Backend, req.Format, fmt.Errorf("encoder produced an empty file"))
	}

	if err := os.Rename(tmpPath, req.DestinationPath); err != nil {
		os.Remove(tmpPath)
		return Result{}, transientError(row.Backend, req.Format, fmt.Errorf("publishing output: %w", err))
	}

	return Result{
		DestinationPath: req.DestinationPath,
		OriginalBytes:   sourceBytes,
		ConvertedBytes:  converted.Size(),
		AnimationLost:   animated && !row.AnimatedSource,
		Backend:         row.Backend,
	}, nil
}
