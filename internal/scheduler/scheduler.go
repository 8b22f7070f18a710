package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"media-optimizer/internal/convert"
	"media-optimizer/internal/database"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediatypes"
	"media-optimizer/internal/memory"
	"media-optimizer/internal/metrics"
	"media-optimizer/internal/startup"
	"media-optimizer/internal/tracker"
	"media-optimizer/internal/workers"
)

// queueCapacity bounds the pending task backlog. A full queue defers
// work back to the caller instead of growing without bound.
const queueCapacity = 1024

// Asset identifies one source file to convert.
type Asset struct {
	ID         int64
	SourcePath string
	MimeType   string
	// SourceURL is the durable origin URL used for external dispatch;
	// empty means the asset can only be converted locally.
	SourceURL string
}

// task is one (asset, format, size) unit of local conversion work.
type task struct {
	asset    Asset
	format   mediatypes.Format
	size     startup.RenditionSize
	attempts int
}

func (t task) key() string {
	return strconv.FormatInt(t.asset.ID, 10) + "/" + string(t.format) + "/" + t.size.Name
}

// Converter runs one conversion request to completion.
// *convert.Pipeline is the production implementation.
type Converter interface {
	Convert(ctx context.Context, req convert.Request) (convert.Result, error)
}

// Scheduler owns the background conversion queue. A fixed worker pool
// drains it, and at most one task per (asset, format, size) key is in
// flight at a time; a second request for the same key coalesces into
// the one already pending.
type Scheduler struct {
	config   *startup.Config
	pipeline Converter
	tracker  *tracker.Tracker
	db       *database.Database
	monitor  *memory.Monitor

	queue     chan task
	inFlight  map[string]bool
	inFlightM sync.Mutex

	workerCount int
	wg          sync.WaitGroup

	startOnce sync.Once
	cancel    context.CancelFunc
}

// New creates a scheduler. Start must be called before Enqueue. The
// memory monitor may be nil, in which case workers never throttle.
func New(config *startup.Config, pipeline Converter, tr *tracker.Tracker, db *database.Database, monitor *memory.Monitor) *Scheduler {
	return &Scheduler{
		config:      config,
		pipeline:    pipeline,
		tracker:     tr,
		db:          db,
		monitor:     monitor,
		queue:       make(chan task, queueCapacity),
		inFlight:    make(map[string]bool),
		workerCount: workers.ForCPU(8),
	}
}

// WorkerCount returns the size of the worker pool.
func (s *Scheduler) WorkerCount() int {
	return s.workerCount
}

// Start launches the worker pool. Workers exit when ctx is cancelled;
// tasks already running finish, queued tasks are dropped.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		workerCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel

		for i := 0; i < s.workerCount; i++ {
			s.wg.Add(1)
			go s.worker(workerCtx, i)
		}
		logging.Info("Conversion scheduler started with %d workers", s.workerCount)
	})
}

// Stop cancels queued work and waits for running conversions to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	logging.Info("Conversion scheduler stopped")
}

// Enqueue adds one conversion task unless an identical task is already
// pending or running. Returns true when the work is underway either
// way, false when the queue is full.
func (s *Scheduler) enqueue(t task) bool {
	key := t.key()

	s.inFlightM.Lock()
	if s.inFlight[key] {
		s.inFlightM.Unlock()
		logging.Debug("Task %s already in flight, coalescing", key)
		return true
	}
	s.inFlight[key] = true
	s.inFlightM.Unlock()

	select {
	case s.queue <- t:
		metrics.ConversionQueueDepth.Set(float64(len(s.queue)))
		return true
	default:
		s.clearInFlight(key)
		logging.Warn("Conversion queue full, deferring task %s", key)
		return false
	}
}

func (s *Scheduler) clearInFlight(key string) {
	s.inFlightM.Lock()
	delete(s.inFlight, key)
	s.inFlightM.Unlock()
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.queue:
			metrics.ConversionQueueDepth.Set(float64(len(s.queue)))
			// Cancellation only skips tasks that have not started.
			if ctx.Err() != nil {
				s.clearInFlight(t.key())
				return
			}
			// Hold here under memory pressure; encodes allocate big buffers.
			s.monitor.WaitIfPaused()
			s.runTask(ctx, t)
		}
	}
}

// runTask executes one conversion and records the outcome. Transient
// failures get a single requeue; everything else is logged and dropped.
func (s *Scheduler) runTask(ctx context.Context, t task) {
	// A requeued task re-marks its own in-flight flag inside enqueue,
	// so only clear it here when the task is actually done.
	requeued := false
	defer func() {
		if !requeued {
			s.clearInFlight(t.key())
		}
	}()

	dest := s.destinationPath(t.asset.ID, t.format, t.size.Name)
	req := convert.NewRequest(t.asset.ID, t.asset.SourcePath, t.asset.MimeType).
		To(t.format, dest).
		WithMaxWidth(t.size.MaxWidth).
		WithOptions(convert.Options{
			Quality: s.config.ImageQuality,
			CRF:     s.config.VideoCRF,
			Speed:   s.config.VideoSpeed,
		})

	result, err := s.pipeline.Convert(ctx, req)
	if err != nil {
		if convert.IsRetryable(err) && t.attempts == 0 {
			t.attempts++
			logging.Warn("Requeueing transient failure for %s: %v", t.key(), err)
			// The in-flight flag must drop first or enqueue coalesces
			// against this very task and the retry is lost.
			s.clearInFlight(t.key())
			requeued = s.enqueue(t)
			return
		}
		logging.Error("Conversion task %s failed: %v", t.key(), err)
		return
	}

	if result.AnimationLost {
		logging.Warn("Conversion %s lost animation (no preserving backend available)", t.key())
	}

	if err := s.db.RecordOriginalSize(ctx, t.asset.ID, t.size.Name, result.OriginalBytes); err != nil {
		logging.Warn("Failed to record original size for %s: %v", t.key(), err)
	}

	rec := &database.ConversionRecord{
		AssetID:        t.asset.ID,
		Format:         t.format,
		RenditionSize:  t.size.Name,
		OriginalBytes:  result.OriginalBytes,
		ConvertedBytes: result.ConvertedBytes,
	}
	if err := s.tracker.Record(ctx, rec); err != nil {
		logging.Error("Failed to track conversion %s: %v", t.key(), err)
	}
}

// destinationPath lays converted artifacts out as
// <convert_dir>/<asset_id>/<size>.<ext>.
func (s *Scheduler) destinationPath(assetID int64, format mediatypes.Format, size string) string {
	name := fmt.Sprintf("%s%s", size, format.Extension())
	return filepath.Join(s.config.ConvertDir, strconv.FormatInt(assetID, 10), string(format), name)
}

// renditionsFor returns the sizes that apply to a kind. Videos are not
// downscaled into named renditions; they convert at original dimensions
// only.
func (s *Scheduler) renditionsFor(kind mediatypes.Kind) []startup.RenditionSize {
	if kind == mediatypes.KindImage {
		return s.config.RenditionSizes
	}
	for _, size := range s.config.RenditionSizes {
		if size.MaxWidth == 0 {
			return []startup.RenditionSize{size}
		}
	}
	return []startup.RenditionSize{{Name: "full", MaxWidth: 0}}
}
