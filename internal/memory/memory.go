// Package memory configures the Go runtime memory limit from container
// metadata and provides a backpressure monitor for the encode workers.
// Image and video encodes allocate large pixel buffers, and ffmpeg runs
// as a child process outside the Go heap, so the heap limit defaults to
// a fraction of the container limit.
package memory

import (
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"media-optimizer/internal/logging"
	"media-optimizer/internal/metrics"
)

// DefaultHeapRatio is the share of container memory given to the Go heap.
// The remainder is headroom for libvips buffers and ffmpeg children.
const DefaultHeapRatio = 0.75

// ConfigureFromEnv sets GOMEMLIMIT from the container memory limit.
// Call it early in main, before the first large allocation.
//
//   - GOMEMLIMIT takes precedence when set explicitly
//   - MEMORY_LIMIT is the container limit in bytes (Kubernetes Downward API)
//   - MEMORY_RATIO optionally overrides DefaultHeapRatio
//
// It returns the effective heap limit in bytes, or 0 when none applies.
func ConfigureFromEnv() int64 {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			logging.Info("GOMEMLIMIT set via environment: %s", env)
			return limit
		}
		return 0
	}

	limitStr := os.Getenv("MEMORY_LIMIT")
	if limitStr == "" {
		logging.Debug("MEMORY_LIMIT not set, leaving GOMEMLIMIT unconfigured")
		return 0
	}
	containerLimit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil || containerLimit <= 0 {
		logging.Warn("Ignoring unparseable MEMORY_LIMIT %q", limitStr)
		return 0
	}

	ratio := DefaultHeapRatio
	if ratioStr := os.Getenv("MEMORY_RATIO"); ratioStr != "" {
		if parsed, err := strconv.ParseFloat(ratioStr, 64); err == nil && parsed > 0 && parsed <= 1.0 {
			ratio = parsed
		} else {
			logging.Warn("Ignoring invalid MEMORY_RATIO %q, using %.2f", ratioStr, ratio)
		}
	}

	heapLimit := int64(float64(containerLimit) * ratio)
	debug.SetMemoryLimit(heapLimit)
	logging.Info("GOMEMLIMIT configured: %d bytes (%.0f%% of %d byte container limit)",
		heapLimit, ratio*100, containerLimit)
	return heapLimit
}

// MonitorConfig controls the pressure thresholds of a Monitor.
type MonitorConfig struct {
	// LimitBytes is the heap budget. Zero falls back to GOMEMLIMIT.
	LimitBytes int64

	// PauseMark is the usage fraction at which workers pause (0.0-1.0).
	PauseMark float64

	// ResumeMark is the usage fraction below which workers resume.
	ResumeMark float64

	// CheckInterval is how often usage is sampled.
	CheckInterval time.Duration
}

// DefaultMonitorConfig returns thresholds suited to bursty encode load.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PauseMark:     0.85,
		ResumeMark:    0.70,
		CheckInterval: 5 * time.Second,
	}
}

// Monitor samples heap usage against a limit and pauses encode workers
// under pressure. A nil Monitor never pauses, so callers can wire it
// unconditionally.
type Monitor struct {
	config MonitorConfig
	limit  int64
	stop   chan struct{}

	mu     sync.RWMutex
	paused bool
	resume chan struct{}
}

// NewMonitor creates a monitor. When no limit is available it returns
// nil and pressure checks become no-ops.
func NewMonitor(config MonitorConfig) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if goLimit := debug.SetMemoryLimit(-1); goLimit > 0 && goLimit < math.MaxInt64 {
			limit = goLimit
		}
	}
	if limit <= 0 {
		logging.Debug("No memory limit configured, pressure monitoring disabled")
		return nil
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultMonitorConfig().CheckInterval
	}
	return &Monitor{
		config: config,
		limit:  limit,
		stop:   make(chan struct{}),
		resume: make(chan struct{}),
	}
}

// Start begins the sampling loop.
func (m *Monitor) Start() {
	if m == nil {
		return
	}
	go m.loop()
}

// Stop halts the sampling loop and releases any paused workers.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	close(m.stop)
	m.mu.Lock()
	if m.paused {
		m.paused = false
		close(m.resume)
	}
	m.mu.Unlock()
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	usage := float64(stats.HeapAlloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.paused && usage >= m.config.PauseMark:
		m.paused = true
		m.resume = make(chan struct{})
		metrics.MemoryPaused.Set(1)
		metrics.MemoryForcedGC.Inc()
		logging.Warn("Memory pressure at %.0f%% of limit, pausing encode workers", usage*100)
		runtime.GC()
	case m.paused && usage <= m.config.ResumeMark:
		m.paused = false
		close(m.resume)
		metrics.MemoryPaused.Set(0)
		logging.Info("Memory pressure relieved at %.0f%% of limit, resuming encode workers", usage*100)
	}
}

// WaitIfPaused blocks the caller while the monitor reports pressure.
// It returns immediately on a nil or unpaused monitor.
func (m *Monitor) WaitIfPaused() {
	if m == nil {
		return
	}
	m.mu.RLock()
	paused, resume := m.paused, m.resume
	m.mu.RUnlock()
	if paused {
		<-resume
	}
}

// Paused reports whether workers are currently held.
func (m *Monitor) Paused() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns current heap usage as a fraction of the limit.
func (m *Monitor) Usage() float64 {
	if m == nil {
		return 0
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return float64(stats.HeapAlloc) / float64(m.limit)
}
