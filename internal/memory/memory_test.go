package memory

import (
	"math"
	"runtime/debug"
	"testing"
	"time"
)

// noLimit is the runtime's sentinel for an unconfigured memory limit.
const noLimit = int64(math.MaxInt64)

func TestConfigureFromEnvUnset(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "")

	if limit := ConfigureFromEnv(); limit != 0 {
		t.Errorf("ConfigureFromEnv() = %d, want 0 with no environment", limit)
	}
}

func TestConfigureFromEnvContainerLimit(t *testing.T) {
	original := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(original)

	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "1073741824")
	t.Setenv("MEMORY_RATIO", "")

	limit := ConfigureFromEnv()
	expected := int64(float64(1073741824) * DefaultHeapRatio)
	if limit != expected {
		t.Errorf("ConfigureFromEnv() = %d, want %d", limit, expected)
	}
	if got := debug.SetMemoryLimit(-1); got != expected {
		t.Errorf("GOMEMLIMIT = %d, want %d", got, expected)
	}
}

func TestConfigureFromEnvCustomRatio(t *testing.T) {
	original := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(original)

	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "1000000000")
	t.Setenv("MEMORY_RATIO", "0.5")

	if limit := ConfigureFromEnv(); limit != 500000000 {
		t.Errorf("ConfigureFromEnv() = %d, want 500000000", limit)
	}
}

func TestConfigureFromEnvInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		limit string
		ratio string
	}{
		{"garbage limit", "not-a-number", ""},
		{"negative limit", "-100", ""},
		{"zero limit", "0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.limit)
			t.Setenv("MEMORY_RATIO", tt.ratio)

			if limit := ConfigureFromEnv(); limit != 0 {
				t.Errorf("ConfigureFromEnv() = %d, want 0", limit)
			}
		})
	}
}

func TestNewMonitorWithoutLimit(t *testing.T) {
	original := debug.SetMemoryLimit(-1)
	debug.SetMemoryLimit(noLimit)
	defer debug.SetMemoryLimit(original)

	m := NewMonitor(MonitorConfig{})
	if m != nil {
		t.Fatal("expected nil monitor with no limit configured")
	}

	// Nil monitor methods must be safe no-ops.
	m.Start()
	m.WaitIfPaused()
	if m.Paused() {
		t.Error("nil monitor reports paused")
	}
	if m.Usage() != 0 {
		t.Error("nil monitor reports nonzero usage")
	}
	m.Stop()
}

func TestMonitorPauseAndResume(t *testing.T) {
	m := NewMonitor(MonitorConfig{
		LimitBytes:    1, // everything is over budget
		PauseMark:     0.85,
		ResumeMark:    0.70,
		CheckInterval: time.Hour, // sampled manually
	})
	if m == nil {
		t.Fatal("expected monitor with explicit limit")
	}

	m.sample()
	if !m.Paused() {
		t.Fatal("monitor should pause when usage exceeds the pause mark")
	}

	// WaitIfPaused must block until pressure is relieved.
	released := make(chan struct{})
	go func() {
		m.WaitIfPaused()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("WaitIfPaused returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	// A huge limit drops usage below the resume mark.
	m.limit = noLimit
	m.sample()
	if m.Paused() {
		t.Fatal("monitor should resume when usage falls below the resume mark")
	}

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not release after resume")
	}
}

func TestMonitorStopReleasesWaiters(t *testing.T) {
	m := NewMonitor(MonitorConfig{
		LimitBytes:    1,
		PauseMark:     0.85,
		ResumeMark:    0.70,
		CheckInterval: time.Hour,
	})
	m.sample()
	if !m.Paused() {
		t.Fatal("monitor should be paused")
	}

	released := make(chan struct{})
	go func() {
		m.WaitIfPaused()
		close(released)
	}()

	m.Stop()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Stop did not release paused waiters")
	}
}

func TestMonitorUsage(t *testing.T) {
	m := NewMonitor(MonitorConfig{LimitBytes: noLimit})
	if usage := m.Usage(); usage < 0 || usage > 1 {
		t.Errorf("Usage() = %f, want a small fraction", usage)
	}
}
