package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStatsProvider struct {
	stats Stats
}

func (f *fakeStatsProvider) GetStats() Stats {
	return f.stats
}

func TestInitializeMetrics(t *testing.T) {
	// Must not panic and must leave known label combinations registered.
	InitializeMetrics()

	if testutil.ToFloat64(ConversionsTotal.WithLabelValues("vips", "webp", "success")) != 0 {
		t.Error("Expected pre-populated counter to read 0")
	}
	if testutil.ToFloat64(QuotaAdmissionsTotal.WithLabelValues("image", "denied")) != 0 {
		t.Error("Expected pre-populated counter to read 0")
	}
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(WebhookCallbacksTotal.WithLabelValues("completed"))
	WebhookCallbacksTotal.WithLabelValues("completed").Inc()
	after := testutil.ToFloat64(WebhookCallbacksTotal.WithLabelValues("completed"))

	if after != before+1 {
		t.Errorf("Expected counter to increment by 1, got %v -> %v", before, after)
	}
}

func TestCollectorPublishesStats(t *testing.T) {
	provider := &fakeStatsProvider{
		stats: Stats{
			TotalConversions:     12,
			TotalOriginalBytes:   3000,
			TotalConvertedBytes:  1600,
			SavingsRatio:         0.4667,
			ExternalJobsInFlight: 2,
		},
	}

	collector := NewCollector(provider, 10*time.Millisecond)
	collector.Start()
	defer collector.Stop()

	// The collector publishes once immediately on Start; give the
	// goroutine a moment to run.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(TrackedConversions) == 12 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := testutil.ToFloat64(TrackedConversions); got != 12 {
		t.Errorf("Expected TrackedConversions=12, got %v", got)
	}
	if got := testutil.ToFloat64(TrackedOriginalBytes); got != 3000 {
		t.Errorf("Expected TrackedOriginalBytes=3000, got %v", got)
	}
	if got := testutil.ToFloat64(SavingsRatio); got != 0.4667 {
		t.Errorf("Expected SavingsRatio=0.4667, got %v", got)
	}
}
