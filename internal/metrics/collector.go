package metrics

import (
	"time"

	"media-optimizer/internal/logging"
)

// CollectTimeout bounds one stats collection pass so a stalled database
// cannot back up the collector goroutine.
const CollectTimeout = 5 * time.Second

// StatsProvider supplies aggregate conversion statistics for the savings
// gauges.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the aggregate values published by the collector.
type Stats struct {
	TotalConversions     int64
	TotalOriginalBytes   int64
	TotalConvertedBytes  int64
	SavingsRatio         float64
	ExternalJobsInFlight int64
}

// Collector periodically collects and updates the savings gauges.
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a collector that refreshes gauges every interval.
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins periodic collection in a background goroutine.
func (c *Collector) Start() {
	go func() {
		// Publish once immediately so gauges are non-empty on the
		// first scrape.
		c.collect()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopChan:
				return
			}
		}
	}()
	logging.Debug("Metrics collector started (interval: %s)", c.interval)
}

// Stop halts periodic collection.
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collect() {
	stats := c.statsProvider.GetStats()

	TrackedConversions.Set(float64(stats.TotalConversions))
	TrackedOriginalBytes.Set(float64(stats.TotalOriginalBytes))
	TrackedConvertedBytes.Set(float64(stats.TotalConvertedBytes))
	SavingsRatio.Set(stats.SavingsRatio)
	ExternalJobsInFlight.Set(float64(stats.ExternalJobsInFlight))
}
