package quota

import (
	"context"
	"fmt"
	"time"

	"media-optimizer/internal/database"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediatypes"
	"media-optimizer/internal/metrics"
)

// Gate meters conversion dispatches against per-window limits, one
// counter per media kind. Admission is check-and-increment in a single
// database transaction, so concurrent dispatchers cannot jointly
// overshoot a limit.
type Gate struct {
	db     *database.Database
	limits database.QuotaLimits
	window time.Duration

	// now is swappable for window rollover tests.
	now func() time.Time
}

// New creates a gate with the configured limits and window length.
func New(db *database.Database, imageLimit, videoLimit int64, window time.Duration) *Gate {
	return &Gate{
		db:     db,
		limits: database.QuotaLimits{Images: imageLimit, Videos: videoLimit},
		window: window,
		now:    time.Now,
	}
}

// Admit consumes one unit of quota for the given kind. It returns false
// with a nil error when the window is exhausted; denial is an expected
// outcome, not a failure.
func (g *Gate) Admit(ctx context.Context, kind mediatypes.Kind) (bool, error) {
	switch kind {
	case mediatypes.KindImage, mediatypes.KindVideo:
	default:
		return false, fmt.Errorf("quota: unmetered kind %q", kind)
	}

	admitted, err := g.db.AdmitQuota(ctx, kind, g.now(), g.limits, g.window)
	if err != nil {
		metrics.QuotaAdmissionsTotal.WithLabelValues(string(kind), "error").Inc()
		return false, fmt.Errorf("quota admission: %w", err)
	}

	outcome := "admitted"
	if !admitted {
		outcome = "denied"
		logging.Debug("Quota denied for %s conversion (limit reached)", kind)
	}
	metrics.QuotaAdmissionsTotal.WithLabelValues(string(kind), outcome).Inc()

	g.publishUsage(ctx)
	return admitted, nil
}

// Period returns a snapshot of the current usage window, or nil when no
// admission has happened yet.
func (g *Gate) Period(ctx context.Context) (*database.QuotaPeriod, error) {
	return g.db.CurrentQuotaPeriod(ctx)
}

// publishUsage refreshes the usage gauges after an admission attempt.
func (g *Gate) publishUsage(ctx context.Context) {
	period, err := g.db.CurrentQuotaPeriod(ctx)
	if err != nil || period == nil {
		return
	}
	metrics.QuotaUsed.WithLabelValues(string(mediatypes.KindImage)).Set(float64(period.ImagesUsed))
	metrics.QuotaUsed.WithLabelValues(string(mediatypes.KindVideo)).Set(float64(period.VideosUsed))
}
