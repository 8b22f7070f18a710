package tracker

import (
	"context"
	"fmt"

	"media-optimizer/internal/database"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediatypes"
	"media-optimizer/internal/metrics"
)

// Tracker records completed conversions and answers savings queries.
// It is a thin layer over the database: all aggregation happens in SQL
// so stats stay consistent with what is actually persisted.
type Tracker struct {
	db *database.Database
}

// New creates a tracker over the given database.
func New(db *database.Database) *Tracker {
	return &Tracker{db: db}
}

// Record stores one completed conversion. Re-recording the same
// (asset, format, size) replaces the row, so re-runs update rather
// than double-count.
func (t *Tracker) Record(ctx context.Context, rec *database.ConversionRecord) error {
	if rec.AssetID <= 0 {
		return fmt.Errorf("conversion record needs an asset id")
	}
	if rec.OriginalBytes <= 0 || rec.ConvertedBytes <= 0 {
		return fmt.Errorf("conversion record needs positive sizes, got original=%d converted=%d",
			rec.OriginalBytes, rec.ConvertedBytes)
	}

	if err := t.db.UpsertConversionRecord(ctx, rec); err != nil {
		return fmt.Errorf("recording conversion: %w", err)
	}

	logging.Debug("Tracked conversion: asset=%d format=%s size=%s %d -> %d bytes",
		rec.AssetID, rec.Format, rec.RenditionSize, rec.OriginalBytes, rec.ConvertedBytes)
	return nil
}

// Lookup returns the record for one artifact, or nil when nothing has
// been tracked for it.
func (t *Tracker) Lookup(ctx context.Context, assetID int64, format mediatypes.Format, size string) (*database.ConversionRecord, error) {
	return t.db.GetConversionRecord(ctx, assetID, format, size)
}

// AssetRecords returns all tracked artifacts for one asset.
func (t *Tracker) AssetRecords(ctx context.Context, assetID int64) ([]database.ConversionRecord, error) {
	return t.db.ListConversionRecords(ctx, assetID)
}

// DeleteAsset drops every tracked artifact and size baseline for an
// asset, removing its contribution from the aggregate stats.
func (t *Tracker) DeleteAsset(ctx context.Context, assetID int64) error {
	if err := t.db.DeleteAssetRecords(ctx, assetID); err != nil {
		return fmt.Errorf("deleting asset records: %w", err)
	}
	logging.Debug("Dropped tracked conversions for asset %d", assetID)
	return nil
}

// Stats aggregates savings across all current records.
func (t *Tracker) Stats(ctx context.Context) (*database.ConversionStats, error) {
	return t.db.ConversionStats(ctx)
}

// GetStats implements metrics.StatsProvider for the periodic collector.
func (t *Tracker) GetStats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), metrics.CollectTimeout)
	defer cancel()

	var out metrics.Stats

	stats, err := t.db.ConversionStats(ctx)
	if err != nil {
		logging.Warn("Stats collection failed: %v", err)
		return out
	}
	out.TotalConversions = stats.TotalConversions
	out.TotalOriginalBytes = stats.TotalOriginalBytes
	out.TotalConvertedBytes = stats.TotalConvertedBytes
	// The gauge wants the 0-1 ratio, the stats API serves 0-100.
	out.SavingsRatio = stats.SavingsPercentage / 100

	inFlight, err := t.db.CountJobsInState(ctx, database.JobSubmitted)
	if err != nil {
		logging.Warn("External job count failed: %v", err)
	} else {
		out.ExternalJobsInFlight = inFlight
	}
	return out
}
