package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media-optimizer/internal/mediatypes"
)

// UpsertConversionRecord inserts or supersedes the record for
// (asset_id, format, rendition_size). The write is a single atomic
// upsert; a record is never left half-written.
func (d *Database) UpsertConversionRecord(ctx context.Context, rec *ConversionRecord) error {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	_, err := d.db.ExecContext(opCtx, `
		INSERT INTO conversion_records (asset_id, format, rendition_size, original_bytes, converted_bytes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(asset_id, format, rendition_size) DO UPDATE SET
			original_bytes = excluded.original_bytes,
			converted_bytes = excluded.converted_bytes,
			updated_at = strftime('%s', 'now')
	`, rec.AssetID, string(rec.Format), rec.RenditionSize, rec.OriginalBytes, rec.ConvertedBytes)

	observe("upsert_record", start, err)
	if err != nil {
		return fmt.Errorf("failed to upsert conversion record: %w", err)
	}
	return nil
}

// GetConversionRecord returns the record for a key, or nil when none
// exists.
func (d *Database) GetConversionRecord(ctx context.Context, assetID int64, format mediatypes.Format, size string) (*ConversionRecord, error) {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	rec := &ConversionRecord{}
	var createdAt int64
	err := d.db.QueryRowContext(opCtx, `
		SELECT asset_id, format, rendition_size, original_bytes, converted_bytes, created_at
		FROM conversion_records
		WHERE asset_id = ? AND format = ? AND rendition_size = ?
	`, assetID, string(format), size).Scan(
		&rec.AssetID, &rec.Format, &rec.RenditionSize,
		&rec.OriginalBytes, &rec.ConvertedBytes, &createdAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		observe("get_record", start, nil)
		return nil, nil
	}
	observe("get_record", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversion record: %w", err)
	}

	rec.CreatedAt = time.Unix(createdAt, 0)
	return rec, nil
}

// ListConversionRecords returns all records for an asset.
func (d *Database) ListConversionRecords(ctx context.Context, assetID int64) ([]ConversionRecord, error) {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(opCtx, `
		SELECT asset_id, format, rendition_size, original_bytes, converted_bytes, created_at
		FROM conversion_records
		WHERE asset_id = ?
		ORDER BY format, rendition_size
	`, assetID)
	observe("list_records", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversion records: %w", err)
	}
	defer rows.Close()

	var records []ConversionRecord
	for rows.Next() {
		var rec ConversionRecord
		var createdAt int64
		if err := rows.Scan(&rec.AssetID, &rec.Format, &rec.RenditionSize,
			&rec.OriginalBytes, &rec.ConvertedBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversion record: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteAssetRecords removes all conversion bookkeeping for an asset.
// Used when the asset is deleted from the library.
func (d *Database) DeleteAssetRecords(ctx context.Context, assetID int64) error {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	_, err := d.db.ExecContext(opCtx, `DELETE FROM conversion_records WHERE asset_id = ?`, assetID)
	if err == nil {
		_, err = d.db.ExecContext(opCtx, `DELETE FROM asset_renditions WHERE asset_id = ?`, assetID)
	}
	observe("delete_asset_records", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete asset records: %w", err)
	}
	return nil
}

// ConversionStats aggregates all current conversion records.
func (d *Database) ConversionStats(ctx context.Context) (*ConversionStats, error) {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	stats := &ConversionStats{ByFormat: make(map[string]FormatStats)}

	rows, err := d.db.QueryContext(opCtx, `
		SELECT format, COUNT(*), COALESCE(SUM(original_bytes), 0), COALESCE(SUM(converted_bytes), 0)
		FROM conversion_records
		GROUP BY format
	`)
	observe("conversion_stats", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conversion stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var format string
		var fs FormatStats
		if err := rows.Scan(&format, &fs.Conversions, &fs.OriginalBytes, &fs.ConvertedBytes); err != nil {
			return nil, fmt.Errorf("failed to scan format stats: %w", err)
		}
		stats.ByFormat[format] = fs
		stats.TotalConversions += fs.Conversions
		stats.TotalOriginalBytes += fs.OriginalBytes
		stats.TotalConvertedBytes += fs.ConvertedBytes
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Guard against division by zero: no originals recorded means 0%.
	if stats.TotalOriginalBytes > 0 {
		stats.SavingsPercentage = 100 * (1 - float64(stats.TotalConvertedBytes)/float64(stats.TotalOriginalBytes))
	}
	return stats, nil
}

// RecordOriginalSize upserts the original byte size of one rendition of
// an asset.
func (d *Database) RecordOriginalSize(ctx context.Context, assetID int64, size string, bytes int64) error {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	_, err := d.db.ExecContext(opCtx, `
		INSERT INTO asset_renditions (asset_id, rendition_size, original_bytes)
		VALUES (?, ?, ?)
		ON CONFLICT(asset_id, rendition_size) DO UPDATE SET
			original_bytes = excluded.original_bytes,
			updated_at = strftime('%s', 'now')
	`, assetID, size, bytes)

	observe("record_original_size", start, err)
	if err != nil {
		return fmt.Errorf("failed to record original size: %w", err)
	}
	return nil
}

// OriginalSize returns the recorded original byte size for a rendition.
// The boolean is false when no size is on record.
func (d *Database) OriginalSize(ctx context.Context, assetID int64, size string) (int64, bool, error) {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	var bytes int64
	err := d.db.QueryRowContext(opCtx, `
		SELECT original_bytes FROM asset_renditions
		WHERE asset_id = ? AND rendition_size = ?
	`, assetID, size).Scan(&bytes)

	if errors.Is(err, sql.ErrNoRows) {
		observe("original_size", start, nil)
		return 0, false, nil
	}
	observe("original_size", start, err)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query original size: %w", err)
	}
	return bytes, true, nil
}
