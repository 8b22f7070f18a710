package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media-optimizer/internal/mediatypes"
)

// QuotaLimits carries the configured per-window conversion limits.
type QuotaLimits struct {
	Images int64
	Videos int64
}

// AdmitQuota performs the atomic check-and-increment for one conversion
// of the given kind. If the current window has expired (or none exists),
// it first rolls over to a fresh window with zeroed counters. The
// increment happens in a single conditional UPDATE inside the same
// transaction, so concurrent callers can never be admitted past the
// limit together.
func (d *Database) AdmitQuota(ctx context.Context, kind mediatypes.Kind, now time.Time, limits QuotaLimits, window time.Duration) (bool, error) {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	tx, err := d.db.BeginTx(opCtx, nil)
	if err != nil {
		observe("admit_quota", start, err)
		return false, fmt.Errorf("failed to begin quota transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
		}
	}()

	if err = rolloverLocked(opCtx, tx, now, limits, window); err != nil {
		observe("admit_quota", start, err)
		return false, err
	}

	var usedColumn, limitColumn string
	switch kind {
	case mediatypes.KindImage:
		usedColumn, limitColumn = "images_used", "images_limit"
	case mediatypes.KindVideo:
		usedColumn, limitColumn = "videos_used", "videos_limit"
	default:
		err = fmt.Errorf("unknown quota kind %q", kind)
		observe("admit_quota", start, err)
		return false, err
	}

	// Check-and-increment in one statement: the WHERE clause refuses
	// the increment at the limit.
	query := fmt.Sprintf(`
		UPDATE quota_periods
		SET %s = %s + 1
		WHERE id = (SELECT id FROM quota_periods ORDER BY window_end DESC LIMIT 1)
		  AND %s < %s
	`, usedColumn, usedColumn, usedColumn, limitColumn)

	var result sql.Result
	result, err = tx.ExecContext(opCtx, query)
	if err != nil {
		observe("admit_quota", start, err)
		return false, fmt.Errorf("failed to increment quota: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		observe("admit_quota", start, err)
		return false, fmt.Errorf("failed to read quota result: %w", err)
	}

	if err = tx.Commit(); err != nil {
		observe("admit_quota", start, err)
		return false, fmt.Errorf("failed to commit quota transaction: %w", err)
	}

	observe("admit_quota", start, nil)
	return rows == 1, nil
}

// rolloverLocked ensures a live quota window exists, inserting the next
// window when the latest one has expired. Runs inside the admission
// transaction.
func rolloverLocked(ctx context.Context, tx *sql.Tx, now time.Time, limits QuotaLimits, window time.Duration) error {
	var windowEnd int64
	err := tx.QueryRowContext(ctx,
		`SELECT window_end FROM quota_periods ORDER BY window_end DESC LIMIT 1`).Scan(&windowEnd)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First use: open the initial window.
	case err != nil:
		return fmt.Errorf("failed to query quota window: %w", err)
	case now.Unix() < windowEnd:
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quota_periods (window_start, window_end, images_used, videos_used, images_limit, videos_limit)
		VALUES (?, ?, 0, 0, ?, ?)
	`, now.Unix(), now.Add(window).Unix(), limits.Images, limits.Videos)
	if err != nil {
		return fmt.Errorf("failed to roll over quota window: %w", err)
	}
	return nil
}

// CurrentQuotaPeriod returns a snapshot of the latest quota window, or
// nil when no window has been opened yet.
func (d *Database) CurrentQuotaPeriod(ctx context.Context) (*QuotaPeriod, error) {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	period := &QuotaPeriod{}
	var windowStart, windowEnd int64
	err := d.db.QueryRowContext(opCtx, `
		SELECT window_start, window_end, images_used, videos_used, images_limit, videos_limit
		FROM quota_periods
		ORDER BY window_end DESC
		LIMIT 1
	`).Scan(&windowStart, &windowEnd, &period.ImagesUsed, &period.VideosUsed,
		&period.ImagesLimit, &period.VideosLimit)

	if errors.Is(err, sql.ErrNoRows) {
		observe("current_quota", start, nil)
		return nil, nil
	}
	observe("current_quota", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query quota period: %w", err)
	}

	period.WindowStart = time.Unix(windowStart, 0)
	period.WindowEnd = time.Unix(windowEnd, 0)
	return period, nil
}
