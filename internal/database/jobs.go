package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// UpsertExternalJob records a new submission for an asset, superseding
// any prior job row (the remote service is the source of truth for
// de-duplication).
func (d *Database) UpsertExternalJob(ctx context.Context, assetID int64, accountID string) error {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	_, err := d.db.ExecContext(opCtx, `
		INSERT INTO external_jobs (asset_id, account_id, state, submitted_at, completed_at, cdn_results)
		VALUES (?, ?, ?, strftime('%s', 'now'), NULL, NULL)
		ON CONFLICT(asset_id) DO UPDATE SET
			account_id = excluded.account_id,
			state = excluded.state,
			submitted_at = excluded.submitted_at,
			completed_at = NULL,
			cdn_results = NULL
	`, assetID, accountID, string(JobSubmitted))

	observe("upsert_job", start, err)
	if err != nil {
		return fmt.Errorf("failed to upsert external job: %w", err)
	}
	return nil
}

// GetExternalJob returns the job row for an asset, or nil when the asset
// has never been submitted.
func (d *Database) GetExternalJob(ctx context.Context, assetID int64) (*ExternalJob, error) {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	job := &ExternalJob{}
	var submittedAt int64
	var completedAt sql.NullInt64
	var cdnResults sql.NullString

	err := d.db.QueryRowContext(opCtx, `
		SELECT asset_id, account_id, state, submitted_at, completed_at, cdn_results
		FROM external_jobs
		WHERE asset_id = ?
	`, assetID).Scan(&job.AssetID, &job.AccountID, &job.State, &submittedAt, &completedAt, &cdnResults)

	if errors.Is(err, sql.ErrNoRows) {
		observe("get_job", start, nil)
		return nil, nil
	}
	observe("get_job", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query external job: %w", err)
	}

	job.SubmittedAt = time.Unix(submittedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		job.CompletedAt = &t
	}
	if cdnResults.Valid && cdnResults.String != "" {
		if err := json.Unmarshal([]byte(cdnResults.String), &job.CDNResults); err != nil {
			return nil, fmt.Errorf("failed to decode cdn results: %w", err)
		}
	}
	return job, nil
}

// ErrJobNotFound means a callback referenced an asset that was never
// submitted to the external service.
var ErrJobNotFound = errors.New("no external job for asset")

// FinishExternalJob transitions an asset's job to a terminal state,
// persisting the callback's results in the same atomic write. Returns
// ErrJobNotFound when the asset has no job row.
func (d *Database) FinishExternalJob(ctx context.Context, assetID int64, state JobState, results CDNResults) error {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	var resultsJSON sql.NullString
	if len(results) > 0 {
		encoded, err := json.Marshal(results)
		if err != nil {
			return fmt.Errorf("failed to encode cdn results: %w", err)
		}
		resultsJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	res, err := d.db.ExecContext(opCtx, `
		UPDATE external_jobs
		SET state = ?, completed_at = strftime('%s', 'now'), cdn_results = ?
		WHERE asset_id = ?
	`, string(state), resultsJSON, assetID)

	observe("finish_job", start, err)
	if err != nil {
		return fmt.Errorf("failed to finish external job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read finish result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("asset %d: %w", assetID, ErrJobNotFound)
	}
	return nil
}

// DeleteExternalJob removes the job row for a deleted asset.
func (d *Database) DeleteExternalJob(ctx context.Context, assetID int64) error {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	_, err := d.db.ExecContext(opCtx, `DELETE FROM external_jobs WHERE asset_id = ?`, assetID)
	observe("delete_job", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete external job: %w", err)
	}
	return nil
}

// CountJobsInState returns the number of jobs currently in a state.
func (d *Database) CountJobsInState(ctx context.Context, state JobState) (int64, error) {
	start := time.Now()
	opCtx, cancel := opContext(ctx)
	defer cancel()

	var count int64
	err := d.db.QueryRowContext(opCtx,
		`SELECT COUNT(*) FROM external_jobs WHERE state = ?`, string(state)).Scan(&count)
	observe("count_jobs", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count external jobs: %w", err)
	}
	return count, nil
}
