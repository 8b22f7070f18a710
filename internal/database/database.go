package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-optimizer/internal/logging"
	"media-optimizer/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database manages all persistence for the media optimizer: conversion
// records, external jobs, quota periods, and original rendition sizes.
type Database struct {
	db     *sql.DB
	dbPath string
}

// New creates a new Database instance.
// dbPath is the full path to the database file; the parent directory
// must already exist and be writable (startup.LoadConfig validates it).
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	// WAL mode and a busy timeout prevent "database is locked" errors
	// when webhook callbacks and the scheduler write concurrently.
	// _txlock=immediate makes transactions take the write lock up
	// front, so the quota check-and-increment cannot deadlock on a
	// deferred lock upgrade.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	-- Per-asset conversion bookkeeping. A later conversion for the same
	-- (asset, format, rendition) supersedes the prior row.
	CREATE TABLE IF NOT EXISTS conversion_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id INTEGER NOT NULL,
		format TEXT NOT NULL,
		rendition_size TEXT NOT NULL,
		original_bytes INTEGER NOT NULL,
		converted_bytes INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		UNIQUE(asset_id, format, rendition_size)
	);

	CREATE INDEX IF NOT EXISTS idx_records_asset ON conversion_records(asset_id);
	CREATE INDEX IF NOT EXISTS idx_records_format ON conversion_records(format);

	-- Original (unconverted) byte sizes per rendition, recorded before
	-- dispatch so webhook completions have a baseline to report against.
	CREATE TABLE IF NOT EXISTS asset_renditions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id INTEGER NOT NULL,
		rendition_size TEXT NOT NULL,
		original_bytes INTEGER NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		UNIQUE(asset_id, rendition_size)
	);

	-- External processing jobs, at most one row per asset. The row is
	-- superseded wholesale by a newer submission.
	CREATE TABLE IF NOT EXISTS external_jobs (
		asset_id INTEGER PRIMARY KEY,
		account_id TEXT NOT NULL,
		state TEXT NOT NULL,
		submitted_at INTEGER NOT NULL,
		completed_at INTEGER,
		cdn_results TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_state ON external_jobs(state);

	-- Metered usage windows.
	CREATE TABLE IF NOT EXISTS quota_periods (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		window_start INTEGER NOT NULL,
		window_end INTEGER NOT NULL,
		images_used INTEGER NOT NULL DEFAULT 0,
		videos_used INTEGER NOT NULL DEFAULT 0,
		images_limit INTEGER NOT NULL,
		videos_limit INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quota_window_end ON quota_periods(window_end);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// observe records query metrics the way every operation in this package
// reports them.
func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// opContext derives a per-operation timeout context.
func opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultTimeout)
}
