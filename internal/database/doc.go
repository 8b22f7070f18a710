// Package database manages all SQLite persistence for the media
// optimizer: per-asset conversion records, original rendition sizes,
// external processing jobs, and metered quota windows.
//
// Every write is a single atomic upsert or a short transaction keyed by
// the row's natural unique key, so no record is ever observable in a
// half-written state. The database uses WAL mode with a busy timeout so
// webhook callbacks and the bulk scheduler can write concurrently.
package database
