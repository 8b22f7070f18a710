package database

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"media-optimizer/internal/mediatypes"
)

func testDB(t *testing.T) *Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "optimizer.db")
	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

func TestUpsertConversionRecordSupersedes(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	rec := &ConversionRecord{
		AssetID:        42,
		Format:         mediatypes.FormatWebP,
		RenditionSize:  "full",
		OriginalBytes:  1000,
		ConvertedBytes: 400,
	}
	if err := db.UpsertConversionRecord(ctx, rec); err != nil {
		t.Fatalf("UpsertConversionRecord failed: %v", err)
	}

	// A later conversion for the same key overwrites, not adds.
	rec.ConvertedBytes = 350
	if err := db.UpsertConversionRecord(ctx, rec); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := db.GetConversionRecord(ctx, 42, mediatypes.FormatWebP, "full")
	if err != nil {
		t.Fatalf("GetConversionRecord failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected a record")
	}
	if got.ConvertedBytes != 350 {
		t.Errorf("Expected superseded converted_bytes=350, got %d", got.ConvertedBytes)
	}

	records, err := db.ListConversionRecords(ctx, 42)
	if err != nil {
		t.Fatalf("ListConversionRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record after supersede, got %d", len(records))
	}
}

func TestGetConversionRecordMissing(t *testing.T) {
	db := testDB(t)

	got, err := db.GetConversionRecord(context.Background(), 999, mediatypes.FormatAVIF, "full")
	if err != nil {
		t.Fatalf("GetConversionRecord failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing record, got %+v", got)
	}
}

func TestConversionStatsSavings(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	records := []*ConversionRecord{
		{AssetID: 1, Format: mediatypes.FormatWebP, RenditionSize: "full", OriginalBytes: 1000, ConvertedBytes: 400},
		{AssetID: 2, Format: mediatypes.FormatAVIF, RenditionSize: "full", OriginalBytes: 2000, ConvertedBytes: 1200},
	}
	for _, rec := range records {
		if err := db.UpsertConversionRecord(ctx, rec); err != nil {
			t.Fatalf("UpsertConversionRecord failed: %v", err)
		}
	}

	stats, err := db.ConversionStats(ctx)
	if err != nil {
		t.Fatalf("ConversionStats failed: %v", err)
	}

	if stats.TotalConversions != 2 {
		t.Errorf("Expected 2 conversions, got %d", stats.TotalConversions)
	}
	if stats.TotalOriginalBytes != 3000 {
		t.Errorf("Expected 3000 original bytes, got %d", stats.TotalOriginalBytes)
	}
	if stats.TotalConvertedBytes != 1600 {
		t.Errorf("Expected 1600 converted bytes, got %d", stats.TotalConvertedBytes)
	}

	expected := 100 * (1 - 1600.0/3000.0) // ~46.7%
	if math.Abs(stats.SavingsPercentage-expected) > 1e-9 {
		t.Errorf("Expected savings %.4f, got %.4f", expected, stats.SavingsPercentage)
	}

	if fs, ok := stats.ByFormat["webp"]; !ok || fs.Conversions != 1 {
		t.Errorf("Unexpected webp stats: %+v (present=%v)", fs, ok)
	}
}

func TestConversionStatsEmpty(t *testing.T) {
	db := testDB(t)

	stats, err := db.ConversionStats(context.Background())
	if err != nil {
		t.Fatalf("ConversionStats failed: %v", err)
	}
	if stats.SavingsPercentage != 0 {
		t.Errorf("Expected 0%% savings with no records, got %v", stats.SavingsPercentage)
	}
}

func TestOriginalSizeRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, found, err := db.OriginalSize(ctx, 7, "full"); err != nil || found {
		t.Fatalf("Expected no size on record, got found=%v err=%v", found, err)
	}

	if err := db.RecordOriginalSize(ctx, 7, "full", 123456); err != nil {
		t.Fatalf("RecordOriginalSize failed: %v", err)
	}

	bytes, found, err := db.OriginalSize(ctx, 7, "full")
	if err != nil {
		t.Fatalf("OriginalSize failed: %v", err)
	}
	if !found || bytes != 123456 {
		t.Errorf("Expected (123456, true), got (%d, %v)", bytes, found)
	}
}

func TestDeleteAssetRecords(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	rec := &ConversionRecord{AssetID: 5, Format: mediatypes.FormatWebP, RenditionSize: "full", OriginalBytes: 10, ConvertedBytes: 5}
	if err := db.UpsertConversionRecord(ctx, rec); err != nil {
		t.Fatalf("UpsertConversionRecord failed: %v", err)
	}
	if err := db.RecordOriginalSize(ctx, 5, "full", 10); err != nil {
		t.Fatalf("RecordOriginalSize failed: %v", err)
	}

	if err := db.DeleteAssetRecords(ctx, 5); err != nil {
		t.Fatalf("DeleteAssetRecords failed: %v", err)
	}

	records, err := db.ListConversionRecords(ctx, 5)
	if err != nil {
		t.Fatalf("ListConversionRecords failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records after delete, got %d", len(records))
	}
	if _, found, _ := db.OriginalSize(ctx, 5, "full"); found {
		t.Error("Expected rendition size to be deleted with the asset")
	}
}

func TestExternalJobLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if job, err := db.GetExternalJob(ctx, 42); err != nil || job != nil {
		t.Fatalf("Expected no job, got %+v err=%v", job, err)
	}

	if err := db.UpsertExternalJob(ctx, 42, "acct-1"); err != nil {
		t.Fatalf("UpsertExternalJob failed: %v", err)
	}

	job, err := db.GetExternalJob(ctx, 42)
	if err != nil {
		t.Fatalf("GetExternalJob failed: %v", err)
	}
	if job.State != JobSubmitted {
		t.Errorf("Expected state submitted, got %q", job.State)
	}

	results := CDNResults{
		"full": {
			"webp": {URL: "https://cdn.example.com/42/full.webp", Bytes: 400},
		},
	}
	if err := db.FinishExternalJob(ctx, 42, JobCompleted, results); err != nil {
		t.Fatalf("FinishExternalJob failed: %v", err)
	}

	job, err = db.GetExternalJob(ctx, 42)
	if err != nil {
		t.Fatalf("GetExternalJob failed: %v", err)
	}
	if job.State != JobCompleted {
		t.Errorf("Expected state completed, got %q", job.State)
	}
	if job.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}
	if got := job.CDNResults["full"]["webp"].Bytes; got != 400 {
		t.Errorf("Expected persisted cdn result bytes 400, got %d", got)
	}
}

func TestExternalJobSupersede(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertExternalJob(ctx, 42, "acct-1"); err != nil {
		t.Fatalf("UpsertExternalJob failed: %v", err)
	}
	if err := db.FinishExternalJob(ctx, 42, JobFailed, nil); err != nil {
		t.Fatalf("FinishExternalJob failed: %v", err)
	}

	// A new submission resets the row to submitted.
	if err := db.UpsertExternalJob(ctx, 42, "acct-1"); err != nil {
		t.Fatalf("Second UpsertExternalJob failed: %v", err)
	}

	job, err := db.GetExternalJob(ctx, 42)
	if err != nil {
		t.Fatalf("GetExternalJob failed: %v", err)
	}
	if job.State != JobSubmitted {
		t.Errorf("Expected superseding submission to reset state, got %q", job.State)
	}
	if job.CompletedAt != nil {
		t.Error("Expected CompletedAt to be cleared by supersede")
	}
	if job.CDNResults != nil {
		t.Error("Expected CDN results to be cleared by supersede")
	}
}

func TestFinishExternalJobUnknownAsset(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	err := db.FinishExternalJob(ctx, 99, JobCompleted, nil)
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Expected ErrJobNotFound for unsubmitted asset, got %v", err)
	}
}

func TestCountJobsInState(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		if err := db.UpsertExternalJob(ctx, id, "acct-1"); err != nil {
			t.Fatalf("UpsertExternalJob failed: %v", err)
		}
	}
	if err := db.FinishExternalJob(ctx, 2, JobCompleted, nil); err != nil {
		t.Fatalf("FinishExternalJob failed: %v", err)
	}

	submitted, err := db.CountJobsInState(ctx, JobSubmitted)
	if err != nil {
		t.Fatalf("CountJobsInState failed: %v", err)
	}
	if submitted != 2 {
		t.Errorf("Expected 2 submitted jobs, got %d", submitted)
	}
}

func TestAdmitQuotaLimit(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now()
	limits := QuotaLimits{Images: 3, Videos: 1}
	window := time.Hour

	// Exactly N admissions succeed; the (N+1)th is denied.
	for i := 0; i < 3; i++ {
		admitted, err := db.AdmitQuota(ctx, mediatypes.KindImage, now, limits, window)
		if err != nil {
			t.Fatalf("AdmitQuota failed on call %d: %v", i+1, err)
		}
		if !admitted {
			t.Fatalf("Expected admission %d to succeed", i+1)
		}
	}

	admitted, err := db.AdmitQuota(ctx, mediatypes.KindImage, now, limits, window)
	if err != nil {
		t.Fatalf("AdmitQuota failed: %v", err)
	}
	if admitted {
		t.Error("Expected 4th image admission to be denied")
	}

	// Video quota is tracked independently.
	admitted, err = db.AdmitQuota(ctx, mediatypes.KindVideo, now, limits, window)
	if err != nil {
		t.Fatalf("AdmitQuota failed: %v", err)
	}
	if !admitted {
		t.Error("Expected video admission to succeed")
	}
}

func TestAdmitQuotaRollover(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	limits := QuotaLimits{Images: 1, Videos: 1}
	window := time.Hour

	start := time.Now()
	if admitted, err := db.AdmitQuota(ctx, mediatypes.KindImage, start, limits, window); err != nil || !admitted {
		t.Fatalf("Expected first admission, got admitted=%v err=%v", admitted, err)
	}
	if admitted, err := db.AdmitQuota(ctx, mediatypes.KindImage, start, limits, window); err != nil || admitted {
		t.Fatalf("Expected denial at limit, got admitted=%v err=%v", admitted, err)
	}

	// After the window ends, admission resets.
	later := start.Add(2 * time.Hour)
	admitted, err := db.AdmitQuota(ctx, mediatypes.KindImage, later, limits, window)
	if err != nil {
		t.Fatalf("AdmitQuota after rollover failed: %v", err)
	}
	if !admitted {
		t.Error("Expected admission after window rollover")
	}

	period, err := db.CurrentQuotaPeriod(ctx)
	if err != nil {
		t.Fatalf("CurrentQuotaPeriod failed: %v", err)
	}
	if period.ImagesUsed != 1 {
		t.Errorf("Expected fresh window with 1 used, got %d", period.ImagesUsed)
	}
	if !period.WindowStart.After(start) {
		t.Error("Expected new window to start after the old one")
	}
}

func TestAdmitQuotaConcurrent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now()
	limits := QuotaLimits{Images: 5, Videos: 0}
	window := time.Hour

	const callers = 20
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		go func() {
			admitted, err := db.AdmitQuota(ctx, mediatypes.KindImage, now, limits, window)
			if err != nil {
				t.Errorf("AdmitQuota failed: %v", err)
			}
			results <- admitted
		}()
	}

	admittedCount := 0
	for i := 0; i < callers; i++ {
		if <-results {
			admittedCount++
		}
	}

	// No race may admit past the limit.
	if admittedCount != 5 {
		t.Errorf("Expected exactly 5 admissions under concurrency, got %d", admittedCount)
	}
}

func TestCurrentQuotaPeriodEmpty(t *testing.T) {
	db := testDB(t)

	period, err := db.CurrentQuotaPeriod(context.Background())
	if err != nil {
		t.Fatalf("CurrentQuotaPeriod failed: %v", err)
	}
	if period != nil {
		t.Errorf("Expected nil period before first admission, got %+v", period)
	}
}
