package tracker

import (
	"context"
	"path/filepath"
	"testing"

	"media-optimizer/internal/database"
	"media-optimizer/internal/mediatypes"
)

func testTracker(t *testing.T) *Tracker {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return New(db)
}

func TestRecordAndLookup(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	rec := &database.ConversionRecord{
		AssetID:        42,
		Format:         mediatypes.FormatWebP,
		RenditionSize:  "full",
		OriginalBytes:  1000,
		ConvertedBytes: 400,
	}
	if err := tr.Record(ctx, rec); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := tr.Lookup(ctx, 42, mediatypes.FormatWebP, "full")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected a record")
	}
	if got.ConvertedBytes != 400 {
		t.Errorf("Expected 400 converted bytes, got %d", got.ConvertedBytes)
	}

	missing, err := tr.Lookup(ctx, 42, mediatypes.FormatAVIF, "full")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for untracked format")
	}
}

func TestRecordValidation(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  database.ConversionRecord
	}{
		{"missing asset id", database.ConversionRecord{Format: mediatypes.FormatWebP, RenditionSize: "full", OriginalBytes: 10, ConvertedBytes: 5}},
		{"zero original bytes", database.ConversionRecord{AssetID: 1, Format: mediatypes.FormatWebP, RenditionSize: "full", ConvertedBytes: 5}},
		{"zero converted bytes", database.ConversionRecord{AssetID: 1, Format: mediatypes.FormatWebP, RenditionSize: "full", OriginalBytes: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			if err := tr.Record(ctx, &rec); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestRecordReplacesOnRerun(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	rec := &database.ConversionRecord{
		AssetID: 7, Format: mediatypes.FormatAVIF, RenditionSize: "large",
		OriginalBytes: 2000, ConvertedBytes: 900,
	}
	if err := tr.Record(ctx, rec); err != nil {
		t.Fatalf("First record failed: %v", err)
	}

	rec.ConvertedBytes = 850
	if err := tr.Record(ctx, rec); err != nil {
		t.Fatalf("Second record failed: %v", err)
	}

	stats, err := tr.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalConversions != 1 {
		t.Errorf("Re-recording should not double-count, got %d conversions", stats.TotalConversions)
	}
	if stats.TotalConvertedBytes != 850 {
		t.Errorf("Expected updated size 850, got %d", stats.TotalConvertedBytes)
	}
}

func TestDeleteAssetRemovesContribution(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	for _, assetID := range []int64{1, 2} {
		rec := &database.ConversionRecord{
			AssetID: assetID, Format: mediatypes.FormatWebP, RenditionSize: "full",
			OriginalBytes: 1000, ConvertedBytes: 500,
		}
		if err := tr.Record(ctx, rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	if err := tr.DeleteAsset(ctx, 1); err != nil {
		t.Fatalf("DeleteAsset failed: %v", err)
	}

	stats, err := tr.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalConversions != 1 {
		t.Errorf("Expected 1 remaining conversion, got %d", stats.TotalConversions)
	}
	if stats.TotalOriginalBytes != 1000 {
		t.Errorf("Expected 1000 remaining original bytes, got %d", stats.TotalOriginalBytes)
	}
}

func TestGetStatsForCollector(t *testing.T) {
	tr := testTracker(t)
	ctx := context.Background()

	rec := &database.ConversionRecord{
		AssetID: 3, Format: mediatypes.FormatWebP, RenditionSize: "full",
		OriginalBytes: 1000, ConvertedBytes: 250,
	}
	if err := tr.Record(ctx, rec); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	stats := tr.GetStats()
	if stats.TotalConversions != 1 {
		t.Errorf("Expected 1 conversion, got %d", stats.TotalConversions)
	}
	if stats.SavingsRatio != 0.75 {
		t.Errorf("Expected savings ratio 0.75, got %f", stats.SavingsRatio)
	}
	if stats.ExternalJobsInFlight != 0 {
		t.Errorf("Expected no external jobs, got %d", stats.ExternalJobsInFlight)
	}
}
