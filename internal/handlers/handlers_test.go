package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"media-optimizer/internal/capability"
	"media-optimizer/internal/convert"
	"media-optimizer/internal/database"
	"media-optimizer/internal/mediatypes"
	"media-optimizer/internal/quota"
	"media-optimizer/internal/remote"
	"media-optimizer/internal/scheduler"
	"media-optimizer/internal/startup"
	"media-optimizer/internal/tracker"
)

const testAccountID = "4f9d66f3-75a2-48c1-9d93-1f7ca5d2d001"

type stubProbe struct {
	row capability.Capability
}

func (p *stubProbe) Name() string { return p.row.Backend }

func (p *stubProbe) Probe(_ context.Context) capability.Capability { return p.row }

type fixture struct {
	handlers *Handlers
	router   *mux.Router
	db       *database.Database
	tracker  *tracker.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	db, err := database.New(context.Background(), filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})

	config := &startup.Config{
		MediaDir:       "/media",
		ConvertDir:     filepath.Join(dir, "converted"),
		ImageFormats:   []mediatypes.Format{mediatypes.FormatWebP},
		VideoFormats:   []mediatypes.Format{mediatypes.FormatAV1},
		Mode:           startup.ModeHybrid,
		RenditionSizes: []startup.RenditionSize{{Name: "full", MaxWidth: 0}},
		AccountID:      testAccountID,
	}

	detector := capability.NewDetectorWithProbes(&stubProbe{row: capability.Capability{
		Backend:   capability.BackendNative,
		Kind:      mediatypes.KindImage,
		Available: true,
		Formats:   map[mediatypes.Format]bool{mediatypes.FormatWebP: true},
	}})

	tr := tracker.New(db)
	gate := quota.New(db, 100, 100, time.Hour)
	reconciler := remote.NewReconciler(db, tr, testAccountID)
	sched := scheduler.New(config, convert.NewPipeline(detector), tr, db, nil)
	bulk := scheduler.NewBulk(sched, detector, gate, nil)

	h := New(config, db, detector, tr, gate, reconciler, bulk)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	return &fixture{handlers: h, router: router, db: db, tracker: tr}
}

func (f *fixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func TestWebhookMalformedBody(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodPost, "/webhook/conversion", "not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["error"] != "invalid_payload" {
		t.Errorf("Expected invalid_payload error code, got %v", resp["error"])
	}
}

func TestWebhookAccountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.db.UpsertExternalJob(ctx, 42, testAccountID); err != nil {
		t.Fatalf("UpsertExternalJob failed: %v", err)
	}

	body := `{"account_id": "00000000-0000-0000-0000-000000000000", "attachment_id": "42", "cdn_urls": {}}`
	w := f.request(t, http.MethodPost, "/webhook/conversion", body)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", w.Code)
	}

	job, err := f.db.GetExternalJob(ctx, 42)
	if err != nil {
		t.Fatalf("GetExternalJob failed: %v", err)
	}
	if job.State != database.JobSubmitted {
		t.Errorf("Rejected webhook must not change job state, got %s", job.State)
	}
}

func TestWebhookCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.db.UpsertExternalJob(ctx, 42, testAccountID); err != nil {
		t.Fatalf("UpsertExternalJob failed: %v", err)
	}
	if err := f.db.RecordOriginalSize(ctx, 42, "full", 1000); err != nil {
		t.Fatalf("RecordOriginalSize failed: %v", err)
	}

	body := `{"account_id": "` + testAccountID + `", "attachment_id": "42",
		"cdn_urls": {"full": {"webp": {"url": "https://cdn/a.webp", "filesize": 400}}}}`
	w := f.request(t, http.MethodPost, "/webhook/conversion", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["success"] != true {
		t.Errorf("Expected success true, got %v", resp)
	}

	rec, err := f.tracker.Lookup(ctx, 42, mediatypes.FormatWebP, "full")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec == nil || rec.ConvertedBytes != 400 {
		t.Errorf("Expected tracked conversion with 400 bytes, got %+v", rec)
	}
}

func TestWebhookUnknownJobRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Asset 42 was never submitted; a valid-looking callback must bounce.
	body := `{"account_id": "` + testAccountID + `", "attachment_id": "42",
		"cdn_urls": {"full": {"webp": {"url": "https://cdn/a.webp", "filesize": 400}}}}`
	w := f.request(t, http.MethodPost, "/webhook/conversion", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["error"] != "unknown_job" {
		t.Errorf("Expected unknown_job error code, got %v", resp["error"])
	}

	rec, err := f.tracker.Lookup(ctx, 42, mediatypes.FormatWebP, "full")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec != nil {
		t.Errorf("Stray callback must not create tracking rows, got %+v", rec)
	}
}

func TestWebhookEmptyResultsFailsJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.db.UpsertExternalJob(ctx, 42, testAccountID); err != nil {
		t.Fatalf("UpsertExternalJob failed: %v", err)
	}

	body := `{"account_id": "` + testAccountID + `", "attachment_id": "42", "cdn_urls": {}}`
	w := f.request(t, http.MethodPost, "/webhook/conversion", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for a valid failure report, got %d", w.Code)
	}

	job, err := f.db.GetExternalJob(ctx, 42)
	if err != nil {
		t.Fatalf("GetExternalJob failed: %v", err)
	}
	if job.State != database.JobFailed {
		t.Errorf("Expected failed state, got %s", job.State)
	}
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var status StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse status: %v", err)
	}
	if status.Mode != "hybrid" {
		t.Errorf("Expected hybrid mode, got %s", status.Mode)
	}
	if len(status.Backends) != 1 || status.Backends[0].Backend != capability.BackendNative {
		t.Errorf("Expected the native backend row, got %+v", status.Backends)
	}
	if len(status.SupportedFormats) != 1 || status.SupportedFormats[0] != mediatypes.FormatWebP {
		t.Errorf("Expected webp supported, got %v", status.SupportedFormats)
	}
}

func TestGetStatsSavingsMath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	records := []database.ConversionRecord{
		{AssetID: 1, Format: mediatypes.FormatWebP, RenditionSize: "full", OriginalBytes: 1000, ConvertedBytes: 400},
		{AssetID: 2, Format: mediatypes.FormatAVIF, RenditionSize: "full", OriginalBytes: 2000, ConvertedBytes: 1200},
	}
	for i := range records {
		if err := f.tracker.Record(ctx, &records[i]); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	w := f.request(t, http.MethodGet, "/api/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var stats database.ConversionStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to parse stats: %v", err)
	}
	// 1 - 1600/3000 = 46.67%
	if stats.SavingsPercentage < 46.6 || stats.SavingsPercentage > 46.7 {
		t.Errorf("Expected savings around 46.67%%, got %f", stats.SavingsPercentage)
	}
}

func TestBulkEndpointValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"not json", "nope", http.StatusBadRequest},
		{"empty batch", `{"assets": []}`, http.StatusBadRequest},
		{"missing source path", `{"assets": [{"id": 1}]}`, http.StatusBadRequest},
		{"missing id", `{"assets": [{"sourcePath": "/media/a.png"}]}`, http.StatusBadRequest},
		{"source outside media dir", `{"assets": [{"id": 1, "sourcePath": "/etc/passwd"}]}`, http.StatusBadRequest},
		{"dot-dot traversal", `{"assets": [{"id": 1, "sourcePath": "/media/../etc/passwd"}]}`, http.StatusBadRequest},
		{"relative source path", `{"assets": [{"id": 1, "sourcePath": "a.png"}]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.request(t, http.MethodPost, "/api/convert/bulk", tt.body)
			if w.Code != tt.code {
				t.Errorf("Expected %d, got %d", tt.code, w.Code)
			}
		})
	}
}

func TestBulkEndpointReportsOutcome(t *testing.T) {
	f := newFixture(t)

	// Unconvertible asset counts as skipped; the endpoint still
	// succeeds.
	body := `{"assets": [{"id": 1, "sourcePath": "/media/notes.txt", "mimetype": "text/plain"}]}`
	w := f.request(t, http.MethodPost, "/api/convert/bulk", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var report scheduler.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to parse report: %v", err)
	}
	if report.Skipped != 1 {
		t.Errorf("Expected 1 skipped, got %+v", report)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/health", "/healthz", "/livez", "/readyz"} {
		w := f.request(t, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Errorf("Expected 200 from %s, got %d", path, w.Code)
		}
	}

	w := f.request(t, http.MethodGet, "/health", "")
	var health HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}
	if health.Status != statusHealthy {
		t.Errorf("Expected healthy with an available backend, got %s", health.Status)
	}
	if health.AvailableBackends != 1 {
		t.Errorf("Expected 1 available backend, got %d", health.AvailableBackends)
	}
}

func TestVersionEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodGet, "/version", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var info startup.BuildInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to parse version: %v", err)
	}
	if info.GoVersion == "" {
		t.Error("Expected build info with a Go version")
	}
}
