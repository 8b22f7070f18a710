package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"media-optimizer/internal/capability"
	"media-optimizer/internal/database"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/mediatypes"
	"media-optimizer/internal/scheduler"
)

// StatusResponse is the read-only snapshot served to the UI layer.
type StatusResponse struct {
	Mode             string                    `json:"mode"`
	Backends         []capability.Capability   `json:"backends"`
	SupportedFormats []mediatypes.Format       `json:"supportedFormats"`
	Quota            *database.QuotaPeriod     `json:"quota,omitempty"`
	Stats            *database.ConversionStats `json:"stats,omitempty"`
}

// GetStatus returns the capability matrix, current quota window, and
// aggregate savings in one response.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	matrix := h.detector.Detect(r.Context())

	response := StatusResponse{
		Mode:             string(h.config.Mode),
		Backends:         matrix.Snapshot(),
		SupportedFormats: matrix.SupportedFormats(),
	}

	period, err := h.gate.Period(r.Context())
	if err != nil {
		logging.Warn("Quota snapshot failed: %v", err)
	} else {
		response.Quota = period
	}

	stats, err := h.tracker.Stats(r.Context())
	if err != nil {
		logging.Warn("Stats snapshot failed: %v", err)
	} else {
		response.Stats = stats
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, response)
}

// GetStats returns the aggregate conversion savings alone.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tracker.Stats(r.Context())
	if err != nil {
		logging.Error("Stats query failed: %v", err)
		writeJSONError(w, "internal_error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, stats)
}

// bulkRequest is the operator-facing bulk trigger body.
type bulkRequest struct {
	Assets []bulkAsset `json:"assets"`
}

type bulkAsset struct {
	ID         int64  `json:"id"`
	SourcePath string `json:"sourcePath"`
	MimeType   string `json:"mimetype"`
	SourceURL  string `json:"sourceUrl,omitempty"`
}

// TriggerBulkRun dispatches conversions for a batch of assets and
// returns the per-asset accounting. Dispatch is asynchronous: a
// "dispatched" asset is queued or submitted, not finished.
func (h *Handlers) TriggerBulkRun(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSONBody(r, &req); err != nil {
		logging.Warn("Rejected malformed bulk request: %v", err)
		writeJSONError(w, "invalid_payload", http.StatusBadRequest)
		return
	}
	if len(req.Assets) == 0 {
		writeJSONError(w, "empty_batch", http.StatusBadRequest)
		return
	}

	assets := make([]scheduler.Asset, 0, len(req.Assets))
	for _, a := range req.Assets {
		if a.ID <= 0 || a.SourcePath == "" || !h.sourceInsideMediaDir(a.SourcePath) {
			writeJSONError(w, "invalid_asset", http.StatusBadRequest)
			return
		}
		assets = append(assets, scheduler.Asset{
			ID:         a.ID,
			SourcePath: a.SourcePath,
			MimeType:   a.MimeType,
			SourceURL:  a.SourceURL,
		})
	}

	report := h.bulk.Run(r.Context(), assets)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, report)
}

// sourceInsideMediaDir rejects bulk sources outside the configured
// media volume, including dot-dot traversals. An unset media dir
// disables the check (tests and single-volume deployments).
func (h *Handlers) sourceInsideMediaDir(path string) bool {
	if h.config.MediaDir == "" {
		return true
	}
	if !filepath.IsAbs(path) {
		return false
	}
	rel, err := filepath.Rel(h.config.MediaDir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
