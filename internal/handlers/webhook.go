package handlers

import (
	"errors"
	"net/http"

	"media-optimizer/internal/logging"
	"media-optimizer/internal/remote"
)

// ConversionWebhook receives completion callbacks from the external
// conversion service. The body is parsed and validated before any state
// is touched; auth is by account id match only, since the remote side
// carries no other credentials.
func (h *Handlers) ConversionWebhook(w http.ResponseWriter, r *http.Request) {
	event, err := remote.ParseEvent(r.Body)
	if err != nil {
		logging.Warn("Rejected malformed webhook: %v", err)
		writeJSONError(w, "invalid_payload", http.StatusBadRequest)
		return
	}

	state, err := h.reconciler.Reconcile(r.Context(), event)
	if err != nil {
		if errors.Is(err, remote.ErrAccountMismatch) {
			writeJSONError(w, "account_mismatch", http.StatusForbidden)
			return
		}
		if errors.Is(err, remote.ErrUnknownJob) {
			writeJSONError(w, "unknown_job", http.StatusBadRequest)
			return
		}
		logging.Error("Webhook reconciliation for asset %d failed: %v", event.AssetID(), err)
		writeJSONError(w, "internal_error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"success": true,
		"state":   state,
	})
}
