package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"media-optimizer/internal/logging"
)

// maxBodySize bounds request bodies; the API accepts only small JSON
// payloads.
const maxBodySize = 1 << 20

// decodeJSONBody decodes a bounded JSON request body into v.
func decodeJSONBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
}

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status
// code. The code field is a stable machine-readable identifier.
func writeJSONError(w http.ResponseWriter, code string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]interface{}{
		"success": false,
		"error":   code,
	})
}
