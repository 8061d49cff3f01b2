package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON encodes v as the response body. Encode failures are logged, not
// surfaced; the status line is already on the wire.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
