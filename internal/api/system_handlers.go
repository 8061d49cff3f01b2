package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sentinai/netguard/internal/storage"
)

// APIVersion is reported by the health endpoint.
const APIVersion = "2.0.0"

// SystemHandler exposes health probing and the operator controls over the
// persistence gateway: manual mode overrides and on-demand reconciliation.
type SystemHandler struct {
	gateway    *storage.Gateway
	reconciler *storage.Reconciler
	logger     *slog.Logger
}

// NewSystemHandler creates a new system-control handler.
func NewSystemHandler(gateway *storage.Gateway, reconciler *storage.Reconciler, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		gateway:    gateway,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Health handles GET /api/health. It is unauthenticated so load balancers
// and the frontend can probe it.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mode := "production"
	if h.gateway.Mode() == storage.ModeLocal {
		mode = "resiliency_fallback"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "online",
		"api_version": APIVersion,
		"mode":        mode,
	}, h.logger)
}

// ModeRequest names the backend the operator wants authoritative.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// SetMode handles POST /api/system/mode.
func (h *SystemHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.gateway.SetMode(r.Context(), strings.ToLower(req.Mode)); err != nil {
		if errors.Is(err, storage.ErrUnreachable) {
			http.Error(w, "Cloud backend unreachable", http.StatusBadGateway)
			return
		}
		http.Error(w, "Unknown mode, expected 'local' or 'cloud'", http.StatusBadRequest)
		return
	}

	h.logger.Info("operator mode override applied", "mode", req.Mode)

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mode":   string(h.gateway.Mode()),
	}, h.logger)
}

// Sync handles POST /api/system/sync.
func (h *SystemHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := h.reconciler.Run(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrUnreachable) {
			http.Error(w, "Remote store unreachable", http.StatusBadGateway)
			return
		}
		h.logger.Error("reconciliation failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report, h.logger)
}
