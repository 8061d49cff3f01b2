package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sentinai/netguard/internal/incidents"
	"github.com/sentinai/netguard/internal/storage"
)

const defaultFeedLimit = 100

// ThreatHandler serves the incident feed and triage actions.
type ThreatHandler struct {
	incidents *incidents.Service
	logger    *slog.Logger
}

// NewThreatHandler creates a new incident-feed handler.
func NewThreatHandler(service *incidents.Service, logger *slog.Logger) *ThreatHandler {
	return &ThreatHandler{
		incidents: service,
		logger:    logger,
	}
}

// List handles GET /api/threats.
func (h *ThreatHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	limit := defaultFeedLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	feed, err := h.incidents.ListEvents(r.Context(), q.Get("status"), q.Get("start_time"), q.Get("end_time"), limit)
	if err != nil {
		h.logger.Error("failed to list incidents", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, feed, h.logger)
}

// Actions dispatches POST /api/threats/{id}/resolve and
// POST /api/threats/{id}/block.
func (h *ThreatHandler) Actions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Path shape: /api/threats/{id}/{action}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[2] == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	id, action := parts[2], parts[3]

	switch action {
	case "resolve":
		h.resolve(w, r, id)
	case "block":
		h.block(w, r, id)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *ThreatHandler) resolve(w http.ResponseWriter, r *http.Request, id string) {
	event, err := h.incidents.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Threat not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to resolve incident", "id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, event, h.logger)
}

func (h *ThreatHandler) block(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.incidents.Block(r.Context(), id); err != nil {
		h.logger.Error("failed to acknowledge block", "id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "block acknowledged", "id": id}, h.logger)
}
