package api

import (
	"log/slog"
	"net/http"

	"github.com/sentinai/netguard/internal/analytics"
)

// StatsHandler serves dashboard aggregations.
type StatsHandler struct {
	stats  *analytics.Service
	logger *slog.Logger
}

// NewStatsHandler creates a new aggregation handler.
func NewStatsHandler(stats *analytics.Service, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		stats:  stats,
		logger: logger,
	}
}

// DashboardSummary handles GET /api/dashboard/summary.
func (h *StatsHandler) DashboardSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := h.stats.DashboardSummary(r.Context())
	if err != nil {
		h.logger.Error("failed to build dashboard summary", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary, h.logger)
}

// AttackTypes handles GET /api/stats/attack-types.
func (h *StatsHandler) AttackTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.stats.VectorHistogram(r.Context()), h.logger)
}

// Geo handles GET /api/stats/geo.
func (h *StatsHandler) Geo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.stats.GeoHistogram(r.Context()), h.logger)
}

// RiskSummary handles GET /api/stats/risk-summary.
func (h *StatsHandler) RiskSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.stats.SeverityHistogram(r.Context()), h.logger)
}

// CriticalAlerts handles GET /api/alerts/critical.
func (h *StatsHandler) CriticalAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	alerts, err := h.stats.PrioritySignals(r.Context())
	if err != nil {
		h.logger.Error("failed to fetch priority signals", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, alerts, h.logger)
}
