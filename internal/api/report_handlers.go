package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sentinai/netguard/internal/reporting"
)

// ReportHandler serves daily security report generation and retrieval.
type ReportHandler struct {
	reports *reporting.Service
	logger  *slog.Logger
}

// NewReportHandler creates a new report handler.
func NewReportHandler(reports *reporting.Service, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		logger:  logger,
	}
}

// GenerateRequest optionally names the day to report on; empty means today.
type GenerateRequest struct {
	Date string `json:"date"`
}

// Generate handles POST /api/reports/generate.
func (h *ReportHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req GenerateRequest
	// An empty body means "today"; anything present must decode.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	report, err := h.reports.Generate(r.Context(), req.Date)
	if err != nil {
		h.logger.Error("failed to generate report", "date", req.Date, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report, h.logger)
}

// Get handles GET /api/reports/{date}.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Path shape: /api/reports/{date}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] == "" {
		http.Error(w, "Report date required", http.StatusBadRequest)
		return
	}
	date := parts[2]

	report, err := h.reports.Get(date)
	if err != nil {
		if errors.Is(err, reporting.ErrReportNotFound) {
			http.Error(w, "Report not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load report", "date", date, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report, h.logger)
}
