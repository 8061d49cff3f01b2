package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinai/netguard/internal/eventbus"
	"github.com/sentinai/netguard/internal/models"
	"github.com/sentinai/netguard/internal/storage"
)

// IngestHandler accepts telemetry from producers (the synthetic generator,
// external sensors), applies the repeat-offender escalation heuristic,
// persists through the gateway, and fans events out on the bus.
type IngestHandler struct {
	gateway *storage.Gateway
	bus     eventbus.Publisher
	logger  *slog.Logger

	mu        sync.Mutex
	offenders map[string]int // alert count per source IP, non-Normal labels only
}

// NewIngestHandler creates a new telemetry ingest handler.
func NewIngestHandler(gateway *storage.Gateway, bus eventbus.Publisher, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		gateway:   gateway,
		bus:       bus,
		logger:    logger,
		offenders: make(map[string]int),
	}
}

// Ingest handles POST /api/telemetry. The body is a JSON array of events or
// a single event object.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	events, err := decodeEvents(body)
	if err != nil {
		http.Error(w, "Invalid telemetry payload", http.StatusBadRequest)
		return
	}

	ingested := 0
	for _, event := range events {
		h.applyDefaults(&event)
		h.escalate(&event)

		if err := h.gateway.SaveEvent(r.Context(), event); err != nil {
			h.logger.Error("failed to persist telemetry event", "id", event.ID, "error", err)
			continue
		}
		ingested++

		if err := h.bus.PublishThreat(event); err != nil {
			h.logger.Error("failed to publish telemetry event", "id", event.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "accepted",
		"ingested": ingested,
	}, h.logger)
}

// decodeEvents accepts either a JSON array or a single object.
func decodeEvents(body []byte) ([]models.Event, error) {
	var events []models.Event
	if err := json.Unmarshal(body, &events); err == nil {
		return events, nil
	}

	var single models.Event
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	return []models.Event{single}, nil
}

func (h *IngestHandler) applyDefaults(event *models.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == "" {
		event.Timestamp = models.FormatTime(time.Now())
	}
	if event.Status == "" {
		event.Status = models.StatusActive
	}
}

// escalate bumps the risk score of persistent offenders: the second and
// every later non-Normal alert from the same source IP is escalated.
func (h *IngestHandler) escalate(event *models.Event) {
	if event.PredictedLabel == "" || event.PredictedLabel == "Normal" || event.SourceIP == "" {
		return
	}

	h.mu.Lock()
	h.offenders[event.SourceIP]++
	seen := h.offenders[event.SourceIP]
	h.mu.Unlock()

	if seen <= 1 {
		return
	}

	event.RiskScore = event.RiskScore * 1.2
	if event.RiskScore > 100 {
		event.RiskScore = 100
	}
	event.EscalationFlag = true

	h.logger.Warn("repeat offender escalated",
		"source_ip", event.SourceIP,
		"label", event.PredictedLabel,
		"risk_score", event.RiskScore,
	)
}
