package analytics

import (
	"context"
	"log/slog"
	"sort"

	"github.com/sentinai/netguard/internal/models"
	"github.com/sentinai/netguard/internal/storage"
)

// NamedCount is one histogram bucket as consumed by the dashboard charts.
type NamedCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// GeoCount is one country bucket for the geo map, which keys on "id".
type GeoCount struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

// Summary is the aggregated dashboard payload.
type Summary struct {
	Threats        []models.Event `json:"threats"`
	RiskSummary    []NamedCount   `json:"risk_summary"`
	AttackTypes    []NamedCount   `json:"attack_types"`
	GeoStats       []GeoCount     `json:"geo_stats"`
	CriticalAlerts []models.Event `json:"critical_alerts"`
	Total          int            `json:"total"`
}

const priorityAlertCap = 3

// Service computes dashboard statistics over the gateway. Each histogram is
// produced by one of two strategies selected per call: the remote store's
// native aggregation when it is active, or an in-process fold over the
// recent window otherwise. Consumers never observe which one answered.
type Service struct {
	gateway *storage.Gateway
	window  int // events fetched for the fold strategy and the summary feed
	logger  *slog.Logger
}

// NewService constructs the aggregation service. window is the recent-event
// cap used for fallback computation, normally MAX_HISTORY_LIMIT.
func NewService(gateway *storage.Gateway, window int, logger *slog.Logger) *Service {
	return &Service{
		gateway: gateway,
		window:  window,
		logger:  logger,
	}
}

// histogramStrategy is one way of producing bucket counts.
type histogramStrategy interface {
	severity(ctx context.Context) (map[string]int, error)
	byField(ctx context.Context, field string) (map[string]int, error)
}

// strategy picks the native path while the remote store is active. The fold
// strategy never fails, so it is both the local-mode path and the recovery
// path when a native call dies mid-flight.
func (s *Service) strategy(ctx context.Context) histogramStrategy {
	if s.gateway.Mode() == storage.ModeRemote {
		return nativeStrategy{gateway: s.gateway}
	}
	return foldStrategy{gateway: s.gateway, window: s.window}
}

// SeverityHistogram returns the four severity buckets in fixed order.
// Missing buckets are zero-filled on every path; the schema never changes
// when the backend mode flips.
func (s *Service) SeverityHistogram(ctx context.Context) []NamedCount {
	counts, err := s.strategy(ctx).severity(ctx)
	if err != nil {
		s.logger.Warn("native severity aggregation failed, folding locally", "error", err)
		counts, _ = foldStrategy{gateway: s.gateway, window: s.window}.severity(ctx)
	}

	out := make([]NamedCount, 0, len(models.SeverityBuckets))
	for _, bucket := range models.SeverityBuckets {
		out = append(out, NamedCount{Name: bucket, Value: counts[bucket]})
	}
	return out
}

// VectorHistogram groups events by predicted label. The category set is
// open-ended, so only observed labels appear.
func (s *Service) VectorHistogram(ctx context.Context) []NamedCount {
	return s.openHistogram(ctx, "predicted_label")
}

// GeoHistogram groups events by source country for the threat map.
func (s *Service) GeoHistogram(ctx context.Context) []GeoCount {
	counts := s.openCounts(ctx, "source_country")
	delete(counts, "") // events with no attributable origin are not mapped

	out := make([]GeoCount, 0, len(counts))
	for country, count := range counts {
		out = append(out, GeoCount{ID: country, Value: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DashboardSummary compiles the full dashboard payload: the recent
// telemetry window, the three histograms, and the priority signals.
func (s *Service) DashboardSummary(ctx context.Context) (Summary, error) {
	window, err := s.gateway.QueryRecent(ctx, s.window)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		Threats:        window,
		RiskSummary:    s.SeverityHistogram(ctx),
		AttackTypes:    s.VectorHistogram(ctx),
		GeoStats:       s.GeoHistogram(ctx),
		CriticalAlerts: prioritySignals(window),
		Total:          len(window),
	}, nil
}

// PrioritySignals returns the unresolved critical incidents surfaced at the
// top of the dashboard.
func (s *Service) PrioritySignals(ctx context.Context) ([]models.Event, error) {
	window, err := s.gateway.QueryRecent(ctx, s.window)
	if err != nil {
		return nil, err
	}
	return prioritySignals(window), nil
}

func (s *Service) openHistogram(ctx context.Context, field string) []NamedCount {
	counts := s.openCounts(ctx, field)

	out := make([]NamedCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, NamedCount{Name: name, Value: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Service) openCounts(ctx context.Context, field string) map[string]int {
	counts, err := s.strategy(ctx).byField(ctx, field)
	if err != nil {
		s.logger.Warn("native aggregation failed, folding locally", "field", field, "error", err)
		counts, _ = foldStrategy{gateway: s.gateway, window: s.window}.byField(ctx, field)
	}
	return counts
}

// prioritySignals picks the first few unresolved events at or above the
// critical threshold, preserving the window's newest-first order.
func prioritySignals(window []models.Event) []models.Event {
	signals := make([]models.Event, 0, priorityAlertCap)
	for _, event := range window {
		if event.RiskScore >= 80 && !event.IsResolved() {
			signals = append(signals, event)
			if len(signals) >= priorityAlertCap {
				break
			}
		}
	}
	return signals
}
