package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sentinai/netguard/internal/models"
	"github.com/sentinai/netguard/internal/storage"
)

// EventRangeQuerier is the slice of the gateway the reporting service
// consumes: the inclusive-start/exclusive-end range query.
type EventRangeQuerier interface {
	QueryRange(ctx context.Context, start, end string) ([]models.Event, error)
}

// Report is the persisted daily summary.
type Report struct {
	Date            string          `json:"date,omitempty"`
	Status          string          `json:"status,omitempty"`
	Metadata        *Metadata       `json:"metadata,omitempty"`
	Summary         Summary         `json:"summary"`
	CriticalThreats []CriticalEntry `json:"critical_threats,omitempty"`
}

// Metadata identifies one report run.
type Metadata struct {
	ReportID    string `json:"report_id"`
	GeneratedAt string `json:"generated_at"`
	TargetDate  string `json:"target_date"`
}

// Summary carries the aggregated counters for the day.
type Summary struct {
	TotalIncidents       int            `json:"total_incidents"`
	SeverityDistribution map[string]int `json:"severity_distribution,omitempty"`
	TopAttackVectors     map[string]int `json:"top_attack_vectors,omitempty"`
	TopOffenders         map[string]int `json:"top_offenders,omitempty"`
}

// CriticalEntry is one critical incident listed in the report.
type CriticalEntry struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	SrcIP     string  `json:"src_ip"`
	RiskScore float64 `json:"risk_score"`
	Type      string  `json:"type"`
}

const (
	topCounterLimit    = 5
	criticalEntryLimit = 10
	dateLayout         = "2006-01-02"
)

// ErrReportNotFound is returned by Get for a date no report was generated
// for.
var ErrReportNotFound = errors.New("report not found")

// Service aggregates one day of incidents into a JSON report file.
type Service struct {
	gateway EventRangeQuerier
	dir     string
	logger  *slog.Logger
}

// NewService constructs the reporting service writing under dir.
func NewService(gateway EventRangeQuerier, dir string, logger *slog.Logger) *Service {
	return &Service{
		gateway: gateway,
		dir:     dir,
		logger:  logger,
	}
}

// Generate builds the report for the given date (YYYY-MM-DD; empty means
// today UTC), persists it, and returns it. An empty window produces the No
// Data shape without writing a file.
func (s *Service) Generate(ctx context.Context, targetDate string) (Report, error) {
	if targetDate == "" {
		targetDate = time.Now().UTC().Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, targetDate); err != nil {
		return Report{}, fmt.Errorf("invalid report date %q: %w", targetDate, err)
	}

	start := targetDate + " 00:00:00"
	end := targetDate + " 23:59:59"

	events, err := s.gateway.QueryRange(ctx, start, end)
	if err != nil {
		return Report{}, fmt.Errorf("failed to fetch report window: %w", err)
	}

	if len(events) == 0 {
		return Report{
			Date:    targetDate,
			Status:  "No Data",
			Summary: Summary{TotalIncidents: 0},
		}, nil
	}

	severity := make(map[string]int)
	vectors := make(map[string]int)
	offenders := make(map[string]int)
	var criticals []CriticalEntry

	for _, event := range events {
		severity[event.Severity()]++

		vector := event.PredictedLabel
		if vector == "" {
			vector = "Unknown"
		}
		vectors[vector]++

		src := event.SourceIP
		if src == "" {
			src = "Unknown"
		}
		offenders[src]++

		if event.RiskScore >= 80 && len(criticals) < criticalEntryLimit {
			criticals = append(criticals, CriticalEntry{
				ID:        event.ID,
				Timestamp: event.Timestamp,
				SrcIP:     src,
				RiskScore: event.RiskScore,
				Type:      vector,
			})
		}
	}

	report := Report{
		Metadata: &Metadata{
			ReportID:    "RPT-" + strings.ReplaceAll(targetDate, "-", ""),
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			TargetDate:  targetDate,
		},
		Summary: Summary{
			TotalIncidents:       len(events),
			SeverityDistribution: severity,
			TopAttackVectors:     topN(vectors, topCounterLimit),
			TopOffenders:         topN(offenders, topCounterLimit),
		},
		CriticalThreats: criticals,
	}

	s.save(report)
	return report, nil
}

// Get reads a previously generated report. A missing file is
// ErrReportNotFound; an unreadable one is an error.
func (s *Service) Get(date string) (Report, error) {
	raw, err := os.ReadFile(s.reportPath(date))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Report{}, fmt.Errorf("report for %s: %w", date, ErrReportNotFound)
		}
		return Report{}, fmt.Errorf("failed to read report for %s: %w", date, err)
	}

	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return Report{}, fmt.Errorf("corrupt report file for %s: %w", date, err)
	}
	return report, nil
}

// save persists the report under report_<date>.json. Write failures are
// logged; the caller still gets the in-memory report.
func (s *Service) save(report Report) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Error("failed to create report directory", "dir", s.dir, "error", err)
		return
	}

	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode report", "error", err)
		return
	}

	path := s.reportPath(report.Metadata.TargetDate)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		s.logger.Error("failed to save report", "path", path, "error", err)
		return
	}
	s.logger.Info("report persisted", "path", path, "incidents", report.Summary.TotalIncidents)
}

func (s *Service) reportPath(date string) string {
	return filepath.Join(s.dir, "report_"+date+".json")
}

// topN keeps the n largest counters, breaking count ties by name so the
// report content is deterministic.
func topN(counts map[string]int, n int) map[string]int {
	type pair struct {
		name  string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for name, count := range counts {
		pairs = append(pairs, pair{name, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].name < pairs[j].name
	})

	if len(pairs) > n {
		pairs = pairs[:n]
	}
	out := make(map[string]int, len(pairs))
	for _, p := range pairs {
		out[p.name] = p.count
	}
	return out
}

var _ EventRangeQuerier = (*storage.Gateway)(nil)
