package models

import (
	"fmt"
	"time"
)

// TimeLayout is the canonical timestamp format for events. It is fixed-width
// and zero-padded so that timestamps compare correctly under plain string
// comparison; all ordering and range logic relies on that.
const TimeLayout = "2006-01-02 15:04:05"

// Event represents a single security-telemetry record flowing through the
// system, from ingestion through triage.
type Event struct {
	ID             string         `json:"id" bson:"id"`
	Timestamp      string         `json:"timestamp" bson:"timestamp"`
	SourceIP       string         `json:"source_ip,omitempty" bson:"source_ip,omitempty"`
	DestinationIP  string         `json:"destination_ip,omitempty" bson:"destination_ip,omitempty"`
	SourceCountry  string         `json:"source_country,omitempty" bson:"source_country,omitempty"`
	Protocol       string         `json:"protocol,omitempty" bson:"protocol,omitempty"`
	DestPort       int            `json:"dest_port,omitempty" bson:"dest_port,omitempty"`
	PacketSize     int            `json:"packet_size,omitempty" bson:"packet_size,omitempty"`
	PredictedLabel string         `json:"predicted_label,omitempty" bson:"predicted_label,omitempty"`
	RiskScore      float64        `json:"risk_score" bson:"risk_score"`
	Confidence     float64        `json:"confidence" bson:"confidence"`
	Status         EventStatus    `json:"status,omitempty" bson:"status,omitempty"`
	EscalationFlag bool           `json:"escalation_flag,omitempty" bson:"escalation_flag,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// EventStatus represents the lifecycle state of an incident.
type EventStatus string

const (
	StatusActive   EventStatus = "Active"   // Incident open, awaiting triage
	StatusResolved EventStatus = "Resolved" // Incident closed by an operator
)

// Severity buckets derived from risk_score thresholds.
const (
	SeverityCritical = "Critical"
	SeverityHigh     = "High"
	SeverityMedium   = "Medium"
	SeverityLow      = "Low"
)

// SeverityBuckets lists the buckets in display order. Every severity
// histogram carries exactly these keys regardless of the dataset.
var SeverityBuckets = []string{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// SeverityLabel maps a risk score onto its severity bucket.
func SeverityLabel(riskScore float64) string {
	switch {
	case riskScore >= 80:
		return SeverityCritical
	case riskScore >= 60:
		return SeverityHigh
	case riskScore >= 30:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// FormatTime renders t in the canonical event timestamp format (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Validate checks the fields the storage layer depends on. Everything else
// is optional; defaulting is the caller's responsibility.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.Timestamp == "" {
		return fmt.Errorf("event timestamp is required")
	}
	if _, err := time.Parse(TimeLayout, e.Timestamp); err != nil {
		return fmt.Errorf("invalid event timestamp %q: %w", e.Timestamp, err)
	}
	return nil
}

// IsResolved reports whether the incident has been closed. A missing status
// counts as Active.
func (e *Event) IsResolved() bool {
	return e.Status == StatusResolved
}

// Severity returns the severity bucket for this event's risk score.
func (e *Event) Severity() string {
	return SeverityLabel(e.RiskScore)
}
