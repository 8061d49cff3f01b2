package telemetry

import (
	"strings"
	"testing"

	"github.com/sentinai/netguard/internal/models"
)

func TestSynthesize_CompleteEvent(t *testing.T) {
	fabric := NewFabric()

	for i := 0; i < 50; i++ {
		e := fabric.Synthesize()
		if err := e.Validate(); err != nil {
			t.Fatalf("synthesized event invalid: %v", err)
		}
		if e.Status != models.StatusActive {
			t.Errorf("expected Active status, got %s", e.Status)
		}
		if !strings.HasPrefix(e.SourceIP, "45.33.") {
			t.Errorf("source %s not from the external threat pool", e.SourceIP)
		}
		if !strings.HasPrefix(e.DestinationIP, "10.0.5.") {
			t.Errorf("destination %s not from the secure enclave", e.DestinationIP)
		}
		if e.Confidence < 0.70 || e.Confidence > 0.99 {
			t.Errorf("confidence %v outside the synthetic range", e.Confidence)
		}
		if e.RiskScore < 0 || e.RiskScore > 100 {
			t.Errorf("risk score %v outside [0, 100]", e.RiskScore)
		}
		if len(e.SourceCountry) != 3 {
			t.Errorf("expected alpha-3 country code, got %q", e.SourceCountry)
		}
		if _, ok := e.Metadata["chaos_factor"]; !ok {
			t.Error("expected chaos_factor in metadata")
		}
	}
}

func TestSynthesizeCategory_PacketSizeProfiles(t *testing.T) {
	fabric := NewFabric()

	tests := []struct {
		category string
		min      int
		max      int
	}{
		{CategoryDDoS, 3000, 3100},
		{CategoryBruteForce, 2000, 2100},
		{CategoryPortScan, 0, 0},
		{CategoryNormal, 40, 1500},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			for i := 0; i < 100; i++ {
				e := fabric.SynthesizeCategory(tt.category)
				if e.PacketSize < tt.min || e.PacketSize > tt.max {
					t.Fatalf("packet size %d outside [%d, %d]", e.PacketSize, tt.min, tt.max)
				}
			}
		})
	}
}

func TestSynthesizeCategory_PortFingerprints(t *testing.T) {
	fabric := NewFabric()

	ddosPorts := map[int]bool{80: true, 443: true, 8443: true}
	for i := 0; i < 100; i++ {
		e := fabric.SynthesizeCategory(CategoryDDoS)
		if !ddosPorts[e.DestPort] {
			t.Fatalf("DDoS port %d outside the category fingerprint", e.DestPort)
		}
	}

	for i := 0; i < 100; i++ {
		e := fabric.SynthesizeCategory(CategoryPortScan)
		if e.DestPort < 1 || e.DestPort > 65535 {
			t.Fatalf("scan port %d outside the valid range", e.DestPort)
		}
	}
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		category   string
		want       float64
	}{
		{"normal traffic scores zero", 0.99, CategoryNormal, 0},
		{"exfiltration at full confidence", 1.0, CategoryExfiltration, 100},
		{"ddos weighting", 1.0, CategoryDDoS, 95},
		{"unknown category uses default gravity", 1.0, "Zero Day", 50},
		{"clamped at zero", -0.5, CategoryDDoS, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RiskScore(tt.confidence, tt.category); got != tt.want {
				t.Errorf("RiskScore(%v, %s) = %v, want %v", tt.confidence, tt.category, got, tt.want)
			}
		})
	}
}

func TestBatch(t *testing.T) {
	fabric := NewFabric()
	batch := fabric.Batch(25)
	if len(batch) != 25 {
		t.Fatalf("expected 25 events, got %d", len(batch))
	}

	seen := make(map[string]bool, len(batch))
	for _, e := range batch {
		if seen[e.ID] {
			t.Fatalf("duplicate id %s in batch", e.ID)
		}
		seen[e.ID] = true
	}
}
