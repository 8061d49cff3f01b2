package telemetry

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinai/netguard/internal/models"
)

// Threat categories emitted by the fabric.
const (
	CategoryNormal       = "Normal"
	CategoryDDoS         = "DDoS"
	CategoryBruteForce   = "Brute Force"
	CategoryPortScan     = "Port Scan"
	CategoryExfiltration = "Exfiltration"
)

// gravityMatrix weights each category's impact when deriving the risk
// score: risk = confidence * gravity * 100, clamped to [0, 100].
var gravityMatrix = map[string]float64{
	CategoryNormal:       0.0,
	CategoryDDoS:         0.95,
	CategoryBruteForce:   0.85,
	CategoryPortScan:     0.45,
	CategoryExfiltration: 1.0,
}

const defaultGravity = 0.5

// portFingerprints maps each category to its likely destination ports.
// Port scans draw uniformly from the whole range instead.
var portFingerprints = map[string][]int{
	CategoryNormal:       {80, 443, 53, 22, 21, 8080},
	CategoryDDoS:         {80, 443, 8443},
	CategoryBruteForce:   {22, 3389, 5432},
	CategoryExfiltration: {443, 8080},
}

var protocols = []string{"TCP", "UDP", "ICMP", "SCTP"}

var countryPool = []string{"USA", "CHN", "RUS", "BRA", "IND", "DEU", "GBR", "FRA", "JPN", "KOR"}

// Fabric synthesizes security-telemetry events for demos and load tests.
// Category selection is driven by a time-varying chaos factor so the attack
// mix ebbs and flows instead of following a static distribution.
type Fabric struct {
	mu         sync.Mutex
	rng        *rand.Rand
	now        func() time.Time
	threatPool []string // external source addresses
	assetPool  []string // secure enclave destinations
}

// NewFabric constructs a fabric with its own random source.
func NewFabric() *Fabric {
	f := &Fabric{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}

	for i := 10; i < 20; i++ {
		for j := 1; j < 50; j++ {
			f.threatPool = append(f.threatPool, fmt.Sprintf("45.33.%d.%d", i, j))
		}
	}
	for i := 10; i < 100; i++ {
		f.assetPool = append(f.assetPool, fmt.Sprintf("10.0.5.%d", i))
	}
	return f
}

// Synthesize produces one complete event: category, addressing, port and
// packet-size fingerprints, synthetic confidence, and the derived risk
// score, ready for SaveEvent.
func (f *Fabric) Synthesize() models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.synthesizeLocked(f.pickCategory())
}

// SynthesizeCategory produces one event of a forced category, used by tests
// and attack drills.
func (f *Fabric) SynthesizeCategory(category string) models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.synthesizeLocked(category)
}

// Batch produces count events.
func (f *Fabric) Batch(count int) []models.Event {
	out := make([]models.Event, count)
	for i := range out {
		out[i] = f.Synthesize()
	}
	return out
}

func (f *Fabric) synthesizeLocked(category string) models.Event {
	confidence := 0.70 + f.rng.Float64()*0.29
	chaos := f.chaosFactor()

	return models.Event{
		ID:             uuid.NewString(),
		Timestamp:      models.FormatTime(f.now()),
		SourceIP:       f.threatPool[f.rng.Intn(len(f.threatPool))],
		DestinationIP:  f.assetPool[f.rng.Intn(len(f.assetPool))],
		SourceCountry:  countryPool[f.rng.Intn(len(countryPool))],
		Protocol:       protocols[f.rng.Intn(len(protocols))],
		DestPort:       f.pickPort(category),
		PacketSize:     f.packetSize(category),
		PredictedLabel: category,
		Confidence:     confidence,
		RiskScore:      RiskScore(confidence, category),
		Status:         models.StatusActive,
		Metadata: map[string]any{
			"chaos_factor": chaos,
			"source":       "fabric",
		},
	}
}

// chaosFactor modulates the attack probability: a 0.05 baseline plus a slow
// sine fluctuation up to 0.30, making the stream bursty and non-stationary.
func (f *Fabric) chaosFactor() float64 {
	t := float64(f.now().Unix())
	fluctuation := (math.Sin(t/1000) + 1) / 2
	return 0.05 + fluctuation*0.25
}

// pickCategory rolls against the chaos factor; inside the attack window the
// split is 40% DDoS, 30% Brute Force, 20% Port Scan, 10% Exfiltration.
func (f *Fabric) pickCategory() string {
	if f.rng.Float64() > f.chaosFactor() {
		return CategoryNormal
	}

	roll := f.rng.Float64()
	switch {
	case roll < 0.4:
		return CategoryDDoS
	case roll < 0.7:
		return CategoryBruteForce
	case roll < 0.9:
		return CategoryPortScan
	default:
		return CategoryExfiltration
	}
}

func (f *Fabric) pickPort(category string) int {
	if category == CategoryPortScan {
		return 1 + f.rng.Intn(65535)
	}
	if ports := portFingerprints[category]; len(ports) > 0 {
		return ports[f.rng.Intn(len(ports))]
	}
	return 80
}

// packetSize gives each category a distinct size profile so downstream
// classifiers stay separable: DDoS 3000-3100, Brute Force 2000-2100, Port
// Scan header-only, Exfiltration large streams, Normal a heavy tail capped
// at the 1500 MTU.
func (f *Fabric) packetSize(category string) int {
	switch category {
	case CategoryDDoS:
		return 3000 + f.rng.Intn(101)
	case CategoryBruteForce:
		return 2000 + f.rng.Intn(101)
	case CategoryPortScan:
		return 0
	case CategoryExfiltration:
		size := int(f.rng.NormFloat64()*512 + 4096)
		if size < 0 {
			size = 0
		}
		return size
	default:
		size := int(math.Exp(f.rng.NormFloat64() + 6))
		if size < 40 {
			size = 40
		}
		if size > 1500 {
			size = 1500
		}
		return size
	}
}

// RiskScore derives the 0-100 risk index from the classifier confidence and
// the category's gravity weight.
func RiskScore(confidence float64, category string) float64 {
	gravity, ok := gravityMatrix[category]
	if !ok {
		gravity = defaultGravity
	}
	raw := confidence * gravity * 100
	return math.Round(math.Min(math.Max(raw, 0), 100)*100) / 100
}
