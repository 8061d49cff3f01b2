package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinai/netguard/internal/storage"
)

// Collector exposes Prometheus metrics for inbound HTTP requests and for
// the persistence gateway's failover behavior. It implements
// storage.Monitor so the gateway can report transitions directly.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	inFlight        prometheus.Gauge

	remoteActive prometheus.Gauge
	fallbacks    prometheus.Counter
	syncPushed   prometheus.Counter
	syncPulled   prometheus.Counter
}

// New constructs a collector with default histograms/counters on a private
// registry.
func New() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "netguard",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netguard",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "netguard",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of inbound HTTP requests currently being served.",
	})

	remoteActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "netguard",
		Subsystem: "gateway",
		Name:      "remote_active",
		Help:      "1 while the remote store is authoritative, 0 in local fallback mode.",
	})

	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "netguard",
		Subsystem: "gateway",
		Name:      "fallbacks_total",
		Help:      "Automatic remote-to-local failover transitions.",
	})

	syncPushed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "netguard",
		Subsystem: "gateway",
		Name:      "sync_pushed_total",
		Help:      "Events pushed to the remote store by reconciliation.",
	})

	syncPulled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "netguard",
		Subsystem: "gateway",
		Name:      "sync_pulled_total",
		Help:      "Events pulled into the local cache by reconciliation.",
	})

	for _, c := range []prometheus.Collector{requestDuration, requestTotal, inFlight, remoteActive, fallbacks, syncPushed, syncPulled} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		inFlight:        inFlight,
		remoteActive:    remoteActive,
		fallbacks:       fallbacks,
		syncPushed:      syncPushed,
		syncPulled:      syncPulled,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		c.inFlight.Inc()
		defer c.inFlight.Dec()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// ModeChanged implements storage.Monitor.
func (c *Collector) ModeChanged(mode storage.Mode) {
	if mode == storage.ModeRemote {
		c.remoteActive.Set(1)
	} else {
		c.remoteActive.Set(0)
	}
}

// FallbackTriggered implements storage.Monitor.
func (c *Collector) FallbackTriggered() {
	c.fallbacks.Inc()
}

// SyncApplied implements storage.Monitor.
func (c *Collector) SyncApplied(pushed, pulled int) {
	c.syncPushed.Add(float64(pushed))
	c.syncPulled.Add(float64(pulled))
}

var _ storage.Monitor = (*Collector)(nil)

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
