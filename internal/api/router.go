package api

import (
	"log/slog"
	"net/http"

	"github.com/sentinai/netguard/internal/analytics"
	"github.com/sentinai/netguard/internal/auth"
	"github.com/sentinai/netguard/internal/eventbus"
	"github.com/sentinai/netguard/internal/incidents"
	"github.com/sentinai/netguard/internal/metrics"
	"github.com/sentinai/netguard/internal/reporting"
	"github.com/sentinai/netguard/internal/storage"
)

// NewRouter wires every API route, layering CORS and Prometheus
// instrumentation around the mux and JWT auth around the protected routes.
func NewRouter(
	authService *auth.Service,
	incidentService *incidents.Service,
	statsService *analytics.Service,
	reportService *reporting.Service,
	gateway *storage.Gateway,
	reconciler *storage.Reconciler,
	bus eventbus.Publisher,
	collector *metrics.Collector,
	jwtSecret string,
	logger *slog.Logger,
) http.Handler {
	authHandler := NewAuthHandler(authService, logger)
	threatHandler := NewThreatHandler(incidentService, logger)
	statsHandler := NewStatsHandler(statsService, logger)
	reportHandler := NewReportHandler(reportService, logger)
	ingestHandler := NewIngestHandler(gateway, bus, logger)
	systemHandler := NewSystemHandler(gateway, reconciler, logger)

	authRequired := auth.Middleware(jwtSecret)
	adminOnly := auth.RequireRole(auth.RoleAdmin)
	protect := func(h http.HandlerFunc) http.Handler {
		return authRequired(h)
	}
	protectAdmin := func(h http.HandlerFunc) http.Handler {
		return authRequired(adminOnly(h))
	}

	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/api/health", systemHandler.Health)
	mux.HandleFunc("/api/telemetry", ingestHandler.Ingest)
	mux.Handle("/metrics", collector.Handler())

	// Operator routes
	mux.Handle("/api/auth/change-password", protect(authHandler.ChangePassword))
	mux.Handle("/api/threats", protect(threatHandler.List))
	mux.Handle("/api/threats/", protect(threatHandler.Actions))
	mux.Handle("/api/dashboard/summary", protect(statsHandler.DashboardSummary))
	mux.Handle("/api/stats/attack-types", protect(statsHandler.AttackTypes))
	mux.Handle("/api/stats/geo", protect(statsHandler.Geo))
	mux.Handle("/api/stats/risk-summary", protect(statsHandler.RiskSummary))
	mux.Handle("/api/alerts/critical", protect(statsHandler.CriticalAlerts))
	mux.Handle("/api/reports/generate", protect(reportHandler.Generate))
	mux.Handle("/api/reports/", protect(reportHandler.Get))

	// Admin routes
	mux.Handle("/api/system/mode", protectAdmin(systemHandler.SetMode))
	mux.Handle("/api/system/sync", protectAdmin(systemHandler.Sync))

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return collector.InstrumentHandler(corsMiddleware(mux))
}
