package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sentinai/netguard/internal/analytics"
	"github.com/sentinai/netguard/internal/auth"
	"github.com/sentinai/netguard/internal/eventbus"
	"github.com/sentinai/netguard/internal/incidents"
	"github.com/sentinai/netguard/internal/metrics"
	"github.com/sentinai/netguard/internal/models"
	"github.com/sentinai/netguard/internal/reporting"
	"github.com/sentinai/netguard/internal/storage"
)

const testSecret = "router-test-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter wires the full API against a local-only gateway in a temp
// directory. The admin/admin bootstrap account is available for login.
func newTestRouter(t *testing.T) (http.Handler, *storage.Gateway) {
	t.Helper()

	logger := testLogger()
	dir := t.TempDir()

	local := storage.NewLocalStore(filepath.Join(dir, "threats.json"), 2000, logger)
	gateway := storage.NewGateway(local, nil, storage.GatewayConfig{
		ProbeTimeout:     100 * time.Millisecond,
		ReconnectTimeout: 100 * time.Millisecond,
	}, logger, nil)
	reconciler := storage.NewReconciler(gateway, 1000, logger)

	userStore := auth.NewUserStore(filepath.Join(dir, "users.json"), logger)
	authService := auth.NewService(userStore, testSecret, time.Hour, logger)

	incidentService := incidents.NewService(gateway, logger)
	statsService := analytics.NewService(gateway, 2000, logger)
	reportService := reporting.NewService(gateway, filepath.Join(dir, "reports"), logger)

	collector, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics.New returned error: %v", err)
	}

	router := NewRouter(authService, incidentService, statsService, reportService,
		gateway, reconciler, eventbus.NoopPublisher{}, collector, testSecret, logger)
	return router, gateway
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func login(t *testing.T, router http.Handler) string {
	t.Helper()

	rr := doJSON(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "admin",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rr.Code, rr.Body.String())
	}

	var resp LoginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	if resp.TokenType != "bearer" || resp.AccessToken == "" {
		t.Fatalf("unexpected login response: %+v", resp)
	}
	return resp.AccessToken
}

func TestHealthIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health returned %d", rr.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "online" {
		t.Errorf("status = %q, want online", resp["status"])
	}
	if resp["api_version"] != APIVersion {
		t.Errorf("api_version = %q, want %q", resp["api_version"], APIVersion)
	}
	// No remote store is configured, so the gateway runs in fallback.
	if resp["mode"] != "resiliency_fallback" {
		t.Errorf("mode = %q, want resiliency_fallback", resp["mode"])
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("login with bad credentials returned %d, want 401", rr.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{
		"/api/threats",
		"/api/dashboard/summary",
		"/api/stats/risk-summary",
	} {
		rr := doJSON(t, router, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token returned %d, want 401", path, rr.Code)
		}
	}
}

func TestSystemRoutesRequireAdminRole(t *testing.T) {
	router, _ := newTestRouter(t)

	analystToken, err := auth.GenerateToken("jr", auth.RoleAnalyst, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to mint analyst token: %v", err)
	}

	rr := doJSON(t, router, http.MethodPost, "/api/system/sync", analystToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("sync as analyst returned %d, want 403", rr.Code)
	}
}

func TestIngestDefaultsAndPersists(t *testing.T) {
	router, gateway := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/telemetry", "", map[string]any{
		"source_ip":       "45.33.10.7",
		"predicted_label": "Port Scan",
		"risk_score":      45.0,
		"confidence":      0.9,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("ingest returned %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Status   string `json:"status"`
		Ingested int    `json:"ingested"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode ingest response: %v", err)
	}
	if resp.Ingested != 1 {
		t.Fatalf("ingested = %d, want 1", resp.Ingested)
	}

	events, err := gateway.QueryRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("QueryRecent returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d stored events, want 1", len(events))
	}
	stored := events[0]
	if stored.ID == "" || stored.Timestamp == "" {
		t.Errorf("missing defaulted fields: %+v", stored)
	}
	if stored.Status != models.StatusActive {
		t.Errorf("status = %q, want Active", stored.Status)
	}
	if stored.EscalationFlag {
		t.Error("first alert from a source must not be escalated")
	}
}

func TestIngestEscalatesRepeatOffenders(t *testing.T) {
	router, gateway := newTestRouter(t)

	payload := []map[string]any{
		{
			"id":              "evt-1",
			"timestamp":       "2026-01-10 10:00:00",
			"source_ip":       "45.33.10.9",
			"predicted_label": "Brute Force",
			"risk_score":      70.0,
		},
		{
			"id":              "evt-2",
			"timestamp":       "2026-01-10 10:00:01",
			"source_ip":       "45.33.10.9",
			"predicted_label": "Brute Force",
			"risk_score":      70.0,
		},
	}

	rr := doJSON(t, router, http.MethodPost, "/api/telemetry", "", payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("ingest returned %d: %s", rr.Code, rr.Body.String())
	}

	events, err := gateway.QueryRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("QueryRecent returned error: %v", err)
	}

	byID := make(map[string]models.Event, len(events))
	for _, event := range events {
		byID[event.ID] = event
	}

	first := byID["evt-1"]
	if first.EscalationFlag || first.RiskScore != 70 {
		t.Errorf("first offense altered: flag=%v risk=%v", first.EscalationFlag, first.RiskScore)
	}

	second := byID["evt-2"]
	if !second.EscalationFlag {
		t.Error("second offense from the same source must be escalated")
	}
	if second.RiskScore != 84 {
		t.Errorf("escalated risk = %v, want 84", second.RiskScore)
	}
}

func TestIngestEscalationCapsAtHundred(t *testing.T) {
	router, gateway := newTestRouter(t)

	payload := []map[string]any{
		{"id": "a", "timestamp": "2026-01-10 10:00:00", "source_ip": "45.33.10.3", "predicted_label": "DDoS", "risk_score": 95.0},
		{"id": "b", "timestamp": "2026-01-10 10:00:01", "source_ip": "45.33.10.3", "predicted_label": "DDoS", "risk_score": 95.0},
	}

	rr := doJSON(t, router, http.MethodPost, "/api/telemetry", "", payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("ingest returned %d", rr.Code)
	}

	events, err := gateway.QueryRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("QueryRecent returned error: %v", err)
	}
	for _, event := range events {
		if event.ID == "b" && event.RiskScore != 100 {
			t.Errorf("escalated risk = %v, want capped at 100", event.RiskScore)
		}
	}
}

func TestResolveUnknownThreatReturns404(t *testing.T) {
	router, _ := newTestRouter(t)
	token := login(t, router)

	rr := doJSON(t, router, http.MethodPost, "/api/threats/no-such-id/resolve", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("resolve unknown id returned %d, want 404", rr.Code)
	}
}

func TestThreatFeedRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t)
	token := login(t, router)

	payload := map[string]any{
		"id":              "feed-1",
		"timestamp":       "2026-01-10 10:00:00",
		"source_ip":       "45.33.10.5",
		"predicted_label": "Exfiltration",
		"risk_score":      90.0,
	}
	if rr := doJSON(t, router, http.MethodPost, "/api/telemetry", "", payload); rr.Code != http.StatusOK {
		t.Fatalf("ingest returned %d", rr.Code)
	}

	rr := doJSON(t, router, http.MethodGet, "/api/threats?status=active", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("threat feed returned %d: %s", rr.Code, rr.Body.String())
	}

	var feed []models.Event
	if err := json.Unmarshal(rr.Body.Bytes(), &feed); err != nil {
		t.Fatalf("failed to decode feed: %v", err)
	}
	if len(feed) != 1 || feed[0].ID != "feed-1" {
		t.Fatalf("unexpected feed: %+v", feed)
	}

	// Resolve it, then the active feed must be empty.
	if rr := doJSON(t, router, http.MethodPost, "/api/threats/feed-1/resolve", token, nil); rr.Code != http.StatusOK {
		t.Fatalf("resolve returned %d: %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, router, http.MethodGet, "/api/threats?status=active", token, nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &feed); err != nil {
		t.Fatalf("failed to decode feed: %v", err)
	}
	if len(feed) != 0 {
		t.Fatalf("active feed after resolve = %+v, want empty", feed)
	}
}

func TestSetModeValidation(t *testing.T) {
	router, _ := newTestRouter(t)
	token := login(t, router)

	rr := doJSON(t, router, http.MethodPost, "/api/system/mode", token, map[string]string{"mode": "hybrid"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown mode returned %d, want 400", rr.Code)
	}

	// No remote store configured, so a cloud probe cannot succeed.
	rr = doJSON(t, router, http.MethodPost, "/api/system/mode", token, map[string]string{"mode": "cloud"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("cloud probe without remote returned %d, want 502", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/system/mode", token, map[string]string{"mode": "local"})
	if rr.Code != http.StatusOK {
		t.Fatalf("local override returned %d, want 200", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/threats", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("preflight returned %d, want 200", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header on preflight")
	}
}
