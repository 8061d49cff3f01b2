package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sentinai/netguard/internal/storage"
)

func scrape(t *testing.T, collector *Collector) string {
	t.Helper()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}
	return rr.Body.String()
}

func TestCollectorRecordsHTTPMetrics(t *testing.T) {
	collector, err := New()
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	handlerInvoked := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerInvoked = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	instrumented := collector.InstrumentHandler(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	instrumented.ServeHTTP(rr, req)

	if !handlerInvoked {
		t.Fatal("expected handler to be invoked")
	}

	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `netguard_http_requests_total{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}

	if !strings.Contains(body, `netguard_http_request_duration_seconds_count{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("request_duration_seconds_count metric not recorded, body=%q", body)
	}
}

func TestCollectorTracksGatewayTransitions(t *testing.T) {
	collector, err := New()
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	collector.ModeChanged(storage.ModeRemote)
	body := scrape(t, collector)
	if !strings.Contains(body, "netguard_gateway_remote_active 1") {
		t.Fatalf("remote_active gauge not set, body=%q", body)
	}

	collector.FallbackTriggered()
	collector.ModeChanged(storage.ModeLocal)
	collector.SyncApplied(3, 2)

	body = scrape(t, collector)
	if !strings.Contains(body, "netguard_gateway_remote_active 0") {
		t.Fatalf("remote_active gauge not cleared, body=%q", body)
	}
	if !strings.Contains(body, "netguard_gateway_fallbacks_total 1") {
		t.Fatalf("fallbacks_total not incremented, body=%q", body)
	}
	if !strings.Contains(body, "netguard_gateway_sync_pushed_total 3") {
		t.Fatalf("sync_pushed_total not recorded, body=%q", body)
	}
	if !strings.Contains(body, "netguard_gateway_sync_pulled_total 2") {
		t.Fatalf("sync_pulled_total not recorded, body=%q", body)
	}
}
