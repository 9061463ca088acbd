package monitoring

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics("nishub")

	m.SetNodeCount("online", 3)
	m.SetNodeCount("offline", 1)
	m.RecordRegistration()
	m.RecordHeartbeat()
	m.RecordDemotions(2)
	m.RecordEventPublished("node_joined")
	m.RegisterHubStats(func() HubStats {
		return HubStats{Subscribers: 4, DroppedEvents: 1, LagDisconnects: 1}
	})
	m.RecordRequest("POST", "/api/v1/nodes/register", 201, 5*time.Millisecond)
	m.RecordStorageOperation("save_node", true, time.Millisecond)
	m.RecordStorageOperation("save_node", false, time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected 200 from metrics handler, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`nishub_nodes{status="online"} 3`,
		`nishub_nodes{status="offline"} 1`,
		`nishub_registrations_total 1`,
		`nishub_heartbeats_total 1`,
		`nishub_demotions_total 2`,
		`nishub_events_published_total{kind="node_joined"} 1`,
		`nishub_subscribers 4`,
		`nishub_dropped_events_total 1`,
		`nishub_lag_disconnects_total 1`,
		`nishub_http_requests_total{endpoint="/api/v1/nodes/register",method="POST",status="201"} 1`,
		`nishub_storage_operations_total{operation="save_node",status="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected exposition to contain %q", want)
		}
	}
}

func TestDefaultNamespace(t *testing.T) {
	m := NewMetrics("")
	m.RecordRegistration()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "nishub_registrations_total") {
		t.Error("Expected empty namespace to default to nishub")
	}
}
