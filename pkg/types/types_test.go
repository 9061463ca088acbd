package types

import (
	"errors"
	"testing"
)

func TestNodeStatusIsValid(t *testing.T) {
	for _, s := range []NodeStatus{StatusSyncing, StatusOnline, StatusOffline} {
		if !s.IsValid() {
			t.Errorf("Expected status %q to be valid", s)
		}
	}
	if NodeStatus("degraded").IsValid() {
		t.Error("Expected unknown status to be invalid")
	}
}

func TestNodeRecordClone(t *testing.T) {
	original := &NodeRecord{
		ID:           "node-1",
		Name:         "vision",
		Type:         "general_agent",
		Capabilities: []string{"data_processing", "visualization"},
		Status:       StatusOnline,
	}

	clone := original.Clone()
	clone.Capabilities[0] = "mutated"
	clone.Status = StatusOffline

	if original.Capabilities[0] != "data_processing" {
		t.Error("Clone must not share capability slice with original")
	}
	if original.Status != StatusOnline {
		t.Error("Clone must not share status with original")
	}
}

func TestNodeFilterMatches(t *testing.T) {
	record := &NodeRecord{
		ID:           "node-1",
		Name:         "weather",
		Type:         "weather_analysis",
		Capabilities: []string{"real_time_analysis"},
		Status:       StatusOnline,
	}

	cases := []struct {
		name   string
		filter NodeFilter
		want   bool
	}{
		{"empty filter matches", NodeFilter{}, true},
		{"status match", NodeFilter{Status: StatusOnline}, true},
		{"status mismatch", NodeFilter{Status: StatusOffline}, false},
		{"type match", NodeFilter{Type: "weather_analysis"}, true},
		{"type mismatch", NodeFilter{Type: "drone_control"}, false},
		{"capability match", NodeFilter{Capability: "real_time_analysis"}, true},
		{"capability mismatch", NodeFilter{Capability: "machine_learning"}, false},
		{"combined", NodeFilter{Status: StatusOnline, Type: "weather_analysis"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(record); got != tc.want {
				t.Errorf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEventKindClassification(t *testing.T) {
	if !EventNodeDemoted.IsMembership() {
		t.Error("Expected node_demoted to be a membership event")
	}
	if EventMissionUpdate.IsMembership() {
		t.Error("Expected mission_update not to be a membership event")
	}
	if !EventMemorySync.IsValid() {
		t.Error("Expected memory_sync to be a valid kind")
	}
	if EventKind("telepathy").IsValid() {
		t.Error("Expected unknown kind to be invalid")
	}
}

func TestEventWithData(t *testing.T) {
	ev := NewMembershipEvent(EventNodeJoined, "node-9").WithData("name", "drone")
	if ev.Data["name"] != "drone" {
		t.Errorf("Expected data to carry name, got %v", ev.Data)
	}
	if ev.Seq != 0 {
		t.Error("Expected unpublished event to have zero seq")
	}
}

func TestHubErrorCodes(t *testing.T) {
	base := ErrNodeNotFound("node-404")
	if !base.IsCode(ErrCodeNodeNotFound) {
		t.Error("Expected NODE_NOT_FOUND code")
	}
	if base.Details["node_id"] != NodeID("node-404") {
		t.Errorf("Expected node_id detail, got %v", base.Details)
	}

	if !errors.Is(base, NewHubError(ErrCodeNodeNotFound, "")) {
		t.Error("Expected errors.Is to match by code")
	}

	wrapped := ErrStorage("save", errors.New("connection refused"))
	if errors.Unwrap(wrapped) == nil {
		t.Error("Expected cause to unwrap")
	}
	if wrapped.IsRetryable() {
		t.Error("STORAGE_ERROR should not be retryable")
	}
	if !ErrValidationUnavailable("kan", errors.New("timeout")).IsRetryable() {
		t.Error("VALIDATION_SERVICE_UNAVAILABLE should be retryable")
	}
}

func TestErrorCollector(t *testing.T) {
	ec := NewErrorCollector()
	ec.Add(nil)
	if ec.HasErrors() {
		t.Error("Nil errors must be ignored")
	}
	if ec.ToError() != nil {
		t.Error("Empty collector must yield nil error")
	}

	ec.Add(errors.New("first"))
	ec.Add(errors.New("second"))
	if !ec.HasErrors() {
		t.Error("Expected collector to report errors")
	}
	if ec.ToError() == nil {
		t.Error("Expected combined error")
	}
}
