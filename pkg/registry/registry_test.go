package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/organica-ai/nishub/pkg/config"
	"github.com/organica-ai/nishub/pkg/hub"
	"github.com/organica-ai/nishub/pkg/json"
	"github.com/organica-ai/nishub/pkg/pipeline"
	"github.com/organica-ai/nishub/pkg/storage"
	"github.com/organica-ai/nishub/pkg/types"
)

func newTestRegistry() (*Registry, *storage.MemoryStore, *hub.Hub) {
	store := storage.NewMemoryStore(100)
	eventHub := hub.New(64, 3)
	return New(store, eventHub, nil, nil), store, eventHub
}

func register(t *testing.T, r *Registry, name, nodeType string) *types.NodeRecord {
	t.Helper()
	record, err := r.Register(context.Background(), types.RegisterRequest{
		Name:         name,
		Type:         nodeType,
		Endpoint:     "http://10.0.0.5:9000",
		Capabilities: []string{"coordination"},
		Version:      "1.0.0",
	})
	require.NoError(t, err)
	return record
}

func TestRegisterNewNode(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	record := register(t, r, "atlas", "drone_control")

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, types.StatusSyncing, record.Status)
	assert.Equal(t, 100, record.HealthScore)
	assert.False(t, record.RegisteredAt.IsZero())
	assert.False(t, record.LastHeartbeat.IsZero())
}

func TestRegisterEmptyNameRejected(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	_, err := r.Register(context.Background(), types.RegisterRequest{Name: "  ", Type: "vision"})
	require.Error(t, err)

	var hubErr *types.HubError
	require.True(t, errors.As(err, &hubErr))
	assert.Equal(t, types.ErrCodeValidation, hubErr.Code)
}

func TestRegisterIdempotentOnNameAndType(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	first := register(t, r, "atlas", "drone_control")

	again, err := r.Register(context.Background(), types.RegisterRequest{
		Name:     "atlas",
		Type:     "drone_control",
		Endpoint: "http://10.0.0.9:9000",
		Version:  "1.1.0",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID, "same name+type keeps the assigned id")
	assert.Equal(t, types.StatusOnline, again.Status, "re-registration resets the node online")
	assert.Equal(t, "http://10.0.0.9:9000", again.Endpoint)
	assert.Equal(t, "1.1.0", again.Version)
	assert.Len(t, r.List(types.NodeFilter{}), 1)
}

func TestRegisterSameNameDifferentTypeIsDistinct(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	a := register(t, r, "atlas", "drone_control")
	b := register(t, r, "atlas", "vision_processing")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, r.List(types.NodeFilter{}), 2)
}

func TestHeartbeatUnknownNode(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	_, err := r.Heartbeat(context.Background(), types.HeartbeatRequest{NodeID: "ghost"})
	require.Error(t, err)

	var hubErr *types.HubError
	require.True(t, errors.As(err, &hubErr))
	assert.Equal(t, types.ErrCodeNodeNotFound, hubErr.Code)
}

func TestHeartbeatPromotesSyncingToOnline(t *testing.T) {
	r, _, eventHub := newTestRegistry()
	defer r.Close()

	record := register(t, r, "atlas", "drone_control")

	sub := eventHub.Subscribe()
	defer eventHub.Unsubscribe(sub)

	score := 80
	updated, err := r.Heartbeat(context.Background(), types.HeartbeatRequest{
		NodeID:      record.ID,
		HealthScore: &score,
		StatusHint:  "processing",
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusOnline, updated.Status)
	assert.Equal(t, 80, updated.HealthScore)
	assert.Equal(t, "processing", updated.StatusHint)

	// The first heartbeat is not a recovery; nothing is published
	select {
	case event := <-sub.C():
		t.Fatalf("Unexpected event for syncing->online: %+v", event)
	default:
	}
}

func TestHeartbeatClampsHealthScore(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	record := register(t, r, "atlas", "drone_control")

	high := 250
	updated, err := r.Heartbeat(context.Background(), types.HeartbeatRequest{NodeID: record.ID, HealthScore: &high})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.HealthScore)

	low := -5
	updated, err = r.Heartbeat(context.Background(), types.HeartbeatRequest{NodeID: record.ID, HealthScore: &low})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.HealthScore)
}

func TestOfflineNodeRecoversOnHeartbeat(t *testing.T) {
	r, _, eventHub := newTestRegistry()
	defer r.Close()

	record := register(t, r, "atlas", "drone_control")
	r.Heartbeat(context.Background(), types.HeartbeatRequest{NodeID: record.ID})

	demoted := r.DemoteStale(context.Background(), time.Now().Add(time.Hour))
	require.Equal(t, 1, demoted)

	sub := eventHub.Subscribe()
	defer eventHub.Unsubscribe(sub)

	updated, err := r.Heartbeat(context.Background(), types.HeartbeatRequest{NodeID: record.ID})
	require.NoError(t, err)
	assert.Equal(t, types.StatusOnline, updated.Status)

	select {
	case event := <-sub.C():
		assert.Equal(t, types.EventNodeRecovered, event.Kind)
		assert.Equal(t, record.ID, event.NodeID)
	case <-time.After(time.Second):
		t.Fatal("Expected recovered event")
	}
}

func TestDemoteStaleSkipsFreshNodes(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	stale := register(t, r, "stale", "drone_control")
	fresh := register(t, r, "fresh", "drone_control")

	r.mutex.Lock()
	r.nodes[stale.ID].LastHeartbeat = time.Now().Add(-10 * time.Minute)
	r.mutex.Unlock()

	demoted := r.DemoteStale(context.Background(), time.Now().Add(-5*time.Minute))
	assert.Equal(t, 1, demoted)

	staleRecord, _ := r.Get(stale.ID)
	freshRecord, _ := r.Get(fresh.ID)
	assert.Equal(t, types.StatusOffline, staleRecord.Status)
	assert.Equal(t, types.StatusSyncing, freshRecord.Status)
}

func TestDemoteStaleEmitsDemotedEvents(t *testing.T) {
	r, _, eventHub := newTestRegistry()
	defer r.Close()

	record := register(t, r, "atlas", "drone_control")

	sub := eventHub.Subscribe()
	defer eventHub.Unsubscribe(sub)

	r.DemoteStale(context.Background(), time.Now().Add(time.Hour))

	select {
	case event := <-sub.C():
		assert.Equal(t, types.EventNodeDemoted, event.Kind)
		assert.Equal(t, record.ID, event.NodeID)
	case <-time.After(time.Second):
		t.Fatal("Expected demoted event")
	}
}

func TestDemoteStaleAlreadyOfflineNotCounted(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	register(t, r, "atlas", "drone_control")

	first := r.DemoteStale(context.Background(), time.Now().Add(time.Hour))
	second := r.DemoteStale(context.Background(), time.Now().Add(time.Hour))

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second, "offline nodes are not demoted twice")
}

func TestDeregister(t *testing.T) {
	r, _, eventHub := newTestRegistry()
	defer r.Close()

	record := register(t, r, "atlas", "drone_control")

	sub := eventHub.Subscribe()
	defer eventHub.Unsubscribe(sub)

	require.NoError(t, r.Deregister(context.Background(), record.ID))
	assert.Empty(t, r.List(types.NodeFilter{}))

	_, err := r.Get(record.ID)
	require.Error(t, err)

	select {
	case event := <-sub.C():
		assert.Equal(t, types.EventNodeDeregistered, event.Kind)
	case <-time.After(time.Second):
		t.Fatal("Expected deregistered event")
	}

	// Identity is released: the same name+type gets a fresh id
	again := register(t, r, "atlas", "drone_control")
	assert.NotEqual(t, record.ID, again.ID)
}

func TestDeregisterUnknownIsNoOp(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	assert.NoError(t, r.Deregister(context.Background(), "ghost"))
}

func TestListFilters(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	drone := register(t, r, "atlas", "drone_control")
	register(t, r, "iris", "vision_processing")
	r.Heartbeat(context.Background(), types.HeartbeatRequest{NodeID: drone.ID})

	assert.Len(t, r.List(types.NodeFilter{}), 2)
	assert.Len(t, r.List(types.NodeFilter{Type: "drone_control"}), 1)
	assert.Len(t, r.List(types.NodeFilter{Status: types.StatusOnline}), 1)
	assert.Len(t, r.List(types.NodeFilter{Capability: "coordination"}), 2)
	assert.Len(t, r.List(types.NodeFilter{Capability: "levitation"}), 0)

	// Registration order is stable
	records := r.List(types.NodeFilter{})
	assert.Equal(t, "atlas", records[0].Name)
	assert.Equal(t, "iris", records[1].Name)
}

func TestListReturnsCopies(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	register(t, r, "atlas", "drone_control")

	records := r.List(types.NodeFilter{})
	records[0].Name = "mutated"

	again := r.List(types.NodeFilter{})
	assert.Equal(t, "atlas", again[0].Name)
}

func TestWriteBehindMirror(t *testing.T) {
	r, store, _ := newTestRegistry()

	record := register(t, r, "atlas", "drone_control")
	r.Close() // wait for async mirror writes

	persisted, err := store.LoadNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, record.ID, persisted[0].ID)

	events := store.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, types.EventNodeJoined, events[0].Kind)
}

// gatedStore stalls its first SaveNode until the gate opens, letting a
// test hold back one mirror write while later ones are issued.
type gatedStore struct {
	*storage.MemoryStore
	mutex sync.Mutex
	gate  chan struct{}
}

func (s *gatedStore) SaveNode(ctx context.Context, record *types.NodeRecord) error {
	s.mutex.Lock()
	gate := s.gate
	s.gate = nil
	s.mutex.Unlock()

	if gate != nil {
		<-gate
	}
	return s.MemoryStore.SaveNode(ctx, record)
}

func TestMirrorNeverOverwritesNewerSnapshot(t *testing.T) {
	gate := make(chan struct{})
	store := &gatedStore{MemoryStore: storage.NewMemoryStore(100), gate: gate}
	r := New(store, nil, nil, nil)

	record := register(t, r, "atlas", "drone_control")

	// The registration's mirror write is stalled behind the gate while
	// the heartbeat issues a newer snapshot.
	score := 42
	_, err := r.Heartbeat(context.Background(), types.HeartbeatRequest{NodeID: record.ID, HealthScore: &score})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	close(gate)
	r.Close()

	persisted, err := store.LoadNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, types.StatusOnline, persisted[0].Status, "stale registration snapshot must not win")
	assert.Equal(t, 42, persisted[0].HealthScore)
}

func TestRestoreComesBackOffline(t *testing.T) {
	store := storage.NewMemoryStore(100)

	first := New(store, hub.New(64, 3), nil, nil)
	record := register(t, first, "atlas", "drone_control")
	first.Heartbeat(context.Background(), types.HeartbeatRequest{NodeID: record.ID})
	first.Close()

	second := New(store, hub.New(64, 3), nil, nil)
	restored, err := second.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	got, err := second.Get(record.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOffline, got.Status, "restored nodes must reconfirm liveness")

	// Identity survives the restart
	again, err := second.Register(context.Background(), types.RegisterRequest{Name: "atlas", Type: "drone_control"})
	require.NoError(t, err)
	assert.Equal(t, record.ID, again.ID)
	second.Close()
}

func TestSummarize(t *testing.T) {
	r, _, _ := newTestRegistry()
	defer r.Close()

	drone := register(t, r, "atlas", "drone_control")
	register(t, r, "iris", "vision_processing")
	r.Heartbeat(context.Background(), types.HeartbeatRequest{NodeID: drone.ID})

	summary := r.Summarize()
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Healthy)
	assert.Equal(t, 1, summary.ByStatus["online"])
	assert.Equal(t, 1, summary.ByStatus["syncing"])
	assert.Equal(t, 1, summary.ByType["drone_control"])
}

func TestAdvisoryValidationAnnotates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"accepted": true, "annotations": {"confidence": 0.9}}`))
	}))
	defer server.Close()

	chain := pipeline.NewChain(config.PipelineConfig{
		Enabled: true,
		Stages:  []config.PipelineStage{{Name: "kan", URL: server.URL, Timeout: time.Second}},
	}, json.New("standard"), nil)

	store := storage.NewMemoryStore(100)
	r := New(store, hub.New(64, 3), chain, nil)

	record := register(t, r, "atlas", "drone_control")
	r.Close() // wait for the async validation pass

	annotations := r.Validations(record.ID)
	require.NotNil(t, annotations)
	kan := annotations["kan"].(map[string]interface{})
	assert.Equal(t, true, kan["accepted"])
}

func TestAdvisoryValidationFailureNeverBlocks(t *testing.T) {
	chain := pipeline.NewChain(config.PipelineConfig{
		Enabled: true,
		Stages:  []config.PipelineStage{{Name: "safety", URL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond}},
	}, json.New("standard"), nil)

	store := storage.NewMemoryStore(100)
	r := New(store, hub.New(64, 3), chain, nil)

	record := register(t, r, "atlas", "drone_control")
	assert.Equal(t, types.StatusSyncing, record.Status, "registration succeeds regardless of validation")
	r.Close()

	annotations := r.Validations(record.ID)
	require.NotNil(t, annotations)
	safety := annotations["safety"].(map[string]interface{})
	assert.Equal(t, true, safety["unvalidated"])
}
