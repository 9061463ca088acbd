// Package registry owns the authoritative node roster. All membership
// state transitions happen here, under one lock, and are mirrored to
// storage and announced through the hub.
package registry

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/organica-ai/nishub/pkg/hub"
	"github.com/organica-ai/nishub/pkg/monitoring"
	"github.com/organica-ai/nishub/pkg/pipeline"
	"github.com/organica-ai/nishub/pkg/storage"
	"github.com/organica-ai/nishub/pkg/types"
)

const mirrorTimeout = 5 * time.Second

// Summary aggregates roster counts for the stats endpoint
type Summary struct {
	Total    int            `json:"total"`
	Healthy  int            `json:"healthy"`
	ByStatus map[string]int `json:"by_status"`
	ByType   map[string]int `json:"by_type"`
}

// Registry is the source of truth for registered nodes. Storage is a
// write-behind mirror; the hub carries membership events; the pipeline
// annotates registrations without ever blocking them.
type Registry struct {
	mutex sync.RWMutex
	nodes map[types.NodeID]*types.NodeRecord
	order []types.NodeID
	byKey map[string]types.NodeID

	// Advisory validation verdicts per node, written asynchronously
	validations map[types.NodeID]map[string]interface{}

	hub     *hub.Hub
	store   storage.NodeStore
	chain   *pipeline.Chain
	metrics *monitoring.Metrics

	// version stamps every roster mutation under the registry lock;
	// mirrorSeen tracks the highest version written per node so a stale
	// mirror write can never overwrite a newer one.
	version    uint64
	mirrorMu   sync.Mutex
	mirrorSeen map[types.NodeID]uint64

	clock func() time.Time
	wg    sync.WaitGroup
}

// New creates a registry. chain and metrics may be nil.
func New(store storage.NodeStore, eventHub *hub.Hub, chain *pipeline.Chain, metrics *monitoring.Metrics) *Registry {
	return &Registry{
		nodes:       make(map[types.NodeID]*types.NodeRecord),
		byKey:       make(map[string]types.NodeID),
		validations: make(map[types.NodeID]map[string]interface{}),
		hub:         eventHub,
		store:       store,
		chain:       chain,
		metrics:     metrics,
		mirrorSeen:  make(map[types.NodeID]uint64),
		clock:       time.Now,
	}
}

// identityKey is the logical identity of a node: re-registering the same
// name and type updates the existing record instead of creating a twin.
func identityKey(name, nodeType string) string {
	return name + "\x00" + nodeType
}

// Register admits a node into the roster. Registration is idempotent on
// name+type: a repeat registration keeps the assigned id, refreshes the
// caller-supplied fields, and resets the node to online.
func (r *Registry) Register(ctx context.Context, req types.RegisterRequest) (*types.NodeRecord, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, types.ErrValidation("name", "must not be empty")
	}
	nodeType := strings.TrimSpace(req.Type)
	if nodeType == "" {
		return nil, types.ErrValidation("type", "must not be empty")
	}

	now := r.clock().UTC()

	r.mutex.Lock()
	var record *types.NodeRecord

	if id, exists := r.byKey[identityKey(name, nodeType)]; exists {
		record = r.nodes[id]
		previous := record.Status
		record.Endpoint = req.Endpoint
		record.Capabilities = append([]string(nil), req.Capabilities...)
		record.Version = req.Version
		record.Status = types.StatusOnline
		record.LastHeartbeat = now

		if previous == types.StatusOffline {
			r.publishLocked(types.NewMembershipEvent(types.EventNodeRecovered, record.ID))
		}
	} else {
		record = &types.NodeRecord{
			ID:            types.NodeID(uuid.New().String()),
			Name:          name,
			Type:          nodeType,
			Endpoint:      req.Endpoint,
			Capabilities:  append([]string(nil), req.Capabilities...),
			Status:        types.StatusSyncing,
			HealthScore:   100,
			Version:       req.Version,
			RegisteredAt:  now,
			LastHeartbeat: now,
		}
		r.nodes[record.ID] = record
		r.order = append(r.order, record.ID)
		r.byKey[identityKey(name, nodeType)] = record.ID

		r.publishLocked(types.NewMembershipEvent(types.EventNodeJoined, record.ID).
			WithData("name", name).
			WithData("type", nodeType))
	}

	snapshot := record.Clone()
	version := r.stampLocked()
	r.updateGaugesLocked()
	r.mutex.Unlock()

	if r.metrics != nil {
		r.metrics.RecordRegistration()
	}
	r.mirrorSave(snapshot, version)
	r.validateAsync(snapshot.ID, req)

	return snapshot, nil
}

// Heartbeat refreshes a node's liveness. A heartbeat can bring a node
// online, it can never take one offline; demotion belongs exclusively to
// the monitor.
func (r *Registry) Heartbeat(ctx context.Context, req types.HeartbeatRequest) (*types.NodeRecord, error) {
	now := r.clock().UTC()

	r.mutex.Lock()
	record, exists := r.nodes[req.NodeID]
	if !exists {
		r.mutex.Unlock()
		return nil, types.ErrNodeNotFound(req.NodeID)
	}

	previous := record.Status
	record.LastHeartbeat = now
	if req.HealthScore != nil {
		score := *req.HealthScore
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		record.HealthScore = score
	}
	if req.StatusHint != "" {
		record.StatusHint = req.StatusHint
	}
	record.Status = types.StatusOnline

	if previous == types.StatusOffline {
		r.publishLocked(types.NewMembershipEvent(types.EventNodeRecovered, record.ID))
	}

	snapshot := record.Clone()
	version := r.stampLocked()
	r.updateGaugesLocked()
	r.mutex.Unlock()

	if r.metrics != nil {
		r.metrics.RecordHeartbeat()
	}
	r.mirrorSave(snapshot, version)

	return snapshot, nil
}

// Get returns a copy of one node record
func (r *Registry) Get(nodeID types.NodeID) (*types.NodeRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	record, exists := r.nodes[nodeID]
	if !exists {
		return nil, types.ErrNodeNotFound(nodeID)
	}
	return record.Clone(), nil
}

// List returns copies of all records passing the filter, in registration
// order.
func (r *Registry) List(filter types.NodeFilter) []*types.NodeRecord {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	records := make([]*types.NodeRecord, 0, len(r.order))
	for _, id := range r.order {
		record := r.nodes[id]
		if filter.Matches(record) {
			records = append(records, record.Clone())
		}
	}
	return records
}

// Deregister removes a node from the roster. Unknown ids are a no-op so
// shutdown races stay harmless.
func (r *Registry) Deregister(ctx context.Context, nodeID types.NodeID) error {
	r.mutex.Lock()
	record, exists := r.nodes[nodeID]
	if !exists {
		r.mutex.Unlock()
		return nil
	}

	delete(r.nodes, nodeID)
	delete(r.byKey, identityKey(record.Name, record.Type))
	delete(r.validations, nodeID)
	for i, id := range r.order {
		if id == nodeID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.publishLocked(types.NewMembershipEvent(types.EventNodeDeregistered, nodeID).
		WithData("name", record.Name))
	version := r.stampLocked()
	r.updateGaugesLocked()
	r.mutex.Unlock()

	if r.metrics != nil {
		r.metrics.RecordDeregistration()
	}
	r.mirrorDelete(nodeID, version)

	return nil
}

// DemoteStale moves every node whose last heartbeat predates the cutoff
// to offline. Each record commits under its own lock acquisition, so a
// heartbeat racing the sweep wins and the node stays online.
func (r *Registry) DemoteStale(ctx context.Context, cutoff time.Time) int {
	r.mutex.RLock()
	candidates := make([]types.NodeID, 0)
	for _, id := range r.order {
		record := r.nodes[id]
		if record.Status != types.StatusOffline && record.LastHeartbeat.Before(cutoff) {
			candidates = append(candidates, id)
		}
	}
	r.mutex.RUnlock()

	demoted := 0
	for _, id := range candidates {
		select {
		case <-ctx.Done():
			return demoted
		default:
		}

		r.mutex.Lock()
		record, exists := r.nodes[id]
		// Recheck: a heartbeat or deregister may have landed meanwhile
		if !exists || record.Status == types.StatusOffline || !record.LastHeartbeat.Before(cutoff) {
			r.mutex.Unlock()
			continue
		}

		record.Status = types.StatusOffline
		r.publishLocked(types.NewMembershipEvent(types.EventNodeDemoted, id))
		snapshot := record.Clone()
		version := r.stampLocked()
		r.updateGaugesLocked()
		r.mutex.Unlock()

		demoted++
		r.mirrorSave(snapshot, version)
	}

	if demoted > 0 && r.metrics != nil {
		r.metrics.RecordDemotions(demoted)
	}
	return demoted
}

// Restore replays persisted records into an empty roster at startup.
// Restored nodes come back offline: they must heartbeat or re-register
// to reconfirm liveness. No events are published.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	records, err := r.store.LoadNodes(ctx)
	if err != nil {
		return 0, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	restored := 0
	for _, record := range records {
		if _, exists := r.nodes[record.ID]; exists {
			continue
		}
		record.Status = types.StatusOffline
		r.nodes[record.ID] = record
		r.order = append(r.order, record.ID)
		r.byKey[identityKey(record.Name, record.Type)] = record.ID
		restored++
	}

	r.updateGaugesLocked()
	return restored, nil
}

// Summarize aggregates roster counts. Healthy means online.
func (r *Registry) Summarize() Summary {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	summary := Summary{
		Total:    len(r.order),
		ByStatus: make(map[string]int),
		ByType:   make(map[string]int),
	}
	for _, id := range r.order {
		record := r.nodes[id]
		summary.ByStatus[string(record.Status)]++
		summary.ByType[record.Type]++
		if record.Status == types.StatusOnline {
			summary.Healthy++
		}
	}
	return summary
}

// Validations returns the advisory pipeline annotations recorded for a
// node, or nil when none arrived yet.
func (r *Registry) Validations(nodeID types.NodeID) map[string]interface{} {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.validations[nodeID]
}

// Close waits for in-flight mirror writes to finish
func (r *Registry) Close() {
	r.wg.Wait()
}

// publishLocked publishes under the registry lock so event order always
// matches roster mutation order.
func (r *Registry) publishLocked(event *types.Event) {
	if r.hub == nil {
		return
	}
	r.hub.Publish(event)
	if r.metrics != nil {
		r.metrics.RecordEventPublished(string(event.Kind))
	}
	r.appendEventAsync(event)
}

func (r *Registry) updateGaugesLocked() {
	if r.metrics == nil {
		return
	}
	counts := map[types.NodeStatus]int{
		types.StatusSyncing: 0,
		types.StatusOnline:  0,
		types.StatusOffline: 0,
	}
	for _, record := range r.nodes {
		counts[record.Status]++
	}
	for status, count := range counts {
		r.metrics.SetNodeCount(string(status), count)
	}
}

// stampLocked assigns the version for a roster mutation. Must be called
// with the registry lock held.
func (r *Registry) stampLocked() uint64 {
	r.version++
	return r.version
}

// mirrorSave writes the snapshot behind the roster. Writes are serialized
// and version-gated: a snapshot older than what storage already holds for
// the node is discarded instead of overwriting newer state.
func (r *Registry) mirrorSave(record *types.NodeRecord, version uint64) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()

		r.mirrorMu.Lock()
		defer r.mirrorMu.Unlock()
		if version <= r.mirrorSeen[record.ID] {
			return
		}

		start := time.Now()
		err := r.store.SaveNode(ctx, record)
		if r.metrics != nil {
			r.metrics.RecordStorageOperation("save_node", err == nil, time.Since(start))
		}
		if err != nil {
			log.Printf("[registry] mirror save failed for node %s: %v", record.ID, err)
			return
		}
		r.mirrorSeen[record.ID] = version
	}()
}

func (r *Registry) mirrorDelete(nodeID types.NodeID, version uint64) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()

		r.mirrorMu.Lock()
		defer r.mirrorMu.Unlock()
		if version <= r.mirrorSeen[nodeID] {
			return
		}

		start := time.Now()
		err := r.store.DeleteNode(ctx, nodeID)
		if r.metrics != nil {
			r.metrics.RecordStorageOperation("delete_node", err == nil, time.Since(start))
		}
		if err != nil {
			log.Printf("[registry] mirror delete failed for node %s: %v", nodeID, err)
			return
		}
		// The entry stays as a tombstone so a straggling save for the
		// removed node cannot resurrect it.
		r.mirrorSeen[nodeID] = version
	}()
}

func (r *Registry) appendEventAsync(event *types.Event) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()

		if err := r.store.AppendEvent(ctx, event); err != nil {
			log.Printf("[registry] event log append failed: %v", err)
		}
	}()
}

func (r *Registry) validateAsync(nodeID types.NodeID, req types.RegisterRequest) {
	if r.chain == nil || r.chain.Len() == 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		annotations := r.chain.Run(ctx, req)
		if annotations == nil {
			return
		}

		r.mutex.Lock()
		if _, exists := r.nodes[nodeID]; exists {
			r.validations[nodeID] = annotations
		}
		r.mutex.Unlock()
	}()
}
