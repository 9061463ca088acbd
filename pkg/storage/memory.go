package storage

import (
	"context"
	"sync"
	"time"

	"github.com/organica-ai/nishub/pkg/types"
)

// MemoryStore provides a non-persistent, in-memory implementation of
// NodeStore. It is the default backend and the one tests run against.
type MemoryStore struct {
	nodes  map[types.NodeID]*types.NodeRecord
	order  []types.NodeID
	events []*types.Event
	mutex  sync.RWMutex

	eventLogSize int
	stats        StorageStats
}

// NewMemoryStore creates a new in-memory store. eventLogSize caps the
// membership event log; zero or negative disables the cap.
func NewMemoryStore(eventLogSize int) *MemoryStore {
	return &MemoryStore{
		nodes:        make(map[types.NodeID]*types.NodeRecord),
		eventLogSize: eventLogSize,
	}
}

func (s *MemoryStore) SaveNode(ctx context.Context, record *types.NodeRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.nodes[record.ID]; !exists {
		s.order = append(s.order, record.ID)
	}
	s.nodes[record.ID] = record.Clone()
	s.stats.SaveCount++
	s.stats.LastWriteTime = time.Now()
	return nil
}

func (s *MemoryStore) DeleteNode(ctx context.Context, nodeID types.NodeID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.nodes[nodeID]; !exists {
		return nil
	}
	delete(s.nodes, nodeID)
	for i, id := range s.order {
		if id == nodeID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.stats.DeleteCount++
	s.stats.LastWriteTime = time.Now()
	return nil
}

func (s *MemoryStore) LoadNodes(ctx context.Context) ([]*types.NodeRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	records := make([]*types.NodeRecord, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, s.nodes[id].Clone())
	}
	return records, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, event *types.Event) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.events = append(s.events, event)
	if s.eventLogSize > 0 && len(s.events) > s.eventLogSize {
		s.events = s.events[len(s.events)-s.eventLogSize:]
	}
	return nil
}

// Events returns a snapshot of the audit log, oldest first.
func (s *MemoryStore) Events() []*types.Event {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]*types.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*StorageStats, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := s.stats
	stats.NodeCount = int64(len(s.nodes))
	stats.EventCount = int64(len(s.events))
	stats.Status = "healthy"
	return &stats, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
