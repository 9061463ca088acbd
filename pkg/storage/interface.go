package storage

import (
	"context"
	"time"

	"github.com/organica-ai/nishub/pkg/types"
)

// NodeStore defines the interface for the persistence mirror. The registry
// is the source of truth while the process runs; the store only has to be
// good enough to rebuild the roster after a restart.
type NodeStore interface {
	// SaveNode persists the current state of a node record
	SaveNode(ctx context.Context, record *types.NodeRecord) error

	// DeleteNode removes a node record
	DeleteNode(ctx context.Context, nodeID types.NodeID) error

	// LoadNodes returns all persisted records in registration order
	LoadNodes(ctx context.Context) ([]*types.NodeRecord, error)

	// AppendEvent appends a membership event to the capped audit log
	AppendEvent(ctx context.Context, event *types.Event) error

	// Ping checks storage health
	Ping(ctx context.Context) error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*StorageStats, error)

	// Close releases storage resources
	Close() error
}

// StorageStats represents storage statistics
type StorageStats struct {
	NodeCount     int64     `json:"node_count"`
	EventCount    int64     `json:"event_count"`
	SaveCount     int64     `json:"save_count"`
	DeleteCount   int64     `json:"delete_count"`
	FailedOps     int64     `json:"failed_ops"`
	StoredBytes   int64     `json:"stored_bytes"`
	LastWriteTime time.Time `json:"last_write_time"`

	Status string `json:"status"`
}
