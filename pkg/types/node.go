package types

import (
	"time"
)

// NodeID represents a unique node identifier assigned at registration
type NodeID string

// NodeStatus represents the membership state of a registered node
type NodeStatus string

const (
	// StatusSyncing means the node registered but has not yet sent a heartbeat
	StatusSyncing NodeStatus = "syncing"
	// StatusOnline means the node is actively heartbeating
	StatusOnline NodeStatus = "online"
	// StatusOffline means the heartbeat monitor demoted the node after a timeout
	StatusOffline NodeStatus = "offline"
)

// IsValid returns true if the status is one of the known membership states
func (s NodeStatus) IsValid() bool {
	switch s {
	case StatusSyncing, StatusOnline, StatusOffline:
		return true
	default:
		return false
	}
}

// NodeRecord is the authoritative state for one registered agent node
type NodeRecord struct {
	ID           NodeID     `cbor:"i" json:"id" msgpack:"i"`
	Name         string     `cbor:"n" json:"name" msgpack:"n"`
	Type         string     `cbor:"t" json:"type" msgpack:"t"`
	Endpoint     string     `cbor:"e,omitempty" json:"endpoint,omitempty" msgpack:"e,omitempty"`
	Capabilities []string   `cbor:"c,omitempty" json:"capabilities,omitempty" msgpack:"c,omitempty"`
	Status       NodeStatus `cbor:"s" json:"status" msgpack:"s"`
	HealthScore  int        `cbor:"hs" json:"health_score" msgpack:"hs"`
	Version      string     `cbor:"v,omitempty" json:"version,omitempty" msgpack:"v,omitempty"`

	RegisteredAt  time.Time `cbor:"ra" json:"registered_at" msgpack:"ra"`
	LastHeartbeat time.Time `cbor:"lh" json:"last_heartbeat" msgpack:"lh"`

	// StatusHint is the last self-reported status string from a heartbeat.
	// Informational only; the registry never derives state transitions from it.
	StatusHint string `cbor:"sh,omitempty" json:"status_hint,omitempty" msgpack:"sh,omitempty"`
}

// HasCapability returns true if the node declared the given capability tag
func (n *NodeRecord) HasCapability(capability string) bool {
	for _, c := range n.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record. The registry hands out clones so
// callers can never mutate registry-owned state directly.
func (n *NodeRecord) Clone() *NodeRecord {
	c := *n
	if n.Capabilities != nil {
		c.Capabilities = make([]string, len(n.Capabilities))
		copy(c.Capabilities, n.Capabilities)
	}
	return &c
}

// RegisterRequest carries the caller-supplied fields for node registration
type RegisterRequest struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Endpoint     string   `json:"endpoint,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Version      string   `json:"version,omitempty"`
}

// HeartbeatRequest carries the caller-supplied fields for a heartbeat
type HeartbeatRequest struct {
	NodeID      NodeID  `json:"node_id"`
	HealthScore *int    `json:"health_score,omitempty"`
	StatusHint  string  `json:"status_hint,omitempty"`
	CPUUsage    float64 `json:"cpu_usage,omitempty"`
	MemoryUsage float64 `json:"memory_usage,omitempty"`
	ActiveTasks int     `json:"active_tasks,omitempty"`
}

// NodeFilter selects a subset of records from a registry listing
type NodeFilter struct {
	Status     NodeStatus `json:"status,omitempty"`
	Type       string     `json:"type,omitempty"`
	Capability string     `json:"capability,omitempty"`
}

// Matches returns true if the record passes every set filter field
func (f NodeFilter) Matches(n *NodeRecord) bool {
	if f.Status != "" && n.Status != f.Status {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Capability != "" && !n.HasCapability(f.Capability) {
		return false
	}
	return true
}
