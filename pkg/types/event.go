package types

import (
	"time"
)

// EventKind classifies membership and coordination events
type EventKind string

const (
	// Membership events produced by the registry and heartbeat monitor
	EventNodeJoined       EventKind = "node_joined"
	EventNodeRecovered    EventKind = "node_recovered"
	EventNodeDemoted      EventKind = "node_demoted"
	EventNodeDeregistered EventKind = "node_deregistered"

	// Coordination events relayed on behalf of external collaborators
	EventMissionUpdate EventKind = "mission_update"
	EventMemorySync    EventKind = "memory_sync"
)

// IsMembership returns true for events produced by the registry/monitor
func (k EventKind) IsMembership() bool {
	switch k {
	case EventNodeJoined, EventNodeRecovered, EventNodeDemoted, EventNodeDeregistered:
		return true
	default:
		return false
	}
}

// IsValid returns true if the kind is one of the known event kinds
func (k EventKind) IsValid() bool {
	switch k {
	case EventNodeJoined, EventNodeRecovered, EventNodeDemoted, EventNodeDeregistered,
		EventMissionUpdate, EventMemorySync:
		return true
	default:
		return false
	}
}

// Event is an immutable fact delivered to every hub subscriber. Seq is the
// global sequence number assigned by the broadcast hub at publish time; it is
// zero until the event has been published.
type Event struct {
	Seq       uint64                 `cbor:"q" json:"seq" msgpack:"q"`
	Kind      EventKind              `cbor:"k" json:"kind" msgpack:"k"`
	NodeID    NodeID                 `cbor:"n,omitempty" json:"node_id,omitempty" msgpack:"n,omitempty"`
	Timestamp time.Time              `cbor:"ts" json:"timestamp" msgpack:"ts"`
	Data      map[string]interface{} `cbor:"d,omitempty" json:"data,omitempty" msgpack:"d,omitempty"`
}

// NewMembershipEvent builds an unsequenced membership event for a node
func NewMembershipEvent(kind EventKind, nodeID NodeID) *Event {
	return &Event{
		Kind:      kind,
		NodeID:    nodeID,
		Timestamp: time.Now().UTC(),
	}
}

// WithData attaches a payload field to the event and returns it
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}
