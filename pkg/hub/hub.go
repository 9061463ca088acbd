// Package hub implements the real-time broadcast fan-out. Every published
// event gets a globally ordered sequence number and is delivered to all
// connected subscribers over bounded queues.
package hub

import (
	"sync"
	"time"

	"github.com/organica-ai/nishub/pkg/types"
)

// Disconnect reasons reported on Subscriber.Reason
const (
	ReasonLagging      = "lagging"
	ReasonUnsubscribed = "unsubscribed"
	ReasonShutdown     = "shutdown"
)

// Subscriber is one consumer of the event stream. Events arrive on C();
// Done() closes when the hub detaches the subscriber, with Reason()
// explaining why. A subscriber disconnected for lagging must resync the
// roster via the registry list operation, the hub never replays history.
type Subscriber struct {
	id      uint64
	ch      chan *types.Event
	done    chan struct{}
	once    sync.Once
	reason  string
	strikes int
	lagging bool
}

// C returns the event delivery channel
func (s *Subscriber) C() <-chan *types.Event {
	return s.ch
}

// Done returns a channel closed when the subscriber is detached
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Reason returns why the subscriber was detached. Empty until Done closes.
func (s *Subscriber) Reason() string {
	return s.reason
}

func (s *Subscriber) detach(reason string) {
	s.once.Do(func() {
		s.reason = reason
		close(s.done)
	})
}

// Stats is a point-in-time snapshot of hub counters
type Stats struct {
	Subscribers    int    `json:"subscribers"`
	LastSeq        uint64 `json:"last_seq"`
	Published      uint64 `json:"published"`
	DroppedEvents  uint64 `json:"dropped_events"`
	LagDisconnects uint64 `json:"lag_disconnects"`
}

// Hub fans events out to subscribers. The zero value is not usable,
// construct with New.
type Hub struct {
	mutex       sync.Mutex
	subscribers map[uint64]*Subscriber
	nextID      uint64
	seq         uint64
	queueSize   int
	strikeLimit int
	closed      bool

	published      uint64
	droppedEvents  uint64
	lagDisconnects uint64
}

// New creates a hub. queueSize bounds each subscriber's pending events;
// strikeLimit is how many overflow episodes a subscriber survives before
// the hub force-disconnects it.
func New(queueSize, strikeLimit int) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	if strikeLimit <= 0 {
		strikeLimit = 3
	}
	return &Hub{
		subscribers: make(map[uint64]*Subscriber),
		queueSize:   queueSize,
		strikeLimit: strikeLimit,
	}
}

// Subscribe attaches a new subscriber. The subscriber only sees events
// published after this call.
func (h *Hub) Subscribe() *Subscriber {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.nextID++
	sub := &Subscriber{
		id:   h.nextID,
		ch:   make(chan *types.Event, h.queueSize),
		done: make(chan struct{}),
	}

	if h.closed {
		sub.detach(ReasonShutdown)
		return sub
	}

	h.subscribers[sub.id] = sub
	return sub
}

// Publish assigns the event its sequence number and delivers it to every
// subscriber. Delivery never blocks: a subscriber with a full queue loses
// its oldest pending event and earns a lag strike.
func (h *Hub) Publish(event *types.Event) uint64 {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return 0
	}

	h.seq++
	event.Seq = h.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.published++

	for id, sub := range h.subscribers {
		select {
		case sub.ch <- event:
			// A successful delivery clears the lag history: only a
			// sustained overflow streak disconnects a subscriber.
			sub.lagging = false
			sub.strikes = 0
			continue
		default:
		}

		// Queue full: drop the oldest so the newest still lands
		select {
		case <-sub.ch:
			h.droppedEvents++
		default:
		}
		select {
		case sub.ch <- event:
		default:
		}

		sub.lagging = true
		sub.strikes++
		if sub.strikes >= h.strikeLimit {
			delete(h.subscribers, id)
			h.lagDisconnects++
			sub.detach(ReasonLagging)
		}
	}

	return event.Seq
}

// Unsubscribe detaches a subscriber and releases its queue. Safe to call
// for a subscriber the hub already force-disconnected.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mutex.Lock()
	delete(h.subscribers, sub.id)
	h.mutex.Unlock()

	sub.detach(ReasonUnsubscribed)
}

// Close detaches all subscribers and rejects further publishes
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		sub.detach(ReasonShutdown)
	}
}

// Stats returns a snapshot of hub counters
func (h *Hub) Stats() Stats {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return Stats{
		Subscribers:    len(h.subscribers),
		LastSeq:        h.seq,
		Published:      h.published,
		DroppedEvents:  h.droppedEvents,
		LagDisconnects: h.lagDisconnects,
	}
}
