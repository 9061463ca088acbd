// Package heartbeat runs the staleness sweep. The monitor is the only
// component allowed to take a node offline.
package heartbeat

import (
	"context"
	"log"
	"sync"
	"time"
)

// Demoter is the registry operation the monitor drives
type Demoter interface {
	DemoteStale(ctx context.Context, cutoff time.Time) int
}

// Monitor periodically demotes nodes whose last heartbeat is older than
// the timeout. Losing the monitor only degrades staleness detection;
// registrations, heartbeats and broadcasts keep working without it.
type Monitor struct {
	demoter  Demoter
	interval time.Duration
	timeout  time.Duration
	clock    func() time.Time

	mutex   sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a monitor sweeping every interval for nodes stale
// beyond timeout.
func NewMonitor(demoter Demoter, interval, timeout time.Duration) *Monitor {
	return &Monitor{
		demoter:  demoter,
		interval: interval,
		timeout:  timeout,
		clock:    time.Now,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Subsequent calls, and calls on an
// already stopped monitor, are no-ops.
func (m *Monitor) Start(ctx context.Context) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.started || m.stopped {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

// Stop cancels the sweep loop and waits for it to exit. Safe to call at
// any point, including before Start and more than once.
func (m *Monitor) Stop() {
	m.mutex.Lock()
	if m.stopped {
		m.mutex.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	m.mutex.Unlock()

	if !started {
		return
	}
	m.cancel()
	<-m.done
}

// Sweep runs one demotion pass and returns how many nodes went offline
func (m *Monitor) Sweep(ctx context.Context) int {
	cutoff := m.clock().Add(-m.timeout)
	return m.demoter.DemoteStale(ctx, cutoff)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if demoted := m.Sweep(ctx); demoted > 0 {
				log.Printf("[heartbeat] demoted %d stale node(s)", demoted)
			}
		}
	}
}
