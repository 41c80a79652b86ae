package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/inspection-sync/internal/pkg/metrics"
)

const defaultInterval = 15 * time.Second

// Monitor keeps the last known State and notifies listeners when it changes.
type Monitor struct {
	prober   Prober
	interval time.Duration

	mu        sync.Mutex
	state     State
	known     bool
	listeners []listener
	nextID    int
}

type listener struct {
	id int
	fn func(State)
}

// NewMonitor creates a monitor that probes every interval while Run is active.
func NewMonitor(prober Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{prober: prober, interval: interval}
}

// Status probes now and records the result.
func (m *Monitor) Status(ctx context.Context) State {
	s := m.prober.Probe(ctx)
	m.Set(s)
	return s
}

// Current returns the last recorded state without probing.
func (m *Monitor) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnChange registers fn for state changes. The returned func removes it.
func (m *Monitor) OnChange(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, l := range m.listeners {
				if l.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Set records s and notifies listeners if it differs from the previous state.
// The first recorded state is always published.
func (m *Monitor) Set(s State) {
	m.mu.Lock()
	changed := !m.known || m.state != s
	m.state = s
	m.known = true
	var fns []func(State)
	if changed {
		fns = make([]func(State), 0, len(m.listeners))
		for _, l := range m.listeners {
			fns = append(fns, l.fn)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	metrics.RecordConnectivity(s.Connected, s.Reachable)
	slog.Info("connectivity changed", "connected", s.Connected, "reachable", s.Reachable)

	for _, fn := range fns {
		fn(s)
	}
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Status(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Status(ctx)
		case <-ctx.Done():
			return
		}
	}
}
