// Package connectivity observes whether the device can reach the remote API.
package connectivity

import "context"

// State is a connectivity snapshot.
type State struct {
	// Connected is true when a network link exists.
	Connected bool `json:"connected"`
	// Reachable is true when the remote API answered. It is only
	// meaningful when Connected is true.
	Reachable bool `json:"reachable"`
}

// Online reports whether remote calls are worth attempting.
func (s State) Online() bool {
	return s.Connected && s.Reachable
}

// Prober determines the current connectivity state.
type Prober interface {
	Probe(ctx context.Context) State
}

// StaticProber always reports the same state. Used when no probe URL is
// configured, and in tests.
type StaticProber struct {
	State State
}

func (p StaticProber) Probe(context.Context) State {
	return p.State
}
