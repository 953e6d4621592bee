// Package transition describes a tier going idle or active, and adapts
// handlers of those events into hub observers.
package transition

import (
	"time"

	"github.com/bnema/wayidle/internal/idle"
	"github.com/bnema/wayidle/internal/timer"
)

// State is the state a tier moved to.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// Event is one tier transition.
type Event struct {
	Tier    string
	Timeout time.Duration
	State   State
	At      time.Time
}

// Handler consumes transitions.
type Handler func(Event)

// Observer returns a hub observer that turns the tier's notifications into
// events stamped with clock.
func Observer(tier string, timeout time.Duration, clock timer.Clock, handle Handler) *idle.ObserverFuncs {
	emit := func(state State) {
		handle(Event{Tier: tier, Timeout: timeout, State: state, At: clock.Now()})
	}
	return &idle.ObserverFuncs{
		OnIdle:   func() { emit(StateIdle) },
		OnActive: func() { emit(StateActive) },
	}
}
