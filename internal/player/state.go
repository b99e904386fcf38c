// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

// State is the lifecycle phase of a playback session.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateRecovering State = "recovering"
	StateFailed     State = "failed"
	StateDestroyed  State = "destroyed"
)

// IsTerminal reports whether no further transitions leave s.
func (s State) IsTerminal() bool {
	return s == StateFailed || s == StateDestroyed
}

// Busy reports whether a loading indicator should be shown.
func (s State) Busy() bool {
	return s == StateLoading || s == StateRecovering
}

// Event drives the session state machine.
type Event string

const (
	EvLoad    Event = "load"    // source attached to the surface
	EvReady   Event = "ready"   // media playable
	EvFault   Event = "fault"   // recoverable fault, recovery issued
	EvFail    Event = "fail"    // fatal fault or exhausted budget
	EvDestroy Event = "destroy" // owner released the session
)

// Transition is a single allowed edge.
type Transition struct {
	From  State
	Event Event
	To    State
}

var transitionsTable = []Transition{
	// Start path
	{From: StateIdle, Event: EvLoad, To: StateLoading},
	{From: StateLoading, Event: EvReady, To: StateReady},

	// Recovery
	{From: StateLoading, Event: EvFault, To: StateRecovering},
	{From: StateReady, Event: EvFault, To: StateRecovering},
	{From: StateRecovering, Event: EvFault, To: StateRecovering},
	{From: StateRecovering, Event: EvReady, To: StateReady},

	// Failure
	{From: StateIdle, Event: EvFail, To: StateFailed},
	{From: StateLoading, Event: EvFail, To: StateFailed},
	{From: StateReady, Event: EvFail, To: StateFailed},
	{From: StateRecovering, Event: EvFail, To: StateFailed},

	// Release
	{From: StateIdle, Event: EvDestroy, To: StateDestroyed},
	{From: StateLoading, Event: EvDestroy, To: StateDestroyed},
	{From: StateReady, Event: EvDestroy, To: StateDestroyed},
	{From: StateRecovering, Event: EvDestroy, To: StateDestroyed},
}

// TransitionFor returns the allowed transition for from+ev.
func TransitionFor(from State, ev Event) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}
