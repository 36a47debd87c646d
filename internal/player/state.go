// Package player schedules decoded speech audio into an output device and
// exposes the session lifecycle consumed by UI controls.
package player

import "slices"

// State is the lifecycle of one playback session.
type State int

const (
	// StateIdle: no session activity. Controls with no session report Idle.
	StateIdle State = iota
	// StateLoading: stream fetch initiated, no audio emitted yet.
	StateLoading
	// StatePlaying: the device callback is draining the queue.
	StatePlaying
	// StateDraining: stream complete, cursor catching up to the queue end.
	StateDraining
	// StateStopped: terminal; resources released.
	StateStopped
	// StateError: terminal; setup or pre-playback transport failure.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

var validTransitions = map[State][]State{
	StateIdle:     {StateLoading, StateStopped},
	StateLoading:  {StatePlaying, StateStopped, StateError},
	StatePlaying:  {StateDraining, StateStopped},
	StateDraining: {StateStopped},
}

// canTransition reports whether from -> to is a legal lifecycle step.
func canTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}
