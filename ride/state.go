package ride

import "fmt"

// State is the logical ride state reconciled from operator activation and coaster telemetry.
type State int

const (
	Deactivated State = iota
	ReadyForDispatch
	Running
	Paused
	Resetting
)

var stateNames = [...]string{"Deactivated", "ReadyForDispatch", "Running", "Paused", "Resetting"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown ride state %q", b)
}

// Event is a coaster event consumed by the ride state machine.
type Event int

const (
	EventActivated Event = iota
	EventDeactivated
	EventPaused
	EventUnpaused
	EventDispatched
	EventStopped
	EventReset
)

var eventNames = [...]string{"ACTIVATED", "DEACTIVATED", "PAUSED", "UNPAUSED", "DISPATCHED", "STOPPED", "RESETEVENT"}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return eventNames[e]
}
