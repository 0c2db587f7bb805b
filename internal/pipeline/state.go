package pipeline

import "fmt"

// State is the controller's position in the run lifecycle.
type State string

const (
	StateInitializing State = "Initializing"
	StateInjecting    State = "Injecting"
	StateRunning      State = "Running"
	StateExtracting   State = "Extracting"
	StateSucceeded    State = "Succeeded"
	StateTimedOut     State = "TimedOut"
	StateFailed       State = "Failed"
	StateCancelled    State = "Cancelled"
)

// IsTerminal reports whether the state is final. Terminal states always
// trigger teardown, regardless of outcome.
func IsTerminal(s State) bool {
	switch s {
	case StateSucceeded, StateTimedOut, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// isAllowedTransition encodes the run lifecycle. Failed and Cancelled are
// reachable from every non-terminal state; the rest is the linear happy
// path plus the timeout exit from Running.
func isAllowedTransition(from, to State) bool {
	if IsTerminal(from) {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	switch from {
	case StateInitializing:
		return to == StateInjecting
	case StateInjecting:
		return to == StateRunning
	case StateRunning:
		return to == StateExtracting || to == StateTimedOut
	case StateExtracting:
		return to == StateSucceeded
	default:
		return false
	}
}

// transition moves the run to a new state, validating the edge. An
// invalid transition is a programmer error, not a runtime condition.
func (r *Run) transition(to State) error {
	if !isAllowedTransition(r.State, to) {
		return fmt.Errorf("disallowed transition: %s -> %s", r.State, to)
	}
	r.State = to
	return nil
}
