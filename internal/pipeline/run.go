// Package pipeline composes the coordinator: it starts stage processes,
// injects the work list, waits for the terminal sentinel, extracts
// results, and always tears the pipeline down on a terminal state.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"convoy/internal/extract"
	"convoy/internal/runner"
)

// Run is the aggregate record of one pipeline execution. It is identified
// by a fresh ID and by the lifetime of the shared volume contents between
// reset and teardown.
type Run struct {
	// ID uniquely names this run in logs and diagnostics.
	ID string

	// WorkItems is the ordered initial input.
	WorkItems []string

	// State is the controller's current lifecycle position.
	State State

	StartedAt time.Time
	Elapsed   time.Duration

	// WaitElapsed is how long the completion wait took (zero if the run
	// failed before Running).
	WaitElapsed time.Duration

	// Polls is the number of sentinel probes performed.
	Polls int

	// Err holds the terminal error for non-Succeeded runs.
	Err error

	// Extraction summarizes what was copied out, when extraction ran.
	Extraction extract.Result

	// Diagnostics is the stage post-mortem collected before teardown on
	// non-success terminal states.
	Diagnostics []runner.Diagnostic
}

// newRun returns a Pending-equivalent run in Initializing state.
func newRun(items []string) *Run {
	return &Run{
		ID:        uuid.NewString()[:8],
		WorkItems: items,
		State:     StateInitializing,
		StartedAt: time.Now(),
	}
}

// Succeeded reports whether the run reached the Succeeded state.
func (r *Run) Succeeded() bool {
	return r.State == StateSucceeded
}
