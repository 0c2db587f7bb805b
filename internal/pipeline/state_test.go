package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTerminal(t *testing.T) {
	terminal := []State{StateSucceeded, StateTimedOut, StateFailed, StateCancelled}
	for _, s := range terminal {
		assert.True(t, IsTerminal(s), "%s should be terminal", s)
	}

	active := []State{StateInitializing, StateInjecting, StateRunning, StateExtracting}
	for _, s := range active {
		assert.False(t, IsTerminal(s), "%s should not be terminal", s)
	}
}

func TestHappyPathTransitions(t *testing.T) {
	run := newRun([]string{"item"})
	require.Equal(t, StateInitializing, run.State)

	for _, to := range []State{StateInjecting, StateRunning, StateExtracting, StateSucceeded} {
		require.NoError(t, run.transition(to))
	}
	assert.True(t, run.Succeeded())
}

func TestFailureReachableFromEveryActiveState(t *testing.T) {
	active := []State{StateInitializing, StateInjecting, StateRunning, StateExtracting}
	for _, from := range active {
		for _, to := range []State{StateFailed, StateCancelled} {
			assert.True(t, isAllowedTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTimedOutOnlyFromRunning(t *testing.T) {
	assert.True(t, isAllowedTransition(StateRunning, StateTimedOut))

	for _, from := range []State{StateInitializing, StateInjecting, StateExtracting} {
		assert.False(t, isAllowedTransition(from, StateTimedOut), "from %s", from)
	}
}

func TestNoTransitionsOutOfTerminalStates(t *testing.T) {
	all := []State{
		StateInitializing, StateInjecting, StateRunning, StateExtracting,
		StateSucceeded, StateTimedOut, StateFailed, StateCancelled,
	}
	for _, from := range all {
		if !IsTerminal(from) {
			continue
		}
		for _, to := range all {
			assert.False(t, isAllowedTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestNoSkippingForward(t *testing.T) {
	assert.False(t, isAllowedTransition(StateInitializing, StateRunning))
	assert.False(t, isAllowedTransition(StateInjecting, StateExtracting))
	assert.False(t, isAllowedTransition(StateRunning, StateSucceeded))
}

func TestTransitionRejectsInvalidEdge(t *testing.T) {
	run := newRun([]string{"item"})
	err := run.transition(StateExtracting)
	require.Error(t, err)
	assert.Equal(t, StateInitializing, run.State, "state must not change on a rejected transition")
}

func TestNewRunIDs(t *testing.T) {
	a := newRun(nil)
	b := newRun(nil)

	assert.Len(t, a.ID, 8)
	assert.NotEqual(t, a.ID, b.ID)
}
