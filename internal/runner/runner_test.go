package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/errors"
	"convoy/internal/volume"
)

// waitForExit polls until the stage at index i is reaped or the timeout
// passes.
func waitForExit(t *testing.T, r *Runner, i int) Diagnostic {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		diags := r.Diagnostics()
		if len(diags) > i && !diags[i].Running {
			return diags[i]
		}
		select {
		case <-deadline:
			t.Fatal("stage did not exit in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStartCapturesOutputAndExitCode(t *testing.T) {
	r := New(nil)
	cmd := Command{
		Stage: volume.StageFetch,
		Argv:  []string{"sh", "-c", "echo fetch output; exit 3"},
	}
	require.NoError(t, r.Start(context.Background(), cmd))

	d := waitForExit(t, r, 0)
	assert.Equal(t, volume.StageFetch, d.Stage)
	assert.Contains(t, d.Output, "fetch output")
	assert.Equal(t, 3, d.ExitCode)
}

func TestStartPassesEnv(t *testing.T) {
	r := New(nil)
	cmd := Command{
		Stage: volume.StageProcess,
		Argv:  []string{"sh", "-c", "echo $CONVOY_TEST_MARKER"},
		Env:   []string{"CONVOY_TEST_MARKER=present"},
	}
	require.NoError(t, r.Start(context.Background(), cmd))

	d := waitForExit(t, r, 0)
	assert.Contains(t, d.Output, "present")
	assert.Equal(t, 0, d.ExitCode)
}

func TestStartSpawnFailure(t *testing.T) {
	r := New(nil)
	cmd := Command{
		Stage: volume.StageAnalyze,
		Argv:  []string{"/nonexistent/binary"},
	}

	err := r.Start(context.Background(), cmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStageStart)
}

func TestStartValidatesCommand(t *testing.T) {
	r := New(nil)

	err := r.Start(context.Background(), Command{Stage: "deploy", Argv: []string{"true"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	err = r.Start(context.Background(), Command{Stage: volume.StageFetch})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestStopAllKillsRunningStage(t *testing.T) {
	r := New(nil)
	cmd := Command{
		Stage: volume.StageFetch,
		Argv:  []string{"sleep", "30"},
	}
	require.NoError(t, r.Start(context.Background(), cmd))

	r.StopAll()

	d := waitForExit(t, r, 0)
	assert.False(t, d.Running)
}

func TestStopAllIdempotent(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Start(context.Background(), Command{
		Stage: volume.StageFetch,
		Argv:  []string{"sh", "-c", "exit 0"},
	}))
	waitForExit(t, r, 0)

	// Repeated teardown of finished stages must be a no-op.
	r.StopAll()
	r.StopAll()
}

func TestCrashed(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Start(context.Background(), Command{
		Stage: volume.StageFetch,
		Argv:  []string{"sh", "-c", "exit 0"},
	}))
	require.NoError(t, r.Start(context.Background(), Command{
		Stage: volume.StageProcess,
		Argv:  []string{"sh", "-c", "exit 1"},
	}))

	waitForExit(t, r, 0)
	waitForExit(t, r, 1)

	assert.Equal(t, []volume.Stage{volume.StageProcess}, r.Crashed())
}

func TestDiagnosticsWhileRunning(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Start(context.Background(), Command{
		Stage: volume.StageAnalyze,
		Argv:  []string{"sleep", "30"},
	}))
	defer r.StopAll()

	diags := r.Diagnostics()
	require.Len(t, diags, 1)
	assert.True(t, diags[0].Running)
	assert.Equal(t, -1, diags[0].ExitCode)
}
