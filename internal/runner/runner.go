// Package runner manages the external stage processes of a pipeline run.
//
// It provides a thin abstraction over process execution so the controller
// never touches os/exec directly: start stages, capture their output for
// post-mortem diagnostics, and tear everything down idempotently. Stages
// coordinate among themselves only through the shared volume; the runner
// never communicates with them after start.
package runner

import (
	"context"
	"os"
	"os/exec"
	"sync"

	"convoy/internal/errors"
	"convoy/internal/logging"
	"convoy/internal/volume"
)

// DefaultOutputBufferSize bounds the captured output kept per stage.
const DefaultOutputBufferSize = 64 * 1024

// Command describes how to launch one stage.
type Command struct {
	// Stage the command implements.
	Stage volume.Stage

	// Argv is the program and its arguments. Must be non-empty.
	Argv []string

	// Env entries appended to the inherited environment.
	Env []string
}

// Validate checks that the Command has all required fields set.
func (c *Command) Validate() error {
	if !c.Stage.Valid() {
		return errors.NewValidationErrorf("unknown stage %q", string(c.Stage))
	}
	if len(c.Argv) == 0 {
		return errors.NewValidationErrorf("stage %s: empty command", c.Stage)
	}
	return nil
}

// Diagnostic is the post-mortem view of one stage process.
type Diagnostic struct {
	Stage    volume.Stage
	Output   string // tail of combined stdout/stderr
	Running  bool
	ExitCode int // -1 while running or if unknown
}

// stageProc tracks one running stage.
type stageProc struct {
	stage  volume.Stage
	cmd    *exec.Cmd
	output *tailBuffer

	mu       sync.Mutex
	done     bool
	exitCode int
}

// Runner starts and tears down stage processes. Safe for concurrent use:
// diagnostics can be collected while the controller is blocked waiting
// for completion.
type Runner struct {
	log *logging.Logger

	mu    sync.Mutex
	procs []*stageProc
}

// New returns a Runner.
func New(log *logging.Logger) *Runner {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Runner{log: log}
}

// Start launches a stage process. The start check is best-effort: a spawn
// failure is fatal, but no liveness probe follows a successful spawn.
func (r *Runner) Start(ctx context.Context, c Command) error {
	if err := c.Validate(); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Env = append(os.Environ(), c.Env...)

	buf := newTailBuffer(DefaultOutputBufferSize)
	cmd.Stdout = buf
	cmd.Stderr = buf

	if err := cmd.Start(); err != nil {
		return errors.NewStageError("spawn failed", errors.Join(errors.ErrStageStart, err)).
			WithStage(string(c.Stage))
	}

	p := &stageProc{stage: c.Stage, cmd: cmd, output: buf, exitCode: -1}

	r.mu.Lock()
	r.procs = append(r.procs, p)
	r.mu.Unlock()

	r.log.WithStage(string(c.Stage)).Info("stage started", "pid", cmd.Process.Pid)

	// Reap in the background so finished stages do not linger as zombies
	// and their exit codes show up in diagnostics.
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.done = true
		p.exitCode = exitCodeOf(err, cmd)
		p.mu.Unlock()
	}()

	return nil
}

// StopAll terminates all stage processes that are still running. It is
// idempotent and runs on every terminal state of the controller.
func (r *Runner) StopAll() {
	r.mu.Lock()
	procs := make([]*stageProc, len(r.procs))
	copy(procs, r.procs)
	r.mu.Unlock()

	for _, p := range procs {
		p.mu.Lock()
		running := !p.done
		p.mu.Unlock()
		if !running {
			continue
		}
		if p.cmd.Process != nil {
			if err := p.cmd.Process.Kill(); err != nil {
				r.log.WithStage(string(p.stage)).Warn("failed to kill stage", "error", err)
				continue
			}
			r.log.WithStage(string(p.stage)).Info("stage killed")
		}
	}
}

// Diagnostics returns the current post-mortem view of every stage.
// Callable at any time, including concurrently with a wait.
func (r *Runner) Diagnostics() []Diagnostic {
	r.mu.Lock()
	procs := make([]*stageProc, len(r.procs))
	copy(procs, r.procs)
	r.mu.Unlock()

	diags := make([]Diagnostic, 0, len(procs))
	for _, p := range procs {
		p.mu.Lock()
		d := Diagnostic{
			Stage:    p.stage,
			Output:   p.output.String(),
			Running:  !p.done,
			ExitCode: p.exitCode,
		}
		p.mu.Unlock()
		diags = append(diags, d)
	}
	return diags
}

// Crashed returns stages that have exited with a non-zero code. Stage
// crashes are only indirectly detectable; this surfaces what is known at
// timeout for diagnostics.
func (r *Runner) Crashed() []volume.Stage {
	var crashed []volume.Stage
	for _, d := range r.Diagnostics() {
		if !d.Running && d.ExitCode > 0 {
			crashed = append(crashed, d.Stage)
		}
	}
	return crashed
}

func exitCodeOf(waitErr error, cmd *exec.Cmd) int {
	if waitErr == nil {
		return 0
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
