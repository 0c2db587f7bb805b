package pipeline

import (
	"context"
	"time"

	"github.com/spf13/afero"

	"convoy/internal/errors"
	"convoy/internal/extract"
	"convoy/internal/inject"
	"convoy/internal/logging"
	"convoy/internal/poll"
	"convoy/internal/runner"
	"convoy/internal/volume"
)

// StageRunner is the controller's view of stage process management.
// *runner.Runner is the real implementation; tests substitute fakes.
type StageRunner interface {
	Start(ctx context.Context, c runner.Command) error
	StopAll()
	Diagnostics() []runner.Diagnostic
	Crashed() []volume.Stage
}

// Options configures a Controller.
type Options struct {
	// Volume is the shared volume all stages mount. Required.
	Volume *volume.Volume

	// DestDir is where extracted results land. Required.
	DestDir string

	// DestFs is the destination filesystem. Defaults to the OS
	// filesystem.
	DestFs afero.Fs

	// Manifest declares the artifacts to extract. Defaults to
	// extract.DefaultManifest.
	Manifest []extract.Artifact

	// Overwrite allows replacing a prior result at DestDir.
	Overwrite bool

	// KeepVolume skips scrubbing the volume during teardown.
	KeepVolume bool

	// StageCommands launch the stage processes, in pipeline order.
	StageCommands []runner.Command

	// Wait bounds the completion wait.
	Wait poll.Config

	// Waiter overrides the waiter implementation. Defaults to
	// poll.ForVolume.
	Waiter poll.Waiter

	// Runner overrides stage process management. Defaults to
	// runner.New.
	Runner StageRunner

	// Logger defaults to a nop logger.
	Logger *logging.Logger
}

// Controller drives one pipeline run through its state machine.
type Controller struct {
	vol       *volume.Volume
	injector  *inject.Injector
	extractor *extract.Extractor
	waiter    poll.Waiter
	runner    StageRunner
	log       *logging.Logger

	destDir    string
	manifest   []extract.Artifact
	overwrite  bool
	keepVolume bool
	commands   []runner.Command
}

// NewController validates opts and builds a Controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Volume == nil {
		return nil, errors.NewValidationErrorf("Volume is required")
	}
	if opts.DestDir == "" {
		return nil, errors.NewValidationErrorf("DestDir is required")
	}

	log := opts.Logger
	if log == nil {
		log = logging.NopLogger()
	}
	destFs := opts.DestFs
	if destFs == nil {
		destFs = afero.NewOsFs()
	}
	manifest := opts.Manifest
	if manifest == nil {
		manifest = extract.DefaultManifest()
	}
	waiter := opts.Waiter
	if waiter == nil {
		waiter = poll.ForVolume(opts.Volume, opts.Wait)
	}
	stageRunner := opts.Runner
	if stageRunner == nil {
		stageRunner = runner.New(log)
	}

	return &Controller{
		vol:        opts.Volume,
		injector:   inject.New(opts.Volume),
		extractor:  extract.New(opts.Volume, destFs, log),
		waiter:     waiter,
		runner:     stageRunner,
		log:        log,
		destDir:    opts.DestDir,
		manifest:   manifest,
		overwrite:  opts.Overwrite,
		keepVolume: opts.KeepVolume,
		commands:   opts.StageCommands,
	}, nil
}

// Execute drives one run to a terminal state. The returned Run carries
// the terminal state, the terminal error for non-success, and whatever
// diagnostics were collected before teardown. Teardown happens on every
// terminal state, success included.
func (c *Controller) Execute(ctx context.Context, items []string) *Run {
	run := newRun(items)
	log := c.log.WithRun(run.ID)

	// A usage error exits before the run claims the volume; scrubbing it
	// then would clobber artifacts this run never owned.
	claimed := false
	defer func() {
		run.Elapsed = time.Since(run.StartedAt)
		c.teardown(log, claimed)
	}()

	if len(items) == 0 {
		return c.fail(run, log, StateFailed, errors.Wrap(errors.ErrUsage, "at least one work item is required"))
	}

	// Initializing: a fresh run must never observe sentinels from a
	// previous run.
	log.Info("resetting shared volume", "root", c.vol.Root())
	if err := c.vol.Reset(); err != nil {
		return c.fail(run, log, StateFailed, errors.Wrap(err, "volume reset failed"))
	}
	claimed = true
	if stale, err := c.vol.StaleSentinels(); err != nil {
		return c.fail(run, log, StateFailed, err)
	} else if len(stale) > 0 {
		return c.fail(run, log, StateFailed, errors.Wrapf(errors.ErrVolumeNotReset, "stages %v", stale))
	}

	for _, cmd := range c.commands {
		if err := c.runner.Start(ctx, cmd); err != nil {
			return c.fail(run, log, StateFailed, err)
		}
	}

	if err := run.transition(StateInjecting); err != nil {
		return c.fail(run, log, StateFailed, err)
	}
	log.WithState(string(run.State)).Info("injecting work items", "count", len(items))
	if err := c.injector.Inject(ctx, items); err != nil {
		return c.fail(run, log, StateFailed, err)
	}

	if err := run.transition(StateRunning); err != nil {
		return c.fail(run, log, StateFailed, err)
	}
	log.WithState(string(run.State)).Info("waiting for terminal sentinel",
		"sentinel", c.vol.TerminalSentinelPath())

	// Crash reporting runs alongside the wait; the poller blocks only
	// itself.
	stopWatch := c.watchForCrashes(log)
	res, waitErr := c.waiter.Wait(ctx, c.vol.TerminalSentinelPath())
	stopWatch()

	run.WaitElapsed = res.Elapsed
	run.Polls = res.Polls

	if waitErr != nil {
		state := StateFailed
		switch {
		case errors.Is(waitErr, errors.ErrCancelled):
			state = StateCancelled
		case errors.Is(waitErr, errors.ErrTimedOut):
			state = StateTimedOut
		}
		return c.fail(run, log, state, waitErr)
	}
	log.Info("terminal sentinel observed", "elapsed", res.Elapsed.String(), "polls", res.Polls)

	if err := run.transition(StateExtracting); err != nil {
		return c.fail(run, log, StateFailed, err)
	}
	extRes, extErr := c.extractor.Extract(ctx, c.destDir, c.manifest, c.overwrite)
	run.Extraction = extRes
	if extErr != nil {
		return c.fail(run, log, StateFailed, extErr)
	}

	if err := run.transition(StateSucceeded); err != nil {
		return c.fail(run, log, StateFailed, err)
	}
	log.WithState(string(run.State)).Info("run complete",
		"copied", len(extRes.Copied), "skipped", len(extRes.Skipped))
	return run
}

// fail moves the run to a terminal failure state, records the error, and
// collects stage diagnostics for post-mortem before teardown.
func (c *Controller) fail(run *Run, log *logging.Logger, state State, err error) *Run {
	run.Err = err
	run.Diagnostics = c.runner.Diagnostics()
	if terr := run.transition(state); terr != nil {
		// Only reachable from a terminal state; keep the original error.
		log.Error("invalid failure transition", "error", terr)
	}
	log.WithState(string(run.State)).Error("run failed", "error", err.Error())
	return run
}

// watchForCrashes logs stage processes that exit non-zero while the
// controller is blocked waiting for completion. Returns a stop func.
func (c *Controller) watchForCrashes(log *logging.Logger) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		reported := make(map[volume.Stage]bool)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				for _, s := range c.runner.Crashed() {
					if !reported[s] {
						reported[s] = true
						log.WithStage(string(s)).Warn("stage exited non-zero before completion")
					}
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

// teardown stops stage processes and scrubs the volume. Idempotent; runs
// on every terminal state.
func (c *Controller) teardown(log *logging.Logger, claimed bool) {
	c.runner.StopAll()
	if claimed && !c.keepVolume {
		if err := c.vol.Reset(); err != nil {
			log.Warn("volume scrub failed during teardown", "error", err)
		}
	}
	log.Debug("teardown complete")
}
