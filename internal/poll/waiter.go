// Package poll detects stage completion by waiting for sentinel artifacts
// on the shared volume. Two waiter implementations share one observable
// contract: success if and only if the sentinel exists at or before the
// deadline, a distinct timeout error at the deadline, and prompt
// cancellation that is distinguishable from timeout.
package poll

import (
	"context"
	"time"

	"convoy/internal/errors"
	"convoy/internal/volume"
)

// Default wait parameters. The interval must stay small relative to the
// deadline (at most 1:20) so elapsed-time reporting is reasonably
// granular; config validation enforces the ratio.
const (
	DefaultInterval = 5 * time.Second
	DefaultDeadline = 300 * time.Second
)

// Config bounds a wait.
type Config struct {
	// Interval between existence probes (interval waiter) or fallback
	// re-checks (watch waiter).
	Interval time.Duration

	// Deadline is the maximum total wait before ErrTimedOut.
	Deadline time.Duration
}

// DefaultConfig returns the default wait bounds.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, Deadline: DefaultDeadline}
}

// Result describes a wait. On timeout it still carries the elapsed time
// and probe count for diagnostics.
type Result struct {
	// Elapsed is the time spent waiting until the sentinel was observed
	// or the deadline passed.
	Elapsed time.Duration

	// Polls is the number of existence probes performed. Zero when the
	// sentinel was seen by a filesystem notification instead of a probe.
	Polls int
}

// Waiter blocks until a sentinel exists, the deadline passes, or the
// context is cancelled. Implementations must never create or consume the
// sentinel; every probe is a side-effect-free existence check.
type Waiter interface {
	Wait(ctx context.Context, sentinelPath string) (Result, error)
}

// ForVolume selects the waiter implementation for a volume: filesystem
// notifications when the volume is OS-backed, fixed-interval probing for
// in-memory fakes.
func ForVolume(vol *volume.Volume, cfg Config) Waiter {
	if vol.IsOSBacked() {
		return NewWatchWaiter(vol, cfg)
	}
	return NewIntervalWaiter(vol, cfg)
}

// IntervalWaiter probes for the sentinel at a fixed interval. Simplicity
// over efficiency: probes are cheap and the wait is bounded. A deadline of
// n intervals performs exactly n probes before timing out.
type IntervalWaiter struct {
	vol *volume.Volume
	cfg Config
}

// NewIntervalWaiter returns an IntervalWaiter on vol. Zero config fields
// fall back to the defaults.
func NewIntervalWaiter(vol *volume.Volume, cfg Config) *IntervalWaiter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	return &IntervalWaiter{vol: vol, cfg: cfg}
}

// Wait implements Waiter. A deadline of n*interval performs exactly n
// probes, the last one right at the deadline, and then reports timeout.
func (w *IntervalWaiter) Wait(ctx context.Context, sentinelPath string) (Result, error) {
	start := time.Now()

	// Ceiling division so a deadline that is not a multiple of the
	// interval still gets a probe at or just past the deadline.
	n := int((w.cfg.Deadline + w.cfg.Interval - 1) / w.cfg.Interval)

	timer := time.NewTimer(w.cfg.Interval)
	defer timer.Stop()

	for polls := 1; polls <= n; polls++ {
		select {
		case <-ctx.Done():
			return Result{}, errors.NewPipelineError("wait aborted", errors.ErrCancelled)
		case <-timer.C:
		}

		found, err := w.vol.ExistsAbs(sentinelPath)
		if err != nil {
			return Result{}, errors.Wrapf(err, "failed to probe %s", sentinelPath)
		}
		if found {
			return Result{Elapsed: time.Since(start), Polls: polls}, nil
		}
		timer.Reset(w.cfg.Interval)
	}

	return Result{Elapsed: time.Since(start), Polls: n},
		errors.NewTimeoutError("waiting for "+sentinelPath, w.cfg.Deadline)
}
