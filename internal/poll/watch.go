package poll

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"convoy/internal/errors"
	"convoy/internal/volume"
)

// WatchWaiter waits on a filesystem notification for the sentinel instead
// of blind-interval polling. The observable contract is identical to
// IntervalWaiter: success iff the sentinel exists at or before the
// deadline, ErrTimedOut at the deadline, ErrCancelled on abort.
//
// Notifications can be dropped under load, so the waiter keeps a coarse
// re-check at the configured interval as a safety net. Like every waiter,
// it only probes existence and never touches the sentinel itself.
type WatchWaiter struct {
	vol *volume.Volume
	cfg Config
}

// NewWatchWaiter returns a WatchWaiter on vol. The volume must be
// OS-backed; fsnotify cannot watch an in-memory filesystem.
func NewWatchWaiter(vol *volume.Volume, cfg Config) *WatchWaiter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	return &WatchWaiter{vol: vol, cfg: cfg}
}

// Wait implements Waiter.
func (w *WatchWaiter) Wait(ctx context.Context, sentinelPath string) (Result, error) {
	start := time.Now()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to create watcher")
	}
	defer watcher.Close()

	// Watch the sentinel's directory; fsnotify watches directories, and
	// the stage creates the sentinel inside it.
	dir := filepath.Dir(sentinelPath)
	if err := watcher.Add(dir); err != nil {
		return Result{}, errors.Wrapf(err, "failed to watch %s", dir)
	}

	// The sentinel may have appeared before the watch was registered.
	found, err := w.vol.ExistsAbs(sentinelPath)
	if err != nil {
		return Result{}, errors.Wrapf(err, "failed to probe %s", sentinelPath)
	}
	if found {
		return Result{Elapsed: time.Since(start), Polls: 1}, nil
	}

	deadline := time.NewTimer(w.cfg.Deadline)
	defer deadline.Stop()

	recheck := time.NewTicker(w.cfg.Interval)
	defer recheck.Stop()

	polls := 1
	for {
		select {
		case <-ctx.Done():
			return Result{}, errors.NewPipelineError("wait aborted", errors.ErrCancelled)

		case <-deadline.C:
			return Result{Elapsed: time.Since(start), Polls: polls},
				errors.NewTimeoutError("waiting for "+sentinelPath, w.cfg.Deadline)

		case event, ok := <-watcher.Events:
			if !ok {
				return Result{}, errors.New("watcher closed unexpectedly")
			}
			if event.Name != sentinelPath {
				continue
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Rename) {
				return Result{Elapsed: time.Since(start), Polls: polls}, nil
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return Result{}, errors.New("watcher closed unexpectedly")
			}
			// Watch errors degrade to the periodic re-check rather than
			// failing the wait.
			_ = werr

		case <-recheck.C:
			polls++
			found, err := w.vol.ExistsAbs(sentinelPath)
			if err != nil {
				return Result{}, errors.Wrapf(err, "failed to probe %s", sentinelPath)
			}
			if found {
				return Result{Elapsed: time.Since(start), Polls: polls}, nil
			}
		}
	}
}
