// Package stage holds the behavior shared by all pipeline stages: waiting
// on an upstream completion sentinel and publishing the stage's own.
package stage

import (
	"context"
	"encoding/json"
	"path"

	"convoy/internal/errors"
	"convoy/internal/poll"
	"convoy/internal/volume"
)

// WriteSentinel marshals payload and atomically writes it as the stage's
// completion sentinel. Each stage owns exactly one sentinel, writes it
// once per run, and only after all of its output artifacts are durable.
func WriteSentinel(vol *volume.Volume, s volume.Stage, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s sentinel", s)
	}
	rel := path.Join(volume.StatusDir, s.SentinelName())
	if err := vol.WriteFileAtomic(rel, data); err != nil {
		return errors.Wrapf(err, "failed to write %s sentinel", s)
	}
	return nil
}

// WaitUpstream blocks until the upstream stage's sentinel exists. Stages
// inherit the coordinator's global timeout indirectly: the coordinator
// kills them at teardown, so the wait here is bounded only by ctx and a
// generous deadline.
func WaitUpstream(ctx context.Context, vol *volume.Volume, upstream volume.Stage, cfg poll.Config) error {
	w := poll.NewIntervalWaiter(vol, cfg)
	_, err := w.Wait(ctx, vol.SentinelPath(upstream))
	return err
}

// WaitForInput blocks until the injected work list exists. The first
// stage has no upstream sentinel; its trigger is the input artifact the
// coordinator injects after stage startup.
func WaitForInput(ctx context.Context, vol *volume.Volume, cfg poll.Config) error {
	w := poll.NewIntervalWaiter(vol, cfg)
	_, err := w.Wait(ctx, vol.Path(volume.InputFile))
	return err
}
