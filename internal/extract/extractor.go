// Package extract copies result artifacts from the shared volume to
// durable storage once the terminal sentinel has been observed.
//
// Sentinel presence is necessary but not sufficient for success: the
// extractor holds the safety net that a run whose required artifact is
// missing is reported as failed, no matter what the sentinel claims.
package extract

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"convoy/internal/errors"
	"convoy/internal/logging"
	"convoy/internal/volume"
)

// Artifact declares one result to pull off the volume.
type Artifact struct {
	// Source is the volume-relative path of the artifact.
	Source string

	// Dest is the destination-relative path to copy it to.
	Dest string

	// Required marks artifacts whose absence fails the whole run.
	// Optional artifacts are skipped with a log line when missing.
	Required bool
}

// DefaultManifest returns the declared result set: the final report is
// required, the per-stage status files are optional copies placed under a
// status/ subdirectory of the destination.
func DefaultManifest() []Artifact {
	manifest := []Artifact{
		{Source: volume.FinalReportFile, Dest: "final_report.json", Required: true},
	}
	for _, s := range volume.Stages() {
		name := s.SentinelName()
		manifest = append(manifest, Artifact{
			Source: path.Join(volume.StatusDir, name),
			Dest:   path.Join("status", name),
		})
	}
	return manifest
}

// Manifest builds an artifact list from volume-relative paths. Required
// artifacts land at the destination root under their base name; optional
// artifacts keep their volume-relative path. With the default
// configuration this reproduces DefaultManifest.
func Manifest(required, optional []string) []Artifact {
	manifest := make([]Artifact, 0, len(required)+len(optional))
	for _, src := range required {
		manifest = append(manifest, Artifact{Source: src, Dest: path.Base(src), Required: true})
	}
	for _, src := range optional {
		manifest = append(manifest, Artifact{Source: src, Dest: src})
	}
	return manifest
}

// Result summarizes an extraction.
type Result struct {
	Copied          []string
	Skipped         []string
	MissingRequired []string
}

// Extractor copies artifacts from a volume to a destination filesystem.
type Extractor struct {
	vol  *volume.Volume
	dest afero.Fs
	log  *logging.Logger
}

// New returns an Extractor from vol onto dest.
func New(vol *volume.Volume, dest afero.Fs, log *logging.Logger) *Extractor {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Extractor{vol: vol, dest: dest, log: log}
}

// Extract copies every artifact in the manifest into destDir.
//
// Every declared artifact is attempted, so whatever partial results exist
// are preserved for post-mortem even when a required artifact is missing.
// A missing required artifact makes Extract return ErrExtractionIncomplete
// after the remaining copies finish.
//
// A destination that already holds a prior extraction is refused unless
// overwrite is set; a partial overwrite of an earlier successful result
// must never happen implicitly.
func (e *Extractor) Extract(ctx context.Context, destDir string, manifest []Artifact, overwrite bool) (Result, error) {
	var res Result

	if err := ctx.Err(); err != nil {
		return res, errors.Wrap(errors.ErrCancelled, "extraction aborted")
	}

	prior, err := e.hasPriorResult(destDir, manifest)
	if err != nil {
		return res, err
	}
	if prior && !overwrite {
		return res, errors.Wrapf(errors.ErrDestinationExists, "%s", destDir)
	}

	for _, art := range manifest {
		exists, err := e.vol.Exists(art.Source)
		if err != nil {
			return res, errors.NewArtifactError("failed to probe artifact", err).
				WithPath(art.Source).WithRequired(art.Required)
		}
		if !exists {
			if art.Required {
				res.MissingRequired = append(res.MissingRequired, art.Source)
				e.log.Error("required artifact missing", "path", art.Source)
			} else {
				res.Skipped = append(res.Skipped, art.Source)
				e.log.Warn("optional artifact missing, skipped", "path", art.Source)
			}
			continue
		}

		if err := e.copyOne(art, destDir); err != nil {
			if art.Required {
				return res, err
			}
			res.Skipped = append(res.Skipped, art.Source)
			e.log.Warn("optional artifact copy failed, skipped", "path", art.Source, "error", err)
			continue
		}
		res.Copied = append(res.Copied, art.Dest)
		e.log.Debug("artifact extracted", "source", art.Source, "dest", art.Dest)
	}

	if len(res.MissingRequired) > 0 {
		return res, errors.NewArtifactError(
			fmt.Sprintf("missing: %s", strings.Join(res.MissingRequired, ", ")),
			errors.ErrExtractionIncomplete,
		).WithPath(res.MissingRequired[0]).WithRequired(true)
	}
	return res, nil
}

// hasPriorResult reports whether destDir already contains any required
// artifact from an earlier run.
func (e *Extractor) hasPriorResult(destDir string, manifest []Artifact) (bool, error) {
	for _, art := range manifest {
		if !art.Required {
			continue
		}
		ok, err := afero.Exists(e.dest, filepath.Join(destDir, art.Dest))
		if err != nil {
			return false, errors.Wrap(err, "failed to inspect destination")
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// copyOne copies a single artifact into destDir, creating parent
// directories as needed.
func (e *Extractor) copyOne(art Artifact, destDir string) error {
	data, err := e.vol.ReadFile(art.Source)
	if err != nil {
		return errors.NewArtifactError("failed to read artifact", err).
			WithPath(art.Source).WithRequired(art.Required)
	}

	target := filepath.Join(destDir, art.Dest)
	if err := e.dest.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.NewArtifactError("failed to create destination dir", err).
			WithPath(art.Source).WithRequired(art.Required)
	}
	if err := afero.WriteFile(e.dest, target, data, 0644); err != nil {
		return errors.NewArtifactError("failed to write artifact", err).
			WithPath(art.Source).WithRequired(art.Required)
	}
	return nil
}
