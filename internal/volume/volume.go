// Package volume models the shared storage volume that pipeline stages and
// the coordinator communicate through. The volume is the sole channel
// between stages: stages read upstream artifacts from it and write their
// own artifacts plus a completion sentinel back to it.
//
// Volume is a capability object: everything that touches the volume takes
// a *Volume rather than reaching for ambient filesystem access, so tests
// can swap in an afero in-memory filesystem.
package volume

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/afero"
)

// Stage identifies one independently executed unit of the pipeline.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageProcess Stage = "process"
	StageAnalyze Stage = "analyze"
)

// Stages returns all pipeline stages in execution order. The last stage
// owns the terminal sentinel.
func Stages() []Stage {
	return []Stage{StageFetch, StageProcess, StageAnalyze}
}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageFetch, StageProcess, StageAnalyze:
		return true
	}
	return false
}

// SentinelName returns the status file name a stage writes when finished.
// Sentinels are write-once per run; a stage may only create its own.
func (s Stage) SentinelName() string {
	switch s {
	case StageFetch:
		return "fetch_complete.json"
	case StageProcess:
		return "process_complete.json"
	case StageAnalyze:
		return "analysis_complete.json"
	default:
		return ""
	}
}

// Logical layout of the volume, relative to its root.
const (
	InputDir     = "input"
	RawDir       = "raw"
	ProcessedDir = "processed"
	StatusDir    = "status"
	AnalysisDir  = "analysis"

	// InputFile is the work-list artifact written once by the injector.
	InputFile = "input/urls.txt"

	// FinalReportFile is the required result artifact written by the
	// analyze stage. Its absence after completion is a reportable anomaly.
	FinalReportFile = "analysis/final_report.json"

	// ErrorsLogFile is the fetch stage's per-URL failure log.
	ErrorsLogFile = "status/errors.log"
)

// Volume is a handle to a shared storage volume rooted at a directory of
// an afero filesystem. All paths exposed by its methods are absolute with
// respect to fs.
type Volume struct {
	fs   afero.Fs
	root string
}

// New returns a Volume rooted at root on fs.
func New(fs afero.Fs, root string) *Volume {
	return &Volume{fs: fs, root: root}
}

// NewOS returns a Volume backed by the real filesystem. Waiters may use
// filesystem notifications against OS-backed volumes.
func NewOS(root string) *Volume {
	return New(afero.NewOsFs(), root)
}

// Fs returns the underlying filesystem.
func (v *Volume) Fs() afero.Fs { return v.fs }

// Root returns the volume root path.
func (v *Volume) Root() string { return v.root }

// Path resolves a volume-relative path to a path on the underlying
// filesystem.
func (v *Volume) Path(rel string) string {
	return path.Join(v.root, rel)
}

// InputPath returns the path of the work-list artifact.
func (v *Volume) InputPath() string { return v.Path(InputFile) }

// FinalReportPath returns the path of the required final report artifact.
func (v *Volume) FinalReportPath() string { return v.Path(FinalReportFile) }

// SentinelPath returns the path of a stage's completion sentinel.
func (v *Volume) SentinelPath(s Stage) string {
	return v.Path(path.Join(StatusDir, s.SentinelName()))
}

// TerminalSentinelPath returns the path of the sentinel that signals
// overall pipeline completion (the last stage's sentinel).
func (v *Volume) TerminalSentinelPath() string {
	return v.SentinelPath(StageAnalyze)
}

// Exists reports whether the volume-relative path rel exists.
func (v *Volume) Exists(rel string) (bool, error) {
	return afero.Exists(v.fs, v.Path(rel))
}

// ExistsAbs reports whether an already-resolved path exists.
func (v *Volume) ExistsAbs(p string) (bool, error) {
	return afero.Exists(v.fs, p)
}

// EnsureLayout creates the volume's directory structure. Safe to call on
// an existing volume.
func (v *Volume) EnsureLayout() error {
	for _, dir := range []string{InputDir, RawDir, ProcessedDir, StatusDir, AnalysisDir} {
		if err := v.fs.MkdirAll(v.Path(dir), 0755); err != nil {
			return fmt.Errorf("failed to create volume dir %s: %w", dir, err)
		}
	}
	return nil
}

// Reset clears all run state from the volume and recreates the layout.
// A fresh run must never observe sentinels from a previous run, so the
// controller calls this before injection.
func (v *Volume) Reset() error {
	for _, dir := range []string{InputDir, RawDir, ProcessedDir, StatusDir, AnalysisDir} {
		if err := v.fs.RemoveAll(v.Path(dir)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear volume dir %s: %w", dir, err)
		}
	}
	return v.EnsureLayout()
}

// StaleSentinels returns the stages whose sentinels are already present
// on the volume. A non-empty result before injection means Reset was
// skipped and the run must not proceed.
func (v *Volume) StaleSentinels() ([]Stage, error) {
	var stale []Stage
	for _, s := range Stages() {
		ok, err := afero.Exists(v.fs, v.SentinelPath(s))
		if err != nil {
			return nil, fmt.Errorf("failed to probe sentinel for %s: %w", s, err)
		}
		if ok {
			stale = append(stale, s)
		}
	}
	return stale, nil
}

// IsOSBacked reports whether the volume lives on the real filesystem,
// which is a precondition for fsnotify-based waiting.
func (v *Volume) IsOSBacked() bool {
	_, ok := v.fs.(*afero.OsFs)
	return ok
}
