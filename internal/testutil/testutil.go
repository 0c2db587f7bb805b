// Package testutil provides testing utilities for convoy tests.
package testutil

import (
	"encoding/json"
	"path"
	"testing"

	"github.com/spf13/afero"

	"convoy/internal/volume"
)

// MemVolume creates an in-memory volume with the full directory layout.
// Tests that exercise coordinator logic use this; only watcher tests need
// a real filesystem.
func MemVolume(t *testing.T) *volume.Volume {
	t.Helper()

	vol := volume.New(afero.NewMemMapFs(), "/shared")
	if err := vol.EnsureLayout(); err != nil {
		t.Fatalf("failed to create volume layout: %v", err)
	}
	return vol
}

// OSVolume creates a volume backed by a temporary directory on the real
// filesystem. Cleaned up when the test completes.
func OSVolume(t *testing.T) *volume.Volume {
	t.Helper()

	vol := volume.NewOS(t.TempDir())
	if err := vol.EnsureLayout(); err != nil {
		t.Fatalf("failed to create volume layout: %v", err)
	}
	return vol
}

// WriteArtifact writes a file at a volume-relative path, creating parent
// directories as needed.
func WriteArtifact(t *testing.T, vol *volume.Volume, rel string, data []byte) {
	t.Helper()

	if err := vol.WriteFileAtomic(rel, data); err != nil {
		t.Fatalf("failed to write artifact %s: %v", rel, err)
	}
}

// CompleteStage writes the completion sentinel for a stage with a minimal
// valid payload.
func CompleteStage(t *testing.T, vol *volume.Volume, s volume.Stage) {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"timestamp": "2026-01-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("failed to encode sentinel payload: %v", err)
	}
	WriteArtifact(t, vol, path.Join(volume.StatusDir, s.SentinelName()), payload)
}

// CompletePipeline writes the final report and every stage sentinel, the
// state a fully successful pipeline leaves behind.
func CompletePipeline(t *testing.T, vol *volume.Volume) {
	t.Helper()

	report, err := json.Marshal(volume.FinalReport{DocumentsProcessed: 1})
	if err != nil {
		t.Fatalf("failed to encode report: %v", err)
	}
	WriteArtifact(t, vol, volume.FinalReportFile, report)
	for _, s := range volume.Stages() {
		CompleteStage(t, vol, s)
	}
}

// CompletePipelineWithoutReport writes every stage sentinel but no final
// report: the lying-sentinel case the extractor must catch.
func CompletePipelineWithoutReport(t *testing.T, vol *volume.Volume) {
	t.Helper()

	for _, s := range volume.Stages() {
		CompleteStage(t, vol, s)
	}
}

// ReadDest reads a file from a destination filesystem, failing the test
// if it does not exist.
func ReadDest(t *testing.T, fs afero.Fs, p string) []byte {
	t.Helper()

	data, err := afero.ReadFile(fs, p)
	if err != nil {
		t.Fatalf("failed to read %s: %v", p, err)
	}
	return data
}
