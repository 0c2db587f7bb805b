package volume

import (
	"fmt"
	"path"

	"github.com/spf13/afero"
)

// WriteFileAtomic writes data to the volume-relative path rel such that
// concurrent readers observe either the complete content or no file at
// all. The write goes to a temporary sibling first and is then renamed
// into place; rename within a directory is atomic on POSIX filesystems.
//
// Stages use this for sentinels so the "sentinel exists" probe never
// races a half-written file; the injector uses it for the work list.
func (v *Volume) WriteFileAtomic(rel string, data []byte) error {
	target := v.Path(rel)
	dir := path.Dir(target)

	if err := v.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp := target + ".tmp"
	if err := afero.WriteFile(v.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}

	if err := v.fs.Rename(tmp, target); err != nil {
		// Best effort: don't leave the temp file behind.
		_ = v.fs.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", rel, err)
	}
	return nil
}

// ReadFile reads a volume-relative path in full.
func (v *Volume) ReadFile(rel string) ([]byte, error) {
	return afero.ReadFile(v.fs, v.Path(rel))
}
