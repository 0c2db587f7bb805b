// Package inject places the initial work list onto the shared volume.
// Injection is the only coordinator write that happens after stages
// start is allowed to see; it must be all-or-nothing so no stage ever
// reads a partial work list.
package inject

import (
	"context"
	"strings"

	"convoy/internal/errors"
	"convoy/internal/volume"
)

// Injector writes work items to a volume's input artifact.
type Injector struct {
	vol *volume.Volume
}

// New returns an Injector bound to vol.
func New(vol *volume.Volume) *Injector {
	return &Injector{vol: vol}
}

// Inject writes all items to the volume's input artifact, one per line,
// preserving order. Downstream stages see either the complete set or no
// input file at all.
//
// At least one item is required. Any failure wraps ErrInjectionFailed and
// is fatal to the run; injection is never retried.
func (i *Injector) Inject(ctx context.Context, items []string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCancelled, "injection aborted")
	}
	if len(items) == 0 {
		return errors.Wrap(errors.ErrInjectionFailed, "no work items to inject")
	}
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			return errors.Wrap(errors.ErrInjectionFailed, "blank work item")
		}
	}

	var b strings.Builder
	for _, item := range items {
		b.WriteString(item)
		b.WriteByte('\n')
	}

	if err := i.vol.WriteFileAtomic(volume.InputFile, []byte(b.String())); err != nil {
		return errors.Wrapf(errors.ErrInjectionFailed, "volume not writable: %v", err)
	}
	return nil
}

// ReadWorkList parses the input artifact back into the ordered item
// sequence. Blank lines are ignored, matching how stages read the list.
func ReadWorkList(vol *volume.Volume) ([]string, error) {
	data, err := vol.ReadFile(volume.InputFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read work list")
	}

	var items []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			items = append(items, line)
		}
	}
	return items, nil
}
