package inject

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/errors"
	"convoy/internal/testutil"
	"convoy/internal/volume"
)

func TestInjectRoundTrip(t *testing.T) {
	vol := testutil.MemVolume(t)
	inj := New(vol)

	items := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}
	require.NoError(t, inj.Inject(context.Background(), items))

	got, err := ReadWorkList(vol)
	require.NoError(t, err)
	assert.Equal(t, items, got, "order must survive the round trip")
}

func TestInjectWritesOnePerLine(t *testing.T) {
	vol := testutil.MemVolume(t)
	inj := New(vol)

	require.NoError(t, inj.Inject(context.Background(), []string{"one", "two"}))

	data, err := vol.ReadFile(volume.InputFile)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestInjectRejectsEmpty(t *testing.T) {
	inj := New(testutil.MemVolume(t))

	err := inj.Inject(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInjectionFailed)
}

func TestInjectRejectsBlankItem(t *testing.T) {
	vol := testutil.MemVolume(t)
	inj := New(vol)

	err := inj.Inject(context.Background(), []string{"https://example.com", "  "})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInjectionFailed)

	// Nothing was written.
	ok, existsErr := vol.Exists(volume.InputFile)
	require.NoError(t, existsErr)
	assert.False(t, ok)
}

func TestInjectCancelledContext(t *testing.T) {
	inj := New(testutil.MemVolume(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := inj.Inject(ctx, []string{"https://example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCancelled)
}

func TestReadWorkListSkipsBlankLines(t *testing.T) {
	vol := testutil.MemVolume(t)
	require.NoError(t, vol.WriteFileAtomic(volume.InputFile, []byte("a\n\n  \nb\n")))

	got, err := ReadWorkList(vol)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestReadWorkListMissingInput(t *testing.T) {
	_, err := ReadWorkList(testutil.MemVolume(t))
	assert.Error(t, err)
}
