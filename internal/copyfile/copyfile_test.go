package copyfile_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsdfx/tsdfx/internal/copyfile"
)

// age backdates path's mtime well past copyfile.MinAge, so the reconcile
// loop's growing-file back-off never kicks in for a file a
// test just wrote and has no intention of appending to.
func age(t *testing.T, path string) {
	t.Helper()
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestReconcile_CopiesNewFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0644))
	age(t, src)

	res, err := copyfile.Reconcile(src, dst, copyfile.Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), res.BytesCopied)
	assert.False(t, res.Interrupted)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestReconcile_SkipsWhenAlreadyInSync(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("same"), 0640))
	age(t, src)

	_, err := copyfile.Reconcile(src, dst, copyfile.Options{})
	require.NoError(t, err)

	mtime := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(src, mtime, mtime))
	require.NoError(t, os.Chtimes(dst, mtime, mtime))

	res, err := copyfile.Reconcile(src, dst, copyfile.Options{})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestReconcile_ForceOverridesSkip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("same"), 0640))
	require.NoError(t, os.WriteFile(dst, []byte("same"), 0640))
	age(t, src)

	res, err := copyfile.Reconcile(src, dst, copyfile.Options{Force: true})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestReconcile_DryRunTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))
	age(t, src)

	_, err := copyfile.Reconcile(src, dst, copyfile.Options{DryRun: true})
	require.NoError(t, err)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "dry run must not create the destination")
}

func TestReconcile_ResumesFromMatchingPrefix(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	payload := make([]byte, copyfile.BlockSize*2+100)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(src, payload, 0644))
	age(t, src)
	// Pre-seed the destination with a matching first block plus garbage
	// after it, simulating an interrupted prior run.
	partial := make([]byte, copyfile.BlockSize)
	copy(partial, payload[:copyfile.BlockSize])
	require.NoError(t, os.WriteFile(dst, partial, 0600))

	res, err := copyfile.Reconcile(src, dst, copyfile.Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), res.BytesCopied)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReconcile_MaxSizeInterruptsLargeSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, make([]byte, copyfile.BlockSize*2), 0644))
	age(t, src)

	res, err := copyfile.Reconcile(src, dst, copyfile.Options{MaxSize: copyfile.BlockSize})
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.True(t, res.BytesCopied <= copyfile.BlockSize+copyfile.BlockSize)
}

// TestReconcile_SourceAlreadyOverMaxSizeIsAnInterruptionNotAnError covers a
// source that is already past its queue's MaxSize cap before the copy even
// starts (e.g. dispatched when smaller, then grown past the cap before the
// copier ran). This must behave exactly like growing past the cap mid-copy:
// a normal, successful, interrupted reconcile, never a hard error.
func TestReconcile_SourceAlreadyOverMaxSizeIsAnInterruptionNotAnError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, make([]byte, copyfile.BlockSize*3), 0644))
	age(t, src)

	res, err := copyfile.Reconcile(src, dst, copyfile.Options{MaxSize: copyfile.BlockSize})
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.Greater(t, res.BytesCopied, int64(0))
}

func TestReconcile_DirectoryCreatesAndChmods(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src") + "/"
	dst := filepath.Join(dir, "dst") + "/"
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0750))

	_, err := copyfile.Reconcile(src, dst, copyfile.Options{})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "dst"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0750), info.Mode().Perm())
}

func TestReconcile_RejectsFileDirTypeMismatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst") + "/"
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))
	age(t, src)

	_, err := copyfile.Reconcile(src, dst, copyfile.Options{})
	assert.Error(t, err)
}
