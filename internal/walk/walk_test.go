package walk_test

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsdfx/tsdfx/internal/walk"
)

type entry struct {
	rel   string
	isDir bool
}

func collect(t *testing.T, root string, opts walk.Options) ([]entry, []string, error) {
	t.Helper()
	var entries []entry
	var warnings []string
	err := walk.Walk(root, opts,
		func(rel string, isDir bool) { entries = append(entries, entry{rel, isDir}) },
		func(msg string) { warnings = append(warnings, msg) },
	)
	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })
	return entries, warnings, err
}

func TestWalk_EmitsFilesAndDirectoriesWithTrailingSlash(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("x"), 0644))

	entries, _, err := collect(t, root, walk.Options{})
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Contains(t, entries, entry{"a.txt", false})
	assert.Contains(t, entries, entry{"sub", true})
	assert.Contains(t, entries, entry{"sub/b.txt", false})
}

func TestWalk_SkipsHiddenEntries(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "visible.txt"), []byte("x"), 0644))

	entries, warnings, err := collect(t, root, walk.Options{})
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "visible.txt", entries[0].rel)
	assert.NotEmpty(t, warnings)
}

func TestWalk_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))
	require.NoError(t, os.Symlink(target, filepath.Join(root, "link.txt")))

	entries, warnings, err := collect(t, root, walk.Options{})
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "real.txt", entries[0].rel)
	assert.NotEmpty(t, warnings)
}

func TestWalk_SkipsNonPortableNames(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad*name.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "good.txt"), []byte("x"), 0644))

	entries, warnings, err := collect(t, root, walk.Options{})
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "good.txt", entries[0].rel)
	assert.NotEmpty(t, warnings)
}

func TestWalk_AbortsAtMaxFiles(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, string(rune('a'+i))+".txt"), []byte("x"), 0644))
	}

	_, _, err := collect(t, root, walk.Options{MaxFiles: 2})
	require.Error(t, err)
	var maxErr *walk.ErrMaxFiles
	assert.ErrorAs(t, err, &maxErr)
}

func TestWalk_NormalizesLeadingDotSlash(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0644))

	entries, _, err := collect(t, "./"+root, walk.Options{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].rel)
}
