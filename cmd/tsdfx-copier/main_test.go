package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_PrintsVersionWithoutRequiringArgs(t *testing.T) {
	c := &cmdCopier{flagVersion: true}
	err := c.run(&cobra.Command{}, nil)
	assert.NoError(t, err)
}

func TestRun_RequiresExactlyTwoArguments(t *testing.T) {
	c := &cmdCopier{}
	err := c.run(&cobra.Command{}, []string{"only-one"})
	assert.Error(t, err)
}

func TestRun_ReconcilesSourceIntoDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	c := &cmdCopier{flagLogSpec: ":stderr"}
	err := c.run(&cobra.Command{}, []string{src, dst})
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	c := &cmdCopier{flagLogSpec: ":stderr", flagDryRun: true}
	err := c.run(&cobra.Command{}, []string{src, dst})
	require.NoError(t, err)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}
