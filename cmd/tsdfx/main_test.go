package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_PrintsVersionWithoutRequiringMapFile(t *testing.T) {
	c := &cmdSupervisor{flagVersion: true}
	err := c.run(&cobra.Command{}, nil)
	assert.NoError(t, err)
}

func TestRun_RequiresMapFileFlag(t *testing.T) {
	c := &cmdSupervisor{}
	err := c.run(&cobra.Command{}, nil)
	assert.Error(t, err)
}

func TestRun_OneShotExitsOnceMapLoadsAndIdles(t *testing.T) {
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skip("/bin/true not available on this system")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.MkdirAll(dst, 0755))

	mapPath := filepath.Join(dir, "tsdfx.map")
	require.NoError(t, os.WriteFile(mapPath, []byte(fmt.Sprintf("alice: %s => %s\n", src, dst)), 0644))

	c := &cmdSupervisor{
		flagOneShot:    true,
		flagMapFile:    mapPath,
		flagScanPath:   "/bin/true",
		flagCopierPath: "/bin/true",
		flagPidFile:    filepath.Join(dir, "tsdfx.pid"),
		flagLogSpec:    ":stderr",
	}
	err := c.run(&cobra.Command{}, nil)
	require.NoError(t, err)

	_, statErr := os.Stat(c.flagPidFile)
	assert.True(t, os.IsNotExist(statErr), "pidfile should be removed on exit")
}
