package task_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsdfx/tsdfx/internal/task"
)

func waitForState(t *testing.T, tsk *task.Task, want task.State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if tsk.State() == want {
			return
		}
		_, err := tsk.Poll()
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	require.Equalf(t, want, tsk.State(), "task %s did not reach %s in time", tsk.Name(), want)
}

func TestNew_RejectsOverlongName(t *testing.T) {
	name := ""
	for i := 0; i < 65; i++ {
		name += "a"
	}
	_, err := task.New(name, task.Spec{Path: "/bin/true"}, nil)
	assert.ErrorIs(t, err, task.ErrNameTooLong)
}

func TestTask_StartAndFinishCleanExit(t *testing.T) {
	tsk, err := task.New("clean-exit", task.Spec{Path: "/bin/true"}, nil)
	require.NoError(t, err)
	assert.Equal(t, task.StateIdle, tsk.State())

	require.NoError(t, tsk.Start())
	assert.True(t, tsk.State().IsRunning())

	waitForState(t, tsk, task.StateFinished, time.Second)
	assert.NoError(t, tsk.ExitErr())
	assert.Equal(t, -1, tsk.Pid())
}

func TestTask_StartAndFailNonZeroExit(t *testing.T) {
	tsk, err := task.New("nonzero-exit", task.Spec{Path: "/bin/false"}, nil)
	require.NoError(t, err)

	require.NoError(t, tsk.Start())
	waitForState(t, tsk, task.StateFailed, time.Second)
	assert.Error(t, tsk.ExitErr())
}

func TestTask_StopEscalatesAndReapsStoppedOrDead(t *testing.T) {
	tsk, err := task.New("long-sleep", task.Spec{Path: "/bin/sh", Args: []string{"-c", "sleep 30"}}, nil)
	require.NoError(t, err)

	require.NoError(t, tsk.Start())
	assert.Equal(t, task.StateRunning, tsk.State())

	require.NoError(t, tsk.Stop())
	assert.True(t, tsk.State() == task.StateStopped || tsk.State() == task.StateDead)
}

func TestTask_PipedStdoutIsReadable(t *testing.T) {
	tsk, err := task.New("echo-hi", task.Spec{
		Path:   "/bin/sh",
		Args:   []string{"-c", "echo hi"},
		Stdout: task.StdioPipe,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, tsk.Start())
	require.NotNil(t, tsk.Stdout())

	// Read before polling: reaping the task closes its pipes.
	var got []byte
	buf := make([]byte, 64)
	deadline := time.Now().Add(time.Second)
	for len(got) < len("hi\n") && time.Now().Before(deadline) {
		n, _ := tsk.Stdout().ReadAvailable(buf)
		got = append(got, buf[:n]...)
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, "hi\n", string(got))

	waitForState(t, tsk, task.StateFinished, time.Second)
}

func TestTask_ResetReturnsTerminatedTaskToIdle(t *testing.T) {
	tsk, err := task.New("reset-me", task.Spec{Path: "/bin/true"}, nil)
	require.NoError(t, err)

	require.NoError(t, tsk.Start())
	waitForState(t, tsk, task.StateFinished, time.Second)

	require.NoError(t, tsk.Reset())
	assert.Equal(t, task.StateIdle, tsk.State())
	assert.NoError(t, tsk.ExitErr())
}

func TestTask_ResetRejectsNonTerminalState(t *testing.T) {
	tsk, err := task.New("still-running", task.Spec{Path: "/bin/sh", Args: []string{"-c", "sleep 30"}}, nil)
	require.NoError(t, err)
	require.NoError(t, tsk.Start())
	defer tsk.Stop()

	assert.Error(t, tsk.Reset())
}

func TestTask_InvalidateStopsRunningTask(t *testing.T) {
	tsk, err := task.New("invalidate-running", task.Spec{Path: "/bin/sh", Args: []string{"-c", "sleep 30"}}, nil)
	require.NoError(t, err)
	require.NoError(t, tsk.Start())

	require.NoError(t, tsk.Invalidate())
	assert.Equal(t, task.StateInvalid, tsk.State())
}

func TestTask_ReclassifyDowngradesFinishedToFailed(t *testing.T) {
	tsk, err := task.New("reclassify", task.Spec{Path: "/bin/true"}, nil)
	require.NoError(t, err)
	require.NoError(t, tsk.Start())
	waitForState(t, tsk, task.StateFinished, time.Second)

	require.NoError(t, tsk.Reclassify(assert.AnError))
	assert.Equal(t, task.StateFailed, tsk.State())
	assert.ErrorIs(t, tsk.ExitErr(), assert.AnError)
}

func TestTask_PayloadRoundTrips(t *testing.T) {
	type payload struct{ N int }
	tsk, err := task.New("payload", task.Spec{Path: "/bin/true"}, payload{N: 42})
	require.NoError(t, err)
	assert.Equal(t, payload{N: 42}, tsk.Payload())
}
