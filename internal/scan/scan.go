// Package scan implements the supervisor-side half of the scan subsystem:
// one task per active map entry running the scanner worker,
// stream-processing its stdout into validated relative paths, forwarding
// its stderr to the map's error log, and the scheduling policy that
// starts/polls/resets scan tasks on a timer.
package scan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tsdfx/tsdfx/internal/creds"
	"github.com/tsdfx/tsdfx/internal/fsname"
	"github.com/tsdfx/tsdfx/internal/task"
)

// BufferSize is the fixed size of the stdout/stderr line accumulator:
// large enough to hold the longest line the validator will ever accept
// plus headroom.
const BufferSize = 16 * 1024

// DefaultInterval is the default rescan interval.
const DefaultInterval = 300 * time.Second

// DefaultResetInterval is the default backoff before retrying a
// failed/dead/invalid scan task.
const DefaultResetInterval = 3 * DefaultInterval

// EntryFunc is called once per validated scanner stdout line, with the
// relative path (without a leading '/') and whether it names a directory
// (trailing '/' in the original line).
type EntryFunc func(relpath string, isDir bool)

// ErrorFunc is called once per complete scanner stderr line, and for any
// line the stdout validator rejects: invalid lines are logged and
// dropped, not treated as fatal.
type ErrorFunc func(line string)

// Payload is the opaque per-scan-task state a task.Task carries: the
// owning map's name, absolute directory path, cached root identity and
// owner, lastran, nextrun, rescan and reset intervals, stdout/stderr
// line-accumulator buffers, and the entry/error callbacks.
type Payload struct {
	MapName string
	RootDir string

	Interval      time.Duration
	ResetInterval time.Duration

	LastRan time.Time
	NextRun time.Time

	rootDev uint64
	rootIno uint64
	rootUID uint32
	rootGID uint32

	stdoutAcc []byte
	stderrAcc []byte

	OnEntry EntryFunc
	OnError ErrorFunc
}

// New constructs a scan task for one map entry. binary is the resolved
// scanner executable path (see internal/binpath); owner is the source
// directory's owning credentials.
func New(name string, binary string, rootDir string, owner creds.Credentials, interval time.Duration, onEntry EntryFunc, onError ErrorFunc) (*task.Task, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	info, err := os.Stat(rootDir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: stat root: %w", name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan %s: root %s is not a directory", name, rootDir)
	}
	dev, ino := statIdentity(info)
	uid, gid, _ := statOwner(info)

	payload := &Payload{
		MapName:       name,
		RootDir:       rootDir,
		Interval:      interval,
		ResetInterval: 3 * interval,
		NextRun:       time.Now(),
		rootDev:       dev,
		rootIno:       ino,
		rootUID:       uid,
		rootGID:       gid,
		stdoutAcc:     make([]byte, 0, BufferSize),
		stderrAcc:     make([]byte, 0, BufferSize),
		OnEntry:       onEntry,
		OnError:       onError,
	}

	spec := task.Spec{
		Path:   binary,
		Args:   []string{rootDir},
		Stdin:  task.StdioNull,
		Stdout: task.StdioPipe,
		Stderr: task.StdioPipe,
	}

	t, err := task.New(name, spec, payload)
	if err != nil {
		return nil, err
	}
	if err := t.SetCredentials(owner); err != nil {
		return nil, err
	}
	return t, nil
}

// Rush marks an idle scan task's NextRun as due immediately, so it runs on
// the next tick; a no-op if the task is already running.
func Rush(t *task.Task) {
	if t.State() != task.StateIdle {
		return
	}
	p, ok := t.Payload().(*Payload)
	if !ok {
		return
	}
	p.NextRun = time.Now()
}

// Process drains one poll tick's worth of a running scan task's stdout
// and stderr, validating stdout lines and invoking the payload's
// callbacks. It returns an error when a stdout line does not fit the
// accumulator buffer or a stdout read fails; moving the task to
// finished/failed once Poll observes the child has exited is the caller's
// job (see Finalize).
func Process(t *task.Task) error {
	p, ok := t.Payload().(*Payload)
	if !ok {
		return fmt.Errorf("scan: task %s has no scan payload", t.Name())
	}

	if r := t.Stdout(); r != nil {
		if err := drainStdout(t.Name(), r, p); err != nil {
			return err
		}
	}
	if r := t.Stderr(); r != nil {
		if err := drainStderr(r, p); err != nil {
			return err
		}
	}
	return nil
}

func drainStdout(taskName string, r interface {
	ReadAvailable([]byte) (int, error)
}, p *Payload) error {
	buf := make([]byte, BufferSize)
	free := BufferSize - len(p.stdoutAcc)
	if free <= 0 {
		return fmt.Errorf("scan %s: stdout line exceeds %d byte buffer", taskName, BufferSize)
	}

	n, err := r.ReadAvailable(buf[:free])
	if n > 0 {
		p.stdoutAcc = append(p.stdoutAcc, buf[:n]...)
		processLines(p.stdoutAcc, &p.stdoutAcc, func(line string) {
			handleStdoutLine(line, p)
		})
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func drainStderr(r interface {
	ReadAvailable([]byte) (int, error)
}, p *Payload) error {
	buf := make([]byte, BufferSize)
	free := BufferSize - len(p.stderrAcc)
	if free <= 0 {
		// Don't fail the task over an oversized error line; just drop the
		// accumulator and keep going, matching stderr's best-effort role.
		p.stderrAcc = p.stderrAcc[:0]
		free = BufferSize
	}

	n, _ := r.ReadAvailable(buf[:free])
	if n > 0 {
		p.stderrAcc = append(p.stderrAcc, buf[:n]...)
		processLines(p.stderrAcc, &p.stderrAcc, func(line string) {
			if p.OnError != nil {
				p.OnError(line)
			}
		})
	}
	// stderr errors (including EOF) are not fatal to the scan task; only
	// stdout's truncated-line rule can fail it.
	return nil
}

// processLines splits acc on '\n', invoking fn on each complete line and
// leaving any incomplete tail at the start of *acc.
func processLines(acc []byte, accOut *[]byte, fn func(line string)) {
	start := 0
	for {
		idx := bytes.IndexByte(acc[start:], '\n')
		if idx < 0 {
			break
		}
		line := string(acc[start : start+idx])
		fn(line)
		start += idx + 1
	}
	remaining := make([]byte, len(acc)-start)
	copy(remaining, acc[start:])
	*accOut = remaining
}

func handleStdoutLine(line string, p *Payload) {
	relpath, isDir, ok := fsname.ValidateLine(line)
	if !ok {
		if p.OnError != nil {
			p.OnError(fmt.Sprintf("invalid scanner output line: %q", line))
		}
		return
	}
	if p.OnEntry != nil {
		p.OnEntry(relpath, isDir)
	}
}

// Finalize re-examines a scan task that task.Poll has just moved to
// finished, downgrading it to failed if a truncated line was left behind
// in the stdout accumulator: on clean termination, any unconsumed bytes
// remaining in the stdout buffer mean a truncated line, and the task is
// marked failed rather than finished. It returns true if it performed
// that downgrade.
func Finalize(t *task.Task) (truncated bool) {
	if t.State() != task.StateFinished {
		return false
	}
	p, ok := t.Payload().(*Payload)
	if !ok || len(p.stdoutAcc) == 0 {
		return false
	}
	_ = t.Reclassify(fmt.Errorf("scan %s: truncated line at stream end: %q", t.Name(), p.stdoutAcc))
	return true
}
