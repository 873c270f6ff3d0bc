package scan

import (
	"fmt"
	"os"

	"github.com/tsdfx/tsdfx/internal/task"
)

// ResetOrInvalidate implements the Reset rule: stop the task if still
// running, clear its stream buffers, re-stat its root, and move it to
// invalid rather than idle if the root has disappeared or changed
// identity (a different directory now sits at the same path — e.g. the
// source was removed and recreated). Owner/group drift is tolerated and
// only logged, via onWarn.
func ResetOrInvalidate(t *task.Task, onWarn func(msg string)) error {
	p, ok := t.Payload().(*Payload)
	if !ok {
		return fmt.Errorf("scan: task %s has no scan payload", t.Name())
	}

	if t.State().IsRunning() {
		if err := t.Stop(); err != nil {
			return err
		}
	}

	p.stdoutAcc = p.stdoutAcc[:0]
	p.stderrAcc = p.stderrAcc[:0]

	info, err := os.Stat(p.RootDir)
	if err != nil || !info.IsDir() {
		return t.Invalidate()
	}

	dev, ino := statIdentity(info)
	if dev != p.rootDev || ino != p.rootIno {
		return t.Invalidate()
	}

	if onWarn != nil {
		if msg := ownerDrift(info, p); msg != "" {
			onWarn(msg)
		}
	}

	return t.Reset()
}

// ownerDrift reports a warning message if info's owning uid/gid no longer
// match what the scan task was created with, or "" if unchanged.
func ownerDrift(info os.FileInfo, p *Payload) string {
	uid, gid, ok := statOwner(info)
	if !ok {
		return ""
	}
	if uid == p.rootUID && gid == p.rootGID {
		return ""
	}
	return fmt.Sprintf("scan %s: root %s owner drifted from %d:%d to %d:%d", p.MapName, p.RootDir, p.rootUID, p.rootGID, uid, gid)
}
