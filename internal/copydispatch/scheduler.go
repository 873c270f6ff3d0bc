package copydispatch

import (
	"github.com/tsdfx/tsdfx/internal/task"
)

// Schedule walks the copy set: for idle tasks it calls their queue's
// scheduler (which starts new tasks up to its cap); for running tasks it
// polls the child; for terminal states it destroys the task, logging any
// failure via OnError.
func (d *Dispatcher) Schedule() {
	for _, q := range d.queues {
		q.Schedule()
	}

	d.Set.ForEach(func(t *task.Task) bool {
		switch {
		case t.State() == task.StateRunning:
			d.drainStderr(t)
			changed, _ := t.Poll()
			if changed {
				d.drainStderr(t)
				d.finish(t)
			}
		case t.State().IsTerminal():
			d.finish(t)
		}
		return true
	})
}

// drainStderr forwards whatever the copier has written to stderr this
// tick to the dispatcher's error sink (OnError). The dispatcher is shared
// by all maps, and these lines are not written to any map's recent-log.
func (d *Dispatcher) drainStderr(t *task.Task) {
	r := t.Stderr()
	if r == nil || d.OnError == nil {
		return
	}
	buf := make([]byte, 4096)
	for {
		n, err := r.ReadAvailable(buf)
		if n > 0 {
			d.OnError(string(buf[:n]))
		}
		if n == 0 || err != nil {
			return
		}
	}
}

// finish logs a non-clean exit and removes the task from the set, freeing
// its name for a future copy of the same (src, dst) pair.
func (d *Dispatcher) finish(t *task.Task) {
	if t.State() == task.StateFailed || t.State() == task.StateDead {
		if d.OnError != nil {
			d.OnError(taskFailureMessage(t))
		}
	}
	d.Set.Remove(t.Name())
}

func taskFailureMessage(t *task.Task) string {
	if err := t.ExitErr(); err != nil {
		return "copy " + t.Name() + ": " + err.Error()
	}
	return "copy " + t.Name() + ": " + t.State().String()
}
