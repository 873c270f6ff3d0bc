package scan

import (
	"time"

	"github.com/tsdfx/tsdfx/internal/task"
)

// Scheduler drives one tick of the scan set: idle
// tasks whose NextRun is due are started (subject to the set's own
// concurrency accounting via Start), running tasks are polled and
// stream-processed, and terminal tasks are reset back to idle once their
// applicable backoff has elapsed.
type Scheduler struct {
	Set *task.Set

	// MaxRunning caps how many scan tasks of the set may be running at
	// once; a Tick starts no idle task while the set's running count is at
	// the cap. 0 means unbounded (the scan subsystem has no queue of
	// its own the way copy dispatch does — it only gates on the set's
	// nrunning staying below max).
	MaxRunning int

	// OnWarn receives owner/group drift warnings detected on reset: drift
	// is logged as a warning but accepted. May be nil.
	OnWarn func(msg string)
}

// NewScheduler wraps set with the given concurrency cap.
func NewScheduler(set *task.Set, maxRunning int) *Scheduler {
	return &Scheduler{Set: set, MaxRunning: maxRunning}
}

// Tick performs one scheduling pass over every task in the set.
func (s *Scheduler) Tick(now time.Time) {
	s.Set.ForEach(func(t *task.Task) bool {
		s.step(t, now)
		return true
	})
}

func (s *Scheduler) step(t *task.Task, now time.Time) {
	p, ok := t.Payload().(*Payload)
	if !ok {
		return
	}

	switch t.State() {
	case task.StateIdle:
		if s.MaxRunning > 0 && s.Set.NRunning() >= s.MaxRunning {
			return
		}
		if p.NextRun.After(now) {
			return
		}
		_ = t.Start()

	case task.StateRunning:
		if err := Process(t); err != nil {
			// An overflowing stdout line (or a failed read) fails the scan.
			if p.OnError != nil {
				p.OnError(err.Error())
			}
			_ = t.Stop()
			p.LastRan = now
			return
		}
		changed, _ := t.Poll()
		if !changed {
			return
		}
		p.LastRan = now
		Finalize(t) // may downgrade Finished -> Failed on a truncated line
		if t.State() == task.StateFinished {
			p.NextRun = now.Add(p.Interval)
			_ = ResetOrInvalidate(t, s.OnWarn)
		}
		// Failed/Dead tasks are left for the Failed/Dead branch below to
		// reset once ResetInterval has elapsed.

	case task.StateFailed, task.StateDead, task.StateStopped:
		if now.Sub(p.LastRan) >= p.ResetInterval {
			p.NextRun = now
			_ = ResetOrInvalidate(t, s.OnWarn)
		}

	case task.StateInvalid:
		// Left alone; the owning map must explicitly recreate the task
		// once the underlying root directory reappears.
	}
}
