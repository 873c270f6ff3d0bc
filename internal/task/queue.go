package task

import (
	"container/list"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Queue is a FIFO of tasks awaiting a free concurrency slot, bounded by
// max_running.
// The cap is enforced with a semaphore.Weighted rather than a hand-counted
// integer so Schedule's "try to start as many as fit" pass is a single
// non-blocking TryAcquire per candidate instead of a separate compare-and-
// increment that could race against onTaskLeftRunning releasing a slot.
type Queue struct {
	name string

	mu   sync.Mutex
	list *list.List // of *Task, front = next to start
	elem map[*Task]*list.Element

	sem *semaphore.Weighted

	nrunning int
}

// NewQueue creates an empty queue named name with room for maxRunning
// concurrently running tasks. maxRunning <= 0 means unbounded.
func NewQueue(name string, maxRunning int) *Queue {
	weight := int64(maxRunning)
	if maxRunning <= 0 {
		weight = 1<<63 - 1
	}
	return &Queue{
		name: name,
		list: list.New(),
		elem: make(map[*Task]*list.Element),
		sem:  semaphore.NewWeighted(weight),
	}
}

// Name returns the queue's name (e.g. "small" or "large").
func (q *Queue) Name() string { return q.name }

// NRunning returns the number of tasks this queue currently has running.
func (q *Queue) NRunning() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nrunning
}

// Len returns the number of tasks currently waiting in the queue (not
// counting ones already running).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Len()
}

// Insert appends t to the back of the queue and marks it queued. t must be
// idle.
func (q *Queue) Insert(t *Task) error {
	if t.state != StateIdle {
		return fmt.Errorf("queue %s: Insert called on task %s in state %s, want idle", q.name, t.name, t.state)
	}
	if err := t.transition(StateQueued); err != nil {
		return err
	}
	t.queue = q

	q.mu.Lock()
	q.elem[t] = q.list.PushBack(t)
	q.mu.Unlock()
	return nil
}

// Remove pulls t out of the queue without starting it, returning it to
// idle. A no-op if t is not currently queued in q.
func (q *Queue) Remove(t *Task) {
	q.mu.Lock()
	e, ok := q.elem[t]
	if ok {
		q.list.Remove(e)
		delete(q.elem, t)
	}
	q.mu.Unlock()

	if ok && t.state == StateQueued {
		_ = t.transition(StateIdle)
		t.queue = nil
	}
}

// Schedule walks the queue from front to back, starting as many tasks as
// the queue's max_running allows. It returns the number of tasks
// actually started. A task whose Start fails is dropped from the queue
// (it is left in whatever terminal state Start put it in) so one bad
// binary doesn't wedge the rest of the queue behind it.
func (q *Queue) Schedule() (started int) {
	for {
		t, ok := q.tryAcquireNext()
		if !ok {
			return started
		}

		if err := t.Start(); err != nil {
			q.sem.Release(1)
			continue
		}

		q.mu.Lock()
		q.nrunning++
		q.mu.Unlock()
		started++
	}
}

// tryAcquireNext pops the front queued task and reserves a running slot for
// it, non-blockingly. It returns ok=false once either the queue is empty or
// the queue's concurrency cap is currently full.
func (q *Queue) tryAcquireNext() (*Task, bool) {
	q.mu.Lock()
	front := q.list.Front()
	if front == nil {
		q.mu.Unlock()
		return nil, false
	}
	if !q.sem.TryAcquire(1) {
		q.mu.Unlock()
		return nil, false
	}
	t := front.Value.(*Task)
	q.list.Remove(front)
	delete(q.elem, t)
	q.mu.Unlock()

	return t, true
}

// onTaskLeftRunning is called by Task.reap/Stop whenever a task that
// belongs to this queue leaves the running state, releasing the slot it
// held so Schedule can start the next queued task in its place.
func (q *Queue) onTaskLeftRunning(t *Task) {
	q.mu.Lock()
	q.nrunning--
	q.mu.Unlock()
	q.sem.Release(1)
	t.queue = nil
}

// Drain removes every task still waiting in the queue (not the ones
// already running) and returns them to idle, without starting them. Used
// on reload when a map is removed from the configuration.
func (q *Queue) Drain() []*Task {
	q.mu.Lock()
	var drained []*Task
	for e := q.list.Front(); e != nil; {
		next := e.Next()
		t := e.Value.(*Task)
		drained = append(drained, t)
		delete(q.elem, t)
		e = next
	}
	q.list.Init()
	q.mu.Unlock()

	for _, t := range drained {
		_ = t.transition(StateIdle)
		t.queue = nil
	}
	return drained
}
