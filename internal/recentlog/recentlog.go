// Package recentlog implements the per-map rolling, time-bounded,
// user-visible error log. On creation of a map, it attaches a log for
// DSTPATH/tsdfx-error.log with a 5 minute retention; no file is touched
// until the first message. Each Log(msg) appends
// (now, msg) at the tail, then rewrites the entire log file from scratch,
// dropping entries whose timestamp plus retention has passed.
//
// A naive rewrite-from-scratch is non-atomic: a reader (or a crash)
// mid-write could observe a half-written log. google/renameio's WriteFile
// writes to a temp file in the same directory and renames it into place,
// closing that gap the idiomatic Go way rather than with a hand-rolled
// write-lock-fsync-rename dance.
package recentlog

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio"
)

// FileName is the fixed basename written under each map's destination
// directory.
const FileName = "tsdfx-error.log"

// DefaultRetention is the default 5 minute eviction window.
const DefaultRetention = 5 * time.Minute

type entry struct {
	at  time.Time
	msg string
}

// Log is one map's rolling error log. The zero value is not usable; use
// Open.
type Log struct {
	mu        sync.Mutex
	path      string
	retention time.Duration
	entries   []entry

	now func() time.Time // overridable for tests
}

// Open attaches a retention-bounded rolling log to dir (a map's resolved
// destination directory). Open does not touch the file: an existing log
// file is neither read back in nor truncated here, and the first Log call
// replaces it with the new Log's entries — the log is logically reset each
// time the owning map's scan task (and therefore its Log) is (re)created.
func Open(dir string, retention time.Duration) (*Log, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Log{
		path:      filepath.Join(dir, FileName),
		retention: retention,
		now:       time.Now,
	}, nil
}

// Path returns the on-disk path of the log file.
func (l *Log) Path() string { return l.path }

// Log appends msg to the tail of the in-memory entry list, evicts any
// entries older than the retention window, and atomically rewrites the
// on-disk file with what remains.
func (l *Log) Log(msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.entries = append(l.entries, entry{at: now, msg: msg})
	l.evictLocked(now)

	return l.rewriteLocked()
}

// evictLocked drops entries whose timestamp + retention < now. Must be
// called with l.mu held.
func (l *Log) evictLocked(now time.Time) {
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.at.Add(l.retention).Before(now) {
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
}

// rewriteLocked serializes the current entry list and atomically replaces
// the on-disk file. Must be called with l.mu held.
func (l *Log) rewriteLocked() error {
	var buf bytes.Buffer
	for _, e := range l.entries {
		fmt.Fprintf(&buf, "%s %s\n", e.at.UTC().Format("2006-01-02 15:04:05"), e.msg)
	}

	if err := renameio.WriteFile(l.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("recentlog: rewrite %s: %w", l.path, err)
	}
	return nil
}

// Close frees all entries, leaving the on-disk file as last written.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Len reports the number of entries currently retained, for tests and the
// status introspection endpoint.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
