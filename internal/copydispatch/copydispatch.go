// Package copydispatch implements the copy dispatcher: the glue, shared
// by all maps, that turns a validated scanner relpath into a deduplicated,
// size-partitioned copy task, and the scheduler that drives the resulting
// copy task set to completion.
package copydispatch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsdfx/tsdfx/internal/creds"
	"github.com/tsdfx/tsdfx/internal/digest"
	"github.com/tsdfx/tsdfx/internal/task"
)

// QueuePolicy describes one size-partitioned queue:
//
//	| Queue | max source size | max concurrent |
//	| small | 1 MiB            | 8              |
//	| large | unbounded        | 4              |
type QueuePolicy struct {
	Name           string
	MaxSourceSize  int64 // 0 means unbounded
	MaxConcurrency int
}

// DefaultPolicies is the standard two-queue partition.
var DefaultPolicies = []QueuePolicy{
	{Name: "small", MaxSourceSize: 1 << 20, MaxConcurrency: 8},
	{Name: "large", MaxSourceSize: 0, MaxConcurrency: 4},
}

// Dispatcher holds a copy task set and its size-partitioned queues; one
// Dispatcher serves every map.
type Dispatcher struct {
	CopierPath string
	Set        *task.Set
	queues     []*task.Queue
	policies   []QueuePolicy

	DryRun  bool
	Verbose bool
	LogSpec string

	OnError func(msg string)
}

// NewDispatcher builds a dispatcher with the given queue policies (pass
// DefaultPolicies for the standard small/large split).
func NewDispatcher(copierPath string, policies []QueuePolicy) *Dispatcher {
	d := &Dispatcher{
		CopierPath: copierPath,
		Set:        task.NewSet(),
		policies:   policies,
	}
	for _, p := range policies {
		d.queues = append(d.queues, task.NewQueue(p.Name, p.MaxConcurrency))
	}
	return d
}

// queueFor picks the first policy (and its MaxSourceSize cap) whose
// MaxSourceSize covers size (0 means unbounded, and is always tried last).
func (d *Dispatcher) queueFor(size int64) (*task.Queue, int64) {
	for i, p := range d.policies {
		if p.MaxSourceSize > 0 && size > p.MaxSourceSize {
			continue
		}
		return d.queues[i], p.MaxSourceSize
	}
	last := len(d.policies) - 1
	return d.queues[last], d.policies[last].MaxSourceSize
}

// payload is the opaque state a copy task carries: just enough to build
// its argv and credentials when the queue starts it.
type payload struct {
	src, dst string
}

// copyNew creates a new copy task: names the task as
// sha1("copy" || src || dst), short-circuits if already present, lstat's
// the source to pick credentials and a queue, and inserts the task into
// the set and chosen queue. src and dst carry a trailing '/' when isDir is
// true, matching the scanner's own wire convention all the way into the
// forked copier's argv.
func (d *Dispatcher) copyNew(src, dst string, isDir bool) error {
	name := digest.Tagged("copy", src, dst)
	if _, exists := d.Set.Lookup(name); exists {
		return nil
	}

	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("copydispatch: lstat %s: %w", src, err)
	}

	owner := ownerCreds(info)
	q, maxSize := d.queueFor(info.Size())

	argSrc, argDst := src, dst
	if isDir {
		argSrc += "/"
		argDst += "/"
	}
	args := d.copierArgs(argSrc, argDst, maxSize)

	spec := task.Spec{
		Path:   d.CopierPath,
		Args:   args,
		Stdin:  task.StdioNull,
		Stdout: task.StdioNull,
		Stderr: task.StdioPipe,
	}

	t, err := task.New(name, spec, &payload{src: src, dst: dst})
	if err != nil {
		return fmt.Errorf("copydispatch: new task: %w", err)
	}
	if err := t.SetCredentials(owner); err != nil {
		return err
	}
	if err := d.Set.Insert(t); err != nil {
		return err
	}

	return q.Insert(t)
}

func (d *Dispatcher) copierArgs(src, dst string, maxSize int64) []string {
	var args []string
	if d.DryRun {
		args = append(args, "-n")
	}
	if d.Verbose {
		args = append(args, "-v")
	}
	if d.LogSpec != "" {
		args = append(args, "-l", d.LogSpec)
	}
	if maxSize > 0 {
		args = append(args, "-m", fmt.Sprintf("%d", maxSize))
	}
	args = append(args, src, dst)
	return args
}

// CopyWrap is the per-line entry point the scan stream processor calls
// for every validated scanner relpath. isDir comes straight from
// fsname.ValidateLine's own trailing-slash parse of the scanner line.
func (d *Dispatcher) CopyWrap(srcDir, dstDir, relpath string, isDir bool) error {
	src := filepath.Join(srcDir, relpath)
	dst := filepath.Join(dstDir, relpath)

	if len(dst) > 4095 {
		return fmt.Errorf("copydispatch: %s exceeds path length limit", dst)
	}

	info, err := os.Lstat(src)
	if err != nil {
		if d.OnError != nil {
			d.OnError(fmt.Sprintf("copydispatch: lstat %s: %v", src, err))
		}
		return nil // transient filesystem error: logged and skipped
	}

	normalizePermissions(src, dst, info)

	if skip, err := shortCircuitSkip(src, dst, info); err != nil {
		return err
	} else if skip {
		return nil
	}

	return d.copyNew(src, dst, isDir)
}

// normalizePermissions forces destination permissions upward before a
// copy is even considered: 0640 for files, 0750-style searchable for
// directories, applied via chmod when necessary.
func normalizePermissions(src, dst string, info os.FileInfo) {
	dstInfo, err := os.Lstat(dst)
	if err != nil {
		return // nothing to normalize yet; copyNew will create it
	}

	if info.IsDir() {
		want := dstInfo.Mode().Perm() | 0750
		if want != dstInfo.Mode().Perm() {
			_ = os.Chmod(dst, want)
		}
		return
	}

	want := dstInfo.Mode().Perm() | 0640
	if want != dstInfo.Mode().Perm() {
		_ = os.Chmod(dst, want)
	}
}

// shortCircuitSkip checks destination type/size/mtime for an early skip
// before a copy task is even created.
func shortCircuitSkip(src, dst string, srcInfo os.FileInfo) (bool, error) {
	dstInfo, err := os.Lstat(dst)
	if err != nil {
		return false, nil
	}
	if srcInfo.IsDir() != dstInfo.IsDir() {
		return false, nil
	}
	if srcInfo.IsDir() {
		return false, nil // directories always get at least a mode/time pass
	}
	if srcInfo.Size() != dstInfo.Size() {
		return false, nil
	}
	if !srcInfo.ModTime().Equal(dstInfo.ModTime()) {
		return false, nil
	}
	return true, nil
}
