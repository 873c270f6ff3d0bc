// Package walk implements the scanner worker's depth-first directory walk:
// an explicit FIFO worklist (not recursion, so arbitrarily
// deep trees never grow the call stack), one line of output per entry,
// and the name/type filtering rules a drop-zone scan must apply to
// untrusted input.
package walk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsdfx/tsdfx/internal/fsname"
)

// ErrMaxFiles is returned once the emitted-entry counter reaches MaxFiles.
type ErrMaxFiles struct {
	MaxFiles int
}

func (e *ErrMaxFiles) Error() string {
	return fmt.Sprintf("walk: emitted entry count reached MAXFILES (%d)", e.MaxFiles)
}

// Options configures one Walk call.
type Options struct {
	// MaxFiles aborts the walk once this many entries have been emitted.
	// 0 means unbounded.
	MaxFiles int
}

// EmitFunc is called once per accepted entry, with its path relative to
// the walk root (no leading '/') and whether it names a directory.
type EmitFunc func(relpath string, isDir bool)

// WarnFunc is called once per skipped or transient-error entry, for the
// scanner's user-error channel (stderr).
type WarnFunc func(msg string)

// Walk performs a depth-first, worklist-driven walk of root. emit is called
// in normalized RELPATH order within each directory (the order returned by
// os.ReadDir, sorted); warn receives one line per skipped/transient-error
// entry. Walk returns a non-nil error only for hard failures (readdir/open
// failures other than ENOENT/EACCES/EPERM) or MaxFiles being reached.
func Walk(root string, opts Options, emit EmitFunc, warn WarnFunc) error {
	root = normalizeRoot(root)

	type pending struct {
		abs string // absolute directory path
		rel string // relative path from root, "" for root itself
	}

	worklist := []pending{{abs: root, rel: ""}}
	emitted := 0

	for len(worklist) > 0 {
		dir := worklist[0]
		worklist = worklist[1:]

		entries, err := os.ReadDir(dir.abs)
		if err != nil {
			if isTransient(err) {
				if warn != nil {
					warn(fmt.Sprintf("walk: readdir %s: %v", dir.abs, err))
				}
				continue
			}
			return fmt.Errorf("walk: readdir %s: %w", dir.abs, err)
		}

		for _, de := range entries {
			name := de.Name()

			if fsname.IsDotOrDotDot(name) {
				continue
			}
			if fsname.IsHidden(name) {
				if warn != nil {
					warn(fmt.Sprintf("walk: skipping hidden entry %q", filepath.Join(dir.abs, name)))
				}
				continue
			}
			if fsname.HasNewline(name) {
				if warn != nil {
					warn(fmt.Sprintf("walk: skipping entry with newline in name %q", filepath.Join(dir.abs, name)))
				}
				continue
			}
			if !fsname.IsPortable(name) {
				if warn != nil {
					warn(fmt.Sprintf("walk: skipping non-portable name %q", filepath.Join(dir.abs, name)))
				}
				continue
			}

			abs := filepath.Join(dir.abs, name)
			rel := name
			if dir.rel != "" {
				rel = dir.rel + "/" + name
			}

			info, err := os.Lstat(abs)
			if err != nil {
				if isTransient(err) {
					if warn != nil {
						warn(fmt.Sprintf("walk: lstat %s: %v", abs, err))
					}
					continue
				}
				return fmt.Errorf("walk: lstat %s: %w", abs, err)
			}

			switch {
			case info.Mode().IsRegular():
				if emit != nil {
					emit(rel, false)
				}
				emitted++
			case info.IsDir():
				if emit != nil {
					emit(rel, true)
				}
				emitted++
				worklist = append(worklist, pending{abs: abs, rel: rel})
			default:
				if warn != nil {
					warn(fmt.Sprintf("walk: skipping special file %s (mode %s)", abs, info.Mode()))
				}
				continue
			}

			if opts.MaxFiles > 0 && emitted >= opts.MaxFiles {
				return &ErrMaxFiles{MaxFiles: opts.MaxFiles}
			}
		}
	}

	return nil
}

// normalizeRoot strips a single leading "./" or "//".
func normalizeRoot(root string) string {
	switch {
	case strings.HasPrefix(root, "./"):
		return root[2:]
	case strings.HasPrefix(root, "//"):
		return root[1:]
	default:
		return root
	}
}

func isTransient(err error) bool {
	return os.IsNotExist(err) || os.IsPermission(err)
}
