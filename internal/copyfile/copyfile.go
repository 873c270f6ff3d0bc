// Package copyfile implements the copier worker's resumable, hash-verified,
// block-level reconcile between a source and destination path.
// It is linked into the cmd/tsdfx-copier binary, which the supervisor forks
// once per (src, dst) pair under the source owner's dropped-privilege
// credentials.
package copyfile

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// BlockSize is the reconcile loop's unit of work: a fixed 1 MiB buffer.
const BlockSize = 1 << 20

// MinAge is the growing-file back-off threshold: a file modified less than
// MinAge ago is treated as possibly still being written.
const MinAge = 6 * time.Second

// Options configures one Reconcile invocation, corresponding to the
// copier CLI's flags: copier [-fnv] [-l LOGSPEC] [-m MAXSIZE] SRC DST.
type Options struct {
	Force     bool  // -f: reconcile even when a comparator short-circuit would skip
	DryRun    bool  // -n: report what would happen, touch nothing
	MaxSize   int64 // -m: cap source size; 0 means unbounded
	Interrupt func() bool
}

// Result summarizes one Reconcile call, for logging and exit-code mapping.
type Result struct {
	BytesCopied int64
	Digest      [sha1.Size]byte
	Interrupted bool
	Skipped     bool // comparator short-circuited; nothing needed doing
	Elapsed     time.Duration
}

// Reconcile mirrors src into dst. src and dst are treated as
// directories iff their path ends in '/'; otherwise as regular files.
func Reconcile(src, dst string, opts Options) (Result, error) {
	start := time.Now()
	srcIsDir := strings.HasSuffix(src, "/")
	dstIsDir := strings.HasSuffix(dst, "/")
	if srcIsDir != dstIsDir {
		return Result{}, fmt.Errorf("copyfile: %s and %s disagree on directory-ness", src, dst)
	}

	srcPath := strings.TrimSuffix(src, "/")
	dstPath := strings.TrimSuffix(dst, "/")

	srcInfo, err := os.Lstat(srcPath)
	if err != nil {
		return Result{}, fmt.Errorf("copyfile: lstat source: %w", err)
	}

	if srcIsDir {
		res, err := reconcileDir(srcPath, dstPath, srcInfo, opts)
		res.Elapsed = time.Since(start)
		return res, err
	}

	res, err := reconcileFile(srcPath, dstPath, srcInfo, opts)
	res.Elapsed = time.Since(start)
	return res, err
}

func reconcileDir(srcPath, dstPath string, srcInfo os.FileInfo, opts Options) (Result, error) {
	dstInfo, err := os.Lstat(dstPath)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return Result{}, fmt.Errorf("copyfile: lstat destination: %w", err)
	}
	if exists && !dstInfo.IsDir() {
		return Result{}, fmt.Errorf("copyfile: destination %s exists and is not a directory", dstPath)
	}

	if opts.DryRun {
		return Result{Skipped: exists}, nil
	}

	if !exists {
		if err := os.Mkdir(dstPath, 0700); err != nil {
			return Result{}, fmt.Errorf("copyfile: mkdir %s: %w", dstPath, err)
		}
	}

	mode := (srcInfo.Mode().Perm() & 07777) | 0700
	if err := os.Chmod(dstPath, mode); err != nil {
		return Result{}, fmt.Errorf("copyfile: chmod %s: %w", dstPath, err)
	}
	if err := os.Chtimes(dstPath, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return Result{}, fmt.Errorf("copyfile: chtimes %s: %w", dstPath, err)
	}

	return Result{Skipped: exists && !opts.Force}, nil
}

// shouldSkip implements the comparator short-circuit: skip iff
// not forced AND types agree AND source mode (masked by umask) equals dest
// mode AND, for regular files, size and mtime agree.
func shouldSkip(force bool, srcInfo, dstInfo os.FileInfo, umask int) bool {
	if force {
		return false
	}
	if srcInfo.IsDir() != dstInfo.IsDir() {
		return false
	}
	srcMode := srcInfo.Mode().Perm() &^ os.FileMode(umask)
	dstMode := dstInfo.Mode().Perm()
	if srcMode != dstMode {
		return false
	}
	if srcInfo.IsDir() {
		return true
	}
	return srcInfo.Size() == dstInfo.Size() && srcInfo.ModTime().Equal(dstInfo.ModTime())
}

func reconcileFile(srcPath, dstPath string, srcInfo os.FileInfo, opts Options) (Result, error) {
	dstInfo, statErr := os.Lstat(dstPath)
	dstExists := statErr == nil
	if statErr != nil && !os.IsNotExist(statErr) {
		return Result{}, fmt.Errorf("copyfile: lstat destination: %w", statErr)
	}
	if dstExists && dstInfo.IsDir() {
		return Result{}, fmt.Errorf("copyfile: destination %s exists and is a directory", dstPath)
	}

	if dstExists && shouldSkip(opts.Force, srcInfo, dstInfo, unixUmask()) {
		return Result{Skipped: true}, nil
	}

	if opts.DryRun {
		return Result{Skipped: false}, nil
	}

	if err := checkFreeSpace(srcPath, dstPath, srcInfo, dstExists); err != nil {
		return Result{}, err
	}

	srcFile, err := os.OpenFile(srcPath, os.O_RDONLY, 0)
	if err != nil {
		return Result{}, fmt.Errorf("copyfile: open source: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dstPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return Result{}, fmt.Errorf("copyfile: open destination: %w", err)
	}
	defer dstFile.Close()

	return reconcileLoop(srcFile, dstFile, srcPath, srcInfo, opts)
}

// checkFreeSpace enforces the free-space check: for a growing file,
// require the destination filesystem to have enough available space for
// the delta, unlinking an empty destination before failing.
func checkFreeSpace(srcPath, dstPath string, srcInfo os.FileInfo, dstExists bool) error {
	var dstSize int64
	if dstExists {
		if info, err := os.Stat(dstPath); err == nil {
			dstSize = info.Size()
		}
	}
	delta := srcInfo.Size() - dstSize
	if delta <= 0 {
		return nil
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(filepath.Dir(dstPath), &stat); err != nil {
		return fmt.Errorf("copyfile: statfs %s: %w", filepath.Dir(dstPath), err)
	}
	available := int64(stat.Bavail) * int64(stat.Bsize)
	if available >= delta {
		return nil
	}

	if dstExists && dstSize == 0 {
		_ = os.Remove(dstPath)
	}
	return fmt.Errorf("copyfile: insufficient free space: need %d, have %d", delta, available)
}

// reconcileLoop is the block-by-block copy core: read a block from src,
// compare against what's already at dst, write the block only where it
// differs, hash every source block read, then finish by
// truncating/chmod'ing/touching dst to match src.
func reconcileLoop(srcFile, dstFile *os.File, srcPath string, initialStat os.FileInfo, opts Options) (Result, error) {
	hash := sha1.New()
	buf := make([]byte, BlockSize)
	dstBuf := make([]byte, BlockSize)

	var offset int64
	interrupted := false

	srcIdentity, err := identityOf(initialStat)
	if err != nil {
		return Result{}, err
	}

	for {
		curStat, err := srcFile.Stat()
		if err != nil {
			return Result{}, fmt.Errorf("copyfile: stat source mid-copy: %w", err)
		}
		curIdentity, err := identityOf(curStat)
		if err != nil {
			return Result{}, err
		}
		if curIdentity != srcIdentity {
			return Result{}, fmt.Errorf("copyfile: source %s changed identity mid-copy (ESTALE)", srcPath)
		}

		if shouldBackOff(srcFile, curStat, offset) {
			time.Sleep(time.Second)
			continue
		}

		n, readErr := srcFile.ReadAt(buf, offset)
		if n == 0 {
			if readErr != nil && !errors.Is(readErr, io.EOF) {
				return Result{}, fmt.Errorf("copyfile: read source at %d: %w", offset, readErr)
			}
			break
		}

		dstN, _ := dstFile.ReadAt(dstBuf[:n], offset)
		if dstN != n || !bytesEqual(buf[:n], dstBuf[:dstN]) {
			if !opts.DryRun {
				if _, err := dstFile.WriteAt(buf[:n], offset); err != nil {
					return Result{}, fmt.Errorf("copyfile: write destination at %d: %w", offset, err)
				}
			}
		}

		hash.Write(buf[:n])
		offset += int64(n)

		if opts.MaxSize > 0 && offset > opts.MaxSize {
			interrupted = true
			break
		}
		if opts.Interrupt != nil && opts.Interrupt() {
			interrupted = true
			break
		}
	}

	if !opts.DryRun {
		if err := dstFile.Truncate(offset); err != nil {
			return Result{}, fmt.Errorf("copyfile: truncate destination: %w", err)
		}
		mode := (initialStat.Mode().Perm() & 07777) | 0600
		mode &^= os.FileMode(unixUmask())
		if err := dstFile.Chmod(mode); err != nil {
			return Result{}, fmt.Errorf("copyfile: chmod destination: %w", err)
		}
		mtime := initialStat.ModTime()
		if err := os.Chtimes(dstFile.Name(), mtime, mtime); err != nil {
			return Result{}, fmt.Errorf("copyfile: chtimes destination: %w", err)
		}
	}

	var digest [sha1.Size]byte
	copy(digest[:], hash.Sum(nil))

	if !interrupted && !opts.DryRun {
		dstHash := sha1.New()
		if _, err := io.Copy(dstHash, io.NewSectionReader(dstFile, 0, offset)); err != nil {
			return Result{}, fmt.Errorf("copyfile: re-read destination for digest verify: %w", err)
		}
		var dstDigest [sha1.Size]byte
		copy(dstDigest[:], dstHash.Sum(nil))
		if dstDigest != digest {
			return Result{BytesCopied: offset, Digest: digest}, fmt.Errorf("copyfile: digest mismatch after copy (source %x, destination %x)", digest, dstDigest)
		}
	}

	return Result{BytesCopied: offset, Digest: digest, Interrupted: interrupted}, nil
}

// shouldBackOff implements the growing-file back-off: hold off reading the
// next block if the source is still being actively written near its
// current end.
func shouldBackOff(f *os.File, stat os.FileInfo, offset int64) bool {
	remaining := stat.Size() - offset
	if remaining < 2*BlockSize && time.Since(stat.ModTime()) < MinAge {
		return true
	}
	if hole, ok := nextHoleWithinBlock(f, offset, stat.Size()); ok && hole {
		return true
	}
	return false
}

// nextHoleWithinBlock reports whether SEEK_HOLE places the next hole
// within one block of offset and not at EOF. On platforms supporting
// SEEK_HOLE, this is an additional signal to back off.
func nextHoleWithinBlock(f *os.File, offset, size int64) (holeNear bool, supported bool) {
	holeOffset, err := unix.Seek(int(f.Fd()), offset, unix.SEEK_HOLE)
	if err != nil {
		return false, false
	}
	// Restore the file's read position; callers use ReadAt, not Read, but
	// SEEK_HOLE/SEEK_DATA still move the shared OS file offset.
	_, _ = unix.Seek(int(f.Fd()), 0, unix.SEEK_SET)

	if holeOffset >= size {
		return false, true // hole is at/after EOF, nothing to back off for
	}
	return holeOffset-offset < BlockSize, true
}

func identityOf(info os.FileInfo) (struct{ dev, ino uint64 }, error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return struct{ dev, ino uint64 }{}, fmt.Errorf("copyfile: stat_t unavailable on this platform")
	}
	return struct{ dev, ino uint64 }{dev: uint64(st.Dev), ino: st.Ino}, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// unixUmask reads the process umask without permanently changing it (the
// classic "set to query, then restore" dance — there's no read-only
// umask(2) variant).
func unixUmask() int {
	mask := syscall.Umask(0)
	syscall.Umask(mask)
	return mask
}
