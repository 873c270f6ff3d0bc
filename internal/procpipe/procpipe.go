// Package procpipe provides the non-blocking pipe semantics the
// supervisor's single-threaded poll loop needs over a child's non-blocking
// stdout/stderr read ends.
//
// A read that retries until EAGAIN/EINTR are exhausted turns a
// non-blocking descriptor into one that behaves like a blocking one for a
// single call. procpipe does the opposite half of the same idiom: it wants
// a read that never blocks the calling goroutine at all, returning
// immediately with whatever bytes are already buffered. Go's pipe files
// support SetReadDeadline, so an immediate (already-elapsed) deadline gives
// exactly that — the moral equivalent of setting O_NONBLOCK on the fd and
// tolerating EAGAIN, without needing raw syscalls.
package procpipe

import (
	"errors"
	"io"
	"os"
	"time"
)

// Reader wraps a pipe's read end (as returned by exec.Cmd's StdoutPipe/
// StderrPipe) with a ReadAvailable method that never blocks.
type Reader struct {
	f *os.File
}

// NewReader wraps f, which must support SetReadDeadline (true of the pipes
// os/exec hands back on all platforms tsdfx targets).
func NewReader(f *os.File) *Reader {
	return &Reader{f: f}
}

// ReadAvailable reads whatever bytes are immediately available into buf. It
// returns (0, nil) if nothing is available yet — the caller's poll tick
// should simply try again next time — and (n, io.EOF) once the writer has
// closed its end and all buffered bytes have been drained.
func (r *Reader) ReadAvailable(buf []byte) (int, error) {
	if err := r.f.SetReadDeadline(time.Now()); err != nil {
		// Some platforms/file kinds don't support deadlines; fall back to
		// a regular (blocking) read rather than failing the task outright.
		return r.f.Read(buf)
	}

	n, err := r.f.Read(buf)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}

// Close closes the underlying pipe end.
func (r *Reader) Close() error {
	return r.f.Close()
}

var _ io.Closer = (*Reader)(nil)
