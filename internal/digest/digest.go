// Package digest provides a rolling SHA-1 accumulator and the
// domain-tagged SHA-1 used to name tasks. The copy worker
// (internal/copyfile) hashes with crypto/sha1 directly, not through this
// package's accumulator.
//
// SHA-1 itself is treated as an external collaborator: this package only
// adds bookkeeping on top of crypto/sha1 — a running digest plus a
// finalized, comparable sum.
package digest

import (
	"crypto/sha1" //nolint:gosec // integrity check, not a security boundary
	"encoding/hex"
	"hash"
)

// Rolling accumulates a SHA-1 digest incrementally across reconcile blocks.
//
// Only the bytes actually read from the source are ever written to it — the
// reconcile loop must never pad short reads with zero bytes before writing
// them here. The digest must cover exactly the bytes read.
type Rolling struct {
	h hash.Hash
	n int64
}

// New returns a fresh Rolling accumulator.
func New() *Rolling {
	return &Rolling{h: sha1.New()} //nolint:gosec
}

// Write feeds block into the running digest. It never returns an error:
// hash.Hash implementations are documented to never fail.
func (r *Rolling) Write(block []byte) {
	n, _ := r.h.Write(block)
	r.n += int64(n)
}

// Len returns the number of bytes written so far.
func (r *Rolling) Len() int64 {
	return r.n
}

// Sum finalizes the digest and returns the 20-byte SHA-1 sum. Sum does not
// mutate the accumulator's running state and may be called multiple times.
func (r *Rolling) Sum() [sha1.Size]byte {
	var out [sha1.Size]byte
	copy(out[:], r.h.Sum(nil))
	return out
}

// Hex returns the lowercase hex encoding of Sum().
func (r *Rolling) Hex() string {
	sum := r.Sum()
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two finalized digests match.
func Equal(a, b [sha1.Size]byte) bool {
	return a == b
}

// TaskNameSize is the fixed width of a task name: 64 characters, derived
// from a domain-tagged SHA-1. A SHA-1 hex digest is only 40 characters, so
// Tagged zero-pads the remainder rather than shrinking the field width
// other code may assume is fixed.
const TaskNameSize = 64

// Tagged computes sha1(tag || parts[0] || NUL || parts[1] || NUL || ...)
// used to derive task names from domain-tagged inputs, e.g.
// sha1("scan" || path) or sha1("copy" || src || dst). The
// result is hex-encoded and right-padded with zeroes to TaskNameSize.
func Tagged(tag string, parts ...string) string {
	h := sha1.New() //nolint:gosec
	_, _ = h.Write([]byte(tag))
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if pad := TaskNameSize - len(sum); pad > 0 {
		zeroes := make([]byte, pad)
		for i := range zeroes {
			zeroes[i] = '0'
		}
		sum += string(zeroes)
	}
	return sum
}
