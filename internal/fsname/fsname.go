// Package fsname implements the two small grammars the supervisor core
// needs on top of raw filenames: a POSIX portable filename character
// classifier and the scanner-output line validator.
package fsname

import "strings"

// portableByte reports whether b is in the POSIX portable filename
// character set, [A-Za-z0-9._-], per the glossary.
func portableByte(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '.' || b == '_' || b == '-':
		return true
	}
	return false
}

// IsPortable reports whether name consists only of bytes in the POSIX
// portable filename set plus space, which this project also tolerates.
func IsPortable(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b == ' ' || portableByte(b) {
			continue
		}
		return false
	}
	return true
}

// IsDotOrDotDot reports whether name is "." or "..".
func IsDotOrDotDot(name string) bool {
	return name == "." || name == ".."
}

// IsHidden reports whether name begins with a dot (and is not "." or "..",
// which are handled separately by the walker).
func IsHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}

// HasNewline reports whether name contains a line-feed byte. The scanner's
// wire format has no escaping for newlines, so names carrying one must be
// rejected at the producer.
func HasNewline(name string) bool {
	return strings.IndexByte(name, '\n') >= 0
}

// segmentByte reports whether b may appear inside a path segment emitted by
// the scanner validator: the portable set plus space.
func segmentByte(b byte) bool {
	return b == ' ' || portableByte(b)
}

// boundaryByte is the character class allowed at a segment's first
// position, [A-Za-z0-9_-]: the grammar excludes '.' and space there. The
// last position of a multi-byte segment allows the portable set ('.'
// included) but not space.
func boundaryByte(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '_' || b == '-':
		return true
	}
	return false
}

// ValidateLine validates one line of scanner output against the grammar:
//
//	leading '/', at least one segment of the form
//	[A-Za-z0-9_-]([ A-Za-z0-9._-]*[A-Za-z0-9._-])?, optional trailing '/'.
//
// It returns the relative path (without the optional trailing slash) and
// whether the entry denotes a directory.
func ValidateLine(line string) (relpath string, isDir bool, ok bool) {
	if len(line) < 2 || line[0] != '/' {
		return "", false, false
	}

	body := line[1:]
	isDir = strings.HasSuffix(body, "/")
	if isDir {
		body = body[:len(body)-1]
	}

	if body == "" {
		return "", false, false
	}

	for _, segment := range strings.Split(body, "/") {
		if !validSegment(segment) {
			return "", false, false
		}
	}

	return body, isDir, true
}

// validSegment checks a single path segment against
// [A-Za-z0-9_-]([ A-Za-z0-9._-]*[A-Za-z0-9._-])?.
func validSegment(segment string) bool {
	if segment == "" {
		return false
	}

	if !boundaryByte(segment[0]) {
		return false
	}

	if len(segment) == 1 {
		return true
	}

	if !portableByte(segment[len(segment)-1]) {
		return false
	}

	for i := 1; i < len(segment)-1; i++ {
		if !segmentByte(segment[i]) {
			return false
		}
	}

	return true
}
