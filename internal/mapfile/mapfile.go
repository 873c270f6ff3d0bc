// Package mapfile parses the map file that tells a supervisor process which
// (name, source, destination) triples to keep in sync.
//
//	LINE    := WS? (ENTRY | COMMENT)? WS? '\n'
//	ENTRY   := NAME ':' WS SRCPATH WS '=>' WS DSTPATH
//	NAME    := [A-Za-z0-9_.-]{1,64}
//	PATH    := shell-quoted absolute path
//	COMMENT := '#' [^\n]*
//
// Map files are shell-quoted so paths with spaces round-trip through one
// grammar instead of inventing a second quoting rule; parsing that grammar
// is exactly what github.com/kballard/go-shellquote already does for POSIX
// shell words, so mapfile reuses it rather than hand-rolling a
// quote/escape scanner.
package mapfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"
)

// MaxNameLen is the map entry name length limit.
const MaxNameLen = 64

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// Entry is one parsed (NAME, SRCPATH, DSTPATH) triple, paths already
// resolved to absolute, symlink-free form via realpath semantics.
type Entry struct {
	Name string
	Src  string
	Dst  string

	// Line is the 1-based source line number, kept for diagnostics.
	Line int
}

// ParseError reports a configuration-kind error tied to a specific line of
// the map file: fails startup, or fails just the reload on a later reload.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("map file line %d: %s", e.Line, e.Msg)
}

// Parse reads a map file from r and returns its entries in file order.
// Paths are resolved via resolve and must come back absolute; any further
// check (ParseFile's resolver requires a directory) is resolve's job. The
// first error aborts the whole parse,
// matching the "fails the reload only, old map retained" semantics the
// caller is expected to implement by discarding a failed Parse's result.
func Parse(r io.Reader, resolve func(string) (string, error)) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var entries []Entry
	seen := make(map[string]int) // name -> line, duplicate detection

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, err := parseLine(line, lineNo, resolve)
		if err != nil {
			return nil, err
		}

		if prev, dup := seen[entry.Name]; dup {
			return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("duplicate map name %q (first seen on line %d)", entry.Name, prev)}
		}
		seen[entry.Name] = lineNo

		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("map file: %w", err)
	}

	return entries, nil
}

// ParseFile is a convenience wrapper around Parse for a path on disk,
// resolving paths with filepath.Abs + filepath.EvalSymlinks and rejecting
// any path that does not resolve to a directory.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("map file: %w", err)
	}
	defer f.Close()
	return Parse(f, realpath)
}

func realpath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", resolved)
	}
	return resolved, nil
}

func parseLine(line string, lineNo int, resolve func(string) (string, error)) (Entry, error) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return Entry{}, &ParseError{Line: lineNo, Msg: "missing ':' after NAME"}
	}
	name := strings.TrimSpace(line[:colon])
	if !nameRE.MatchString(name) {
		return Entry{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("invalid name %q: must match [A-Za-z0-9_.-]{1,%d}", name, MaxNameLen)}
	}

	rest := line[colon+1:]
	arrow := strings.Index(rest, "=>")
	if arrow < 0 {
		return Entry{}, &ParseError{Line: lineNo, Msg: "missing '=>' separator"}
	}

	srcField := strings.TrimSpace(rest[:arrow])
	dstField := strings.TrimSpace(rest[arrow+2:])
	if srcField == "" || dstField == "" {
		return Entry{}, &ParseError{Line: lineNo, Msg: "empty SRCPATH or DSTPATH"}
	}

	src, err := unquoteOne(srcField)
	if err != nil {
		return Entry{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("SRCPATH: %v", err)}
	}
	dst, err := unquoteOne(dstField)
	if err != nil {
		return Entry{}, &ParseError{Line: lineNo, Msg: fmt.Sprintf("DSTPATH: %v", err)}
	}

	srcAbs, err := resolvePath(src, resolve, lineNo, "SRCPATH")
	if err != nil {
		return Entry{}, err
	}
	dstAbs, err := resolvePath(dst, resolve, lineNo, "DSTPATH")
	if err != nil {
		return Entry{}, err
	}

	return Entry{Name: name, Src: srcAbs, Dst: dstAbs, Line: lineNo}, nil
}

// unquoteOne shell-unquotes a single path field, rejecting anything that
// splits into more than one shell word (a map file path is exactly one
// token, quoted or not).
func unquoteOne(field string) (string, error) {
	words, err := shellquote.Split(field)
	if err != nil {
		return "", fmt.Errorf("unterminated quote in %q: %w", field, err)
	}
	if len(words) != 1 {
		return "", fmt.Errorf("expected a single path, got %d words in %q", len(words), field)
	}
	return words[0], nil
}

func resolvePath(p string, resolve func(string) (string, error), lineNo int, field string) (string, error) {
	resolved, err := resolve(p)
	if err != nil {
		return "", &ParseError{Line: lineNo, Msg: fmt.Sprintf("%s %q: %v", field, p, err)}
	}
	if !filepath.IsAbs(resolved) {
		return "", &ParseError{Line: lineNo, Msg: fmt.Sprintf("%s %q did not resolve to an absolute path", field, p)}
	}
	return resolved, nil
}
