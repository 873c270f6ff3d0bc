// Package binpath locates the scanner/copier worker binaries the
// supervisor forks: the first readable, executable candidate among an
// environment variable override and a fixed list of install locations.
package binpath

import (
	"fmt"
	"os"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"
)

// Candidates builds the ordered list of places to look for binary name:
// an environment variable override first (if set), then a fixed list of
// install locations.
func Candidates(envVar, name string) []string {
	var out []string
	if p := os.Getenv(envVar); p != "" {
		out = append(out, p)
	}
	for _, prefix := range []string{"/usr/libexec", "/usr/local/libexec", "/opt/tsd/libexec"} {
		out = append(out, prefix+"/"+name)
	}
	return out
}

// Resolve returns the first candidate that exists and is readable and
// executable. Each candidate is one "attempt": trying them in order with
// retry.Retry, rather than a hand-rolled for loop, is the same
// "try N candidates, stop at the first that works" shape the package
// already uses for binary resolution, just expressed declaratively.
func Resolve(envVar, name string) (string, error) {
	candidates := Candidates(envVar, name)
	if len(candidates) == 0 {
		return "", fmt.Errorf("binpath: no candidates configured for %s", name)
	}

	var found string
	err := retry.Retry(func(attempt uint) error {
		if attempt >= uint(len(candidates)) {
			return fmt.Errorf("binpath: exhausted %d candidates for %s", len(candidates), name)
		}
		path := candidates[attempt]
		if isExecutableFile(path) {
			found = path
			return nil
		}
		return fmt.Errorf("binpath: %s not executable", path)
	}, strategy.Limit(uint(len(candidates))))

	if err != nil {
		return "", fmt.Errorf("binpath: could not locate %s in %v: %w", name, candidates, err)
	}
	return found, nil
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	// Any executable bit set is good enough; the process may not run as
	// the file's owner or group, but os.Stat can't tell us which bit
	// applies without a syscall.Access call, so this intentionally
	// errs toward "try it and let exec fail" over a perfect check.
	return info.Mode()&0111 != 0
}
