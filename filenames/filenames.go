// Package filenames implements the naming convention for test, error and
// benchmark files. The format is load-bearing: discovery of the most recent
// run depends on being able to recover the run id from an encoded name.
package filenames

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Stems holds the filename stems for the three file roles. The default
// triple must not be changed for normal runs; it is only overridden to
// compare two sets of test outputs or two sets of benchmarks against each
// other.
type Stems struct {
	Test      string
	Error     string
	Benchmark string
}

// DefaultStems returns the standard stem triple.
func DefaultStems() Stems {
	return Stems{
		Test:      "test.out",
		Error:     "test.err",
		Benchmark: "benchmark.out",
	}
}

// BuildName constructs a filename from a stem, a run (or benchmark) id and
// the case's input file and argument string. Spaces in the argument string
// are replaced by underscores.
func BuildName(stem, id, input, args string) string {
	name := fmt.Sprintf("%s.%s", stem, id)
	if input != "" {
		name = fmt.Sprintf("%s.inp=%s", name, input)
	}
	if args != "" {
		name = fmt.Sprintf("%s.args=%s", name, strings.ReplaceAll(args, " ", "_"))
	}
	return name
}

// RunID recovers the run id from a name built by BuildName with the given
// stem. The second return is false if the name does not use that stem.
func RunID(name, stem string) (string, bool) {
	prefix := stem + "."
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	id := name[len(prefix):]
	for _, marker := range []string{".inp=", ".args="} {
		if i := strings.Index(id, marker); i >= 0 {
			id = id[:i]
		}
	}
	if id == "" {
		return "", false
	}
	return id, true
}

// MostRecentID returns the run id of the most recently modified test file
// found under any of the given directories. Used when comparing without an
// explicit test id.
func MostRecentID(dirs []string, stem string) (string, bool) {
	var (
		latest   time.Time
		latestID string
		found    bool
	)
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, stem+".*"))
		if err != nil {
			continue
		}
		for _, match := range matches {
			id, ok := RunID(filepath.Base(match), stem)
			if !ok {
				continue
			}
			info, err := os.Stat(match)
			if err != nil {
				continue
			}
			if !found || info.ModTime().After(latest) {
				latest = info.ModTime()
				latestID = id
				found = true
			}
		}
	}
	return latestID, found
}

// UniqueID generates a run id from the given date string, appending a
// counter if files with that id already exist in any of the directories.
func UniqueID(dirs []string, stem, date string) string {
	used := make(map[string]bool)
	for _, dir := range dirs {
		matches, _ := filepath.Glob(filepath.Join(dir, stem+".*"))
		for _, match := range matches {
			if id, ok := RunID(filepath.Base(match), stem); ok {
				used[id] = true
			}
		}
	}
	id := date
	for n := 1; used[id]; n++ {
		id = fmt.Sprintf("%s-%d", date, n)
	}
	return id
}
