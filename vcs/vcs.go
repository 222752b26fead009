// Package vcs obtains a revision id from a program's version control
// system, used to label newly created benchmark files.
package vcs

import (
	"fmt"
	"os/exec"
	"strings"
)

// commands maps each supported system to the command printing the current
// revision id of a working copy.
var commands = map[string][]string{
	"git": {"git", "rev-parse", "--short", "HEAD"},
	"hg":  {"hg", "identify", "--id"},
	"svn": {"svnversion"},
}

// Supported reports whether the named version control system is known.
func Supported(system string) bool {
	_, ok := commands[system]
	return ok
}

// CodeID returns the revision id of the working copy at dir.
func CodeID(system, dir string) (string, error) {
	args, ok := commands[system]
	if !ok {
		return "", fmt.Errorf("unknown version control system: %s", system)
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get %s revision id in %s: %w", system, dir, err)
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("%s returned no revision id in %s", system, dir)
	}
	return id, nil
}
