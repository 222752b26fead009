package testcode

import (
	"regexp"
	"strings"
)

var shellSafe = regexp.MustCompile(`^[a-zA-Z0-9@%+=:,./_-]+$`)

// ShellQuote returns s quoted for safe use as a single word in a shell
// command. Filenames and executables substituted into run-command templates
// pass through here; argument strings do not, so users can supply multiple
// arguments in one setting.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// hasGlobChars reports whether a pattern contains shell glob or brace
// metacharacters, in which case it must not be quoted when handed to a
// shell.
func hasGlobChars(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
