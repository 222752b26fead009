// Package status defines the verdict lattice used to aggregate test results.
package status

import (
	"github.com/jedib0t/go-pretty/v6/text"
)

// Status is the verdict of a comparison or a roll-up of comparisons. The
// ordering is load-bearing: Combine keeps the larger ordinal, so a failure
// dominates a partial pass, which dominates a pass.
type Status int

const (
	Unknown Status = iota - 2
	Skipped
	Passed
	Partial
	Failed
)

// Of derives a status from a set of individual check outcomes: all true is
// a pass, some true is a partial pass, none true is a failure. No outcomes
// at all is unknown.
func Of(oks ...bool) Status {
	if len(oks) == 0 {
		return Unknown
	}
	all, any := true, false
	for _, ok := range oks {
		all = all && ok
		any = any || ok
	}
	switch {
	case all:
		return Passed
	case any:
		return Partial
	default:
		return Failed
	}
}

// Combine returns the worse of the two statuses. It is commutative,
// associative and idempotent.
func (s Status) Combine(other Status) Status {
	if other > s {
		return other
	}
	return s
}

func (s Status) Unknown() bool { return s == Unknown }
func (s Status) Skipped() bool { return s == Skipped }
func (s Status) Passed() bool  { return s == Passed }
func (s Status) Warning() bool { return s == Partial }
func (s Status) Failed() bool  { return s == Failed }

// Char returns the single-character form used in terse output streams.
func (s Status) Char() string {
	switch s {
	case Unknown:
		return "U"
	case Skipped:
		return "S"
	case Passed:
		return "."
	case Partial:
		return "W"
	default:
		return "F"
	}
}

// Word returns the human-facing form used in verbose output, colored for
// terminals.
func (s Status) Word() string {
	switch s {
	case Unknown:
		return "Unknown."
	case Skipped:
		return text.FgBlue.Sprint("SKIPPED") + "."
	case Passed:
		return "Passed."
	case Partial:
		return text.FgBlue.Sprint("WARNING") + "."
	default:
		return text.Colors{text.FgRed, text.Bold}.Sprint("**FAILED**") + "."
	}
}

func (s Status) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Skipped:
		return "skipped"
	case Passed:
		return "passed"
	case Partial:
		return "partial"
	default:
		return "failed"
	}
}
