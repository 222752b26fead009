// Package validation compares extracted test data against benchmark data
// within configured tolerances.
package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/testcode-hq/testcode/extract"
	"github.com/testcode-hq/testcode/status"
)

// Tolerance holds the thresholds within which a test value is regarded as
// equal to a benchmark value. At least one threshold must be set. A
// Tolerance is immutable after construction and shared by reference across
// all cases using the same named tolerance.
type Tolerance struct {
	Absolute *float64
	Relative *float64
	// Strict requires both thresholds to be met when both are set;
	// otherwise meeting either one suffices.
	Strict bool
}

// New constructs a tolerance. Exactly mirrors the configuration invariant:
// a tolerance with neither threshold is a configuration error.
func New(absolute, relative *float64, strict bool) (*Tolerance, error) {
	if absolute == nil && relative == nil {
		return nil, fmt.Errorf("neither absolute nor relative tolerance given")
	}
	return &Tolerance{Absolute: absolute, Relative: relative, Strict: strict}, nil
}

// Validate compares a test value against a benchmark value. The returned
// message cites both literal values and is prefixed with the field key when
// one is supplied.
func (t *Tolerance) Validate(testVal, benchVal extract.Value, key string) (status.Status, string) {
	st := status.Passed
	var msgs []string
	compare := fmt.Sprintf("(Test: %s.  Benchmark: %s.)", testVal, benchVal)

	if testVal.Numeric() && benchVal.Numeric() {
		if math.IsNaN(testVal.Float()) || math.IsNaN(benchVal.Float()) {
			st = status.Failed
			msgs = []string{"cannot compare NaNs."}
		} else {
			absOK, absMsg := t.validateAbsolute(benchVal.Float(), testVal.Float())
			relOK, relMsg := t.validateRelative(benchVal.Float(), testVal.Float())
			if t.Absolute != nil && t.Relative != nil && !t.Strict {
				// Only one of the thresholds needs to be met.
				st = status.Of(relOK, absOK)
			} else {
				// Only one threshold is active, or both are and strict mode
				// requires both to be met.
				st = status.Of(relOK).Combine(status.Of(absOK))
			}
			errStat := ""
			if st.Warning() {
				errStat = "Warning: "
			} else if st.Failed() {
				errStat = "ERROR: "
			}
			if t.Absolute != nil && absMsg != "" {
				msgs = append(msgs, fmt.Sprintf("%s%s %s", errStat, absMsg, compare))
			}
			if t.Relative != nil && relMsg != "" {
				msgs = append(msgs, fmt.Sprintf("%s%s %s", errStat, relMsg, compare))
			}
		}
	} else if !testVal.Equal(benchVal) {
		// Subtraction is meaningless for at least one of the values; fall
		// back to requiring exact equality.
		st = status.Failed
		msgs = []string{"values are different. " + compare}
	}

	if key != "" && len(msgs) > 0 {
		msgs = append([]string{key}, msgs...)
		return st, strings.Join(msgs, "\n    ")
	}
	return st, strings.Join(msgs, "\n")
}

func (t *Tolerance) validateAbsolute(benchVal, testVal float64) (bool, string) {
	if t.Absolute == nil {
		return true, ""
	}
	err := math.Abs(testVal - benchVal)
	if err < *t.Absolute {
		return true, ""
	}
	return false, fmt.Sprintf("absolute error %.2e greater than %.2e.", err, *t.Absolute)
}

func (t *Tolerance) validateRelative(benchVal, testVal float64) (bool, string) {
	if t.Relative == nil {
		return true, ""
	}
	diff := testVal - benchVal
	var err float64
	switch {
	case benchVal == 0 && diff == 0:
		err = 0
	case benchVal == 0:
		err = math.Inf(1)
	default:
		err = math.Abs(diff / benchVal)
	}
	if err < *t.Relative {
		return true, ""
	}
	return false, fmt.Sprintf("relative error %.2e greater than %.2e.", err, *t.Relative)
}
