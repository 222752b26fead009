package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/testcode-hq/testcode/extract"
	"github.com/testcode-hq/testcode/status"
)

// CompareData compares a benchmark data set against a test data set.
// Ignored fields are removed first; if the remaining key sets differ the
// data is incomparable and the result is a failure listing the fields only
// present on one side. Shared fields are compared value by value with the
// field's override tolerance, or the default when no override exists, and
// all per-value verdicts are combined into one.
func CompareData(bench, test extract.Data, defaultTol *Tolerance,
	tolerances map[string]*Tolerance, ignoreFields []string) (bool, status.Status, string) {

	ignored := make(map[string]bool, len(ignoreFields))
	for _, field := range ignoreFields {
		ignored[field] = true
	}

	benchParams := make(map[string]bool)
	for key := range bench {
		if !ignored[key] {
			benchParams[key] = true
		}
	}
	testParams := make(map[string]bool)
	for key := range test {
		if !ignored[key] {
			testParams[key] = true
		}
	}

	var benchOnly, testOnly, shared []string
	for key := range benchParams {
		if testParams[key] {
			shared = append(shared, key)
		} else {
			benchOnly = append(benchOnly, key)
		}
	}
	for key := range testParams {
		if !benchParams[key] {
			testOnly = append(testOnly, key)
		}
	}
	sort.Strings(benchOnly)
	sort.Strings(testOnly)
	sort.Strings(shared)

	comparable := len(benchOnly) == 0 && len(testOnly) == 0
	st := status.Unknown
	var msgs []string

	if !comparable {
		st = status.Failed
		msgs = append(msgs, "Different sets of data extracted from benchmark and test.")
		if len(benchOnly) > 0 {
			msgs = append(msgs, fmt.Sprintf("    Data only in benchmark: %s.", strings.Join(benchOnly, ", ")))
		}
		if len(testOnly) > 0 {
			msgs = append(msgs, fmt.Sprintf("    Data only in test: %s.", strings.Join(testOnly, ", ")))
		}
	}

	for _, param := range shared {
		tol := defaultTol
		if override, ok := tolerances[param]; ok {
			tol = override
		}
		if tol == nil {
			st = st.Combine(status.Failed)
			msgs = append(msgs, fmt.Sprintf("%s\n    no tolerance defined.", param))
			continue
		}
		n := len(bench[param])
		if len(test[param]) < n {
			n = len(test[param])
		}
		for i := 0; i < n; i++ {
			keyStatus, err := tol.Validate(test[param][i], bench[param][i], param)
			st = st.Combine(keyStatus)
			if !keyStatus.Passed() && err != "" {
				msgs = append(msgs, err)
			}
		}
	}

	return comparable, st, strings.Join(msgs, "\n")
}
