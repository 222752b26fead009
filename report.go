package testcode

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/testcode-hq/testcode/extract"
	"github.com/testcode-hq/testcode/status"
)

// Reporter writes human-facing progress and verdicts. At verbosity 0 each
// case verdict is a single character in a stream ('.' pass, 'F' fail, 'W'
// partial, 'U' unknown, 'S' skipped); at 1 each verdict is a word; at 2 and
// above the full diagnostic text follows. Workers report concurrently, so
// writes are serialized.
type Reporter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose int
}

// NewReporter creates a reporter writing to w at the given verbosity.
func NewReporter(w io.Writer, verbose int) *Reporter {
	return &Reporter{w: w, verbose: verbose}
}

// Verbose reports whether progress messages are shown.
func (r *Reporter) Verbose() bool { return r.verbose > 0 }

// Infof prints a progress message when verbose.
func (r *Reporter) Infof(format string, args ...interface{}) {
	if r.verbose == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format+"\n", args...)
}

// Verdict prints the outcome of one case.
func (r *Reporter) Verdict(st status.Status, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.verbose == 0 {
		fmt.Fprint(r.w, st.Char())
		return
	}
	fmt.Fprintln(r.w, st.Word())
	if r.verbose > 1 && msg != "" {
		fmt.Fprintln(r.w, msg)
	}
	if r.verbose > 2 {
		fmt.Fprintln(r.w)
	}
}

// Summary prints the final passed/attempted tally.
func (r *Reporter) Summary(passed, ran, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	skippedMsg := ""
	if skipped != 0 {
		skippedMsg = fmt.Sprintf("  (Skipped: %d.)", skipped)
	}
	if r.verbose == 0 {
		fmt.Fprintf(r.w, " [%d/%d]%s\n", passed, ran, skippedMsg)
		return
	}
	warn := ""
	if passed != ran {
		warn = "WARNING: only "
	}
	fmt.Fprintf(r.w, "All done.  %s%d out of %d tests passed.%s\n", warn, passed, ran, skippedMsg)
}

// DataTable renders benchmark and test data side by side for diagnostics.
// When the two data sets are incomparable they are rendered as separate
// tables instead.
func DataTable(bench, test extract.Data, comparable bool) string {
	if comparable {
		return renderTable([]string{"benchmark", "test"}, []extract.Data{bench, test})
	}
	return strings.Join([]string{
		renderTable([]string{"benchmark"}, []extract.Data{bench}),
		renderTable([]string{"test"}, []extract.Data{test}),
	}, "\n")
}

func renderTable(labels []string, datasets []extract.Data) string {
	keys := make(map[string]bool)
	for _, data := range datasets {
		for _, key := range data.Keys() {
			keys[key] = true
		}
	}
	t := table.NewWriter()
	header := table.Row{""}
	for _, label := range labels {
		header = append(header, label)
	}
	t.AppendHeader(header)
	for _, key := range sortedKeys(keys) {
		row := table.Row{key}
		for _, data := range datasets {
			values := make([]string, 0, len(data[key]))
			for _, v := range data[key] {
				values = append(values, v.String())
			}
			row = append(row, strings.Join(values, "  "))
		}
		t.AppendRow(row)
	}
	t.SetStyle(table.StyleLight)
	return t.Render()
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
