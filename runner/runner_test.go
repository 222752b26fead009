package runner

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testcode-hq/testcode"
	"github.com/testcode-hq/testcode/dirlock"
	"github.com/testcode-hq/testcode/logging"
	"github.com/testcode-hq/testcode/validation"
)

// newSuite builds tests running /bin/cat against tagged input files, one
// test per directory. Each entry maps an input file to its benchmark
// content; identical content passes, diverging content fails.
func newSuite(t *testing.T, out *bytes.Buffer, cases ...map[string]string) []*testcode.Test {
	t.Helper()
	lock := &dirlock.Lock{}
	reporter := testcode.NewReporter(out, 0)
	abs := 1e-10
	tol, err := validation.New(&abs, nil, true)
	require.NoError(t, err)

	var tests []*testcode.Test
	for _, benchByInput := range cases {
		dir := t.TempDir()
		prog := testcode.NewProgram("cat", "/bin/cat", "id1", "bench")
		prog.DataTag = "DVAL"
		test := testcode.NewTest(prog, dir, lock, reporter, log.New())
		test.DefaultTolerance = tol
		for input, benchContent := range benchByInput {
			test.InputsArgs = append(test.InputsArgs, testcode.InputArgs{Input: input})
			require.NoError(t, os.WriteFile(filepath.Join(dir, input), []byte("DVAL energy: 1.0\n"), 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "benchmark.out.bench.inp="+input), []byte(benchContent), 0o644))
		}
		tests = append(tests, test)
	}
	return tests
}

func TestRunAggregatesAcrossTests(t *testing.T) {
	var out bytes.Buffer
	tests := newSuite(t, &out,
		map[string]string{"a": "DVAL energy: 1.0\n"},
		map[string]string{"b": "DVAL energy: 2.0\n"},
	)

	r := NewRunner(Config{Tests: tests, Reporter: testcode.NewReporter(&out, 0), Concurrency: 2})
	result := r.Run()

	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Ran)
	assert.Equal(t, 0, result.Skipped)
	assert.False(t, result.AllPassed())
	assert.NotEmpty(t, r.RunID())
	assert.Contains(t, out.String(), " [1/2]")
}

func TestRunSerialOrderPreserved(t *testing.T) {
	var out bytes.Buffer
	tests := newSuite(t, &out,
		map[string]string{"a": "DVAL energy: 1.0\n"},
		map[string]string{"b": "DVAL energy: 2.0\n"},
	)

	result := NewRunner(Config{Tests: tests, Reporter: testcode.NewReporter(&out, 0)}).Run()
	assert.Equal(t, 1, result.Passed)
	// One worker, so verdict order matches test order.
	assert.Contains(t, out.String(), ".F [1/2]")
}

func TestRunWritesFileLogs(t *testing.T) {
	var out bytes.Buffer
	tests := newSuite(t, &out,
		map[string]string{"a": "DVAL energy: 1.0\n"},
		map[string]string{"b": "DVAL energy: 2.0\n"},
	)

	fl, err := logging.NewFileLogger(t.TempDir(), "run1")
	require.NoError(t, err)
	NewRunner(Config{Tests: tests, Reporter: testcode.NewReporter(&out, 0), FileLogger: fl}).Run()

	passedLogs, err := filepath.Glob(filepath.Join(fl.LogDir(), "passed", "*.log"))
	require.NoError(t, err)
	assert.Len(t, passedLogs, 1)
	failedLogs, err := filepath.Glob(filepath.Join(fl.LogDir(), "failed", "*.log"))
	require.NoError(t, err)
	assert.Len(t, failedLogs, 1)

	// The log carries the full diagnostic text, not just the verdict.
	content, err := os.ReadFile(failedLogs[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "absolute error")
	assert.Contains(t, string(content), "energy")

	summary, err := os.ReadFile(filepath.Join(fl.LogDir(), logging.SummaryFilename))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "1 out of 2 tests passed.")
}

func TestCompareReusesExistingOutputs(t *testing.T) {
	var out bytes.Buffer
	tests := newSuite(t, &out,
		map[string]string{"a": "DVAL energy: 1.0\n", "missing": "DVAL energy: 1.0\n"},
	)
	// A previous run left an output only for case a.
	dir := tests[0].Path
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.out.id1.inp=a"), []byte("DVAL energy: 1.0\n"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "missing")))

	result := Compare(tests, testcode.NewReporter(&out, 0), log.New())

	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Ran)
	assert.Equal(t, 1, result.Skipped)
}

func TestDiffSkipsMissingFiles(t *testing.T) {
	var out bytes.Buffer
	tests := newSuite(t, &out, map[string]string{"a": "DVAL energy: 1.0\n"})
	dir := tests[0].Path
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.out.id1.inp=a"), []byte("DVAL energy: 1.5\n"), 0o644))

	var diffOut bytes.Buffer
	require.NoError(t, Diff(tests, "diff", &diffOut, log.New()))
	assert.Contains(t, diffOut.String(), "Diffing")
	assert.Contains(t, diffOut.String(), "energy")

	// Remove the test file: the diff is skipped, not an error.
	require.NoError(t, os.Remove(filepath.Join(dir, "test.out.id1.inp=a")))
	diffOut.Reset()
	require.NoError(t, Diff(tests, "diff", &diffOut, log.New()))
	assert.Contains(t, diffOut.String(), "file does not exist")
}

func TestTidyRemovesOldFilesAfterConfirmation(t *testing.T) {
	var out bytes.Buffer
	tests := newSuite(t, &out, map[string]string{"a": "DVAL energy: 1.0\n"})
	dir := tests[0].Path

	oldFile := filepath.Join(dir, "test.out.old.inp=a")
	newFile := filepath.Join(dir, "test.out.id1.inp=a")
	require.NoError(t, os.WriteFile(oldFile, nil, 0o644))
	require.NoError(t, os.WriteFile(newFile, nil, 0o644))
	ancient := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(oldFile, ancient, ancient))

	var tidyOut bytes.Buffer
	var asked string
	confirm := func(desc string) bool {
		asked = desc
		return true
	}
	require.NoError(t, Tidy(tests, 7, confirm, &tidyOut, log.New()))

	assert.Contains(t, asked, "test.out.old.inp=a")
	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, newFile)
	// The benchmark file is never touched.
	assert.FileExists(t, filepath.Join(dir, "benchmark.out.bench.inp=a"))
}

func TestTidyDeclined(t *testing.T) {
	var out bytes.Buffer
	tests := newSuite(t, &out, map[string]string{"a": "DVAL energy: 1.0\n"})
	dir := tests[0].Path
	oldFile := filepath.Join(dir, "test.err.old.inp=a")
	require.NoError(t, os.WriteFile(oldFile, nil, 0o644))
	ancient := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(oldFile, ancient, ancient))

	var tidyOut bytes.Buffer
	require.NoError(t, Tidy(tests, 7, func(string) bool { return false }, &tidyOut, log.New()))
	assert.FileExists(t, oldFile)
	assert.Contains(t, tidyOut.String(), "Skipping")
}

func TestMakeBenchmarksConfirmsOnFailures(t *testing.T) {
	var out bytes.Buffer
	tests := newSuite(t, &out, map[string]string{"a": "DVAL energy: 2.0\n"})
	NewRunner(Config{Tests: tests, Reporter: testcode.NewReporter(&out, 0)}).Run()

	err := MakeBenchmarks(tests, "newlabel", time.Time{}, func(string) bool { return false }, log.New())
	require.Error(t, err)
	assert.True(t, testcode.IsRunError(err))

	require.NoError(t, MakeBenchmarks(tests, "newlabel", time.Time{}, func(string) bool { return true }, log.New()))
	assert.FileExists(t, filepath.Join(tests[0].Path, "benchmark.out.newlabel.inp=a"))
}

func TestMakeBenchmarksConfirmsAfterCompare(t *testing.T) {
	var out bytes.Buffer
	tests := newSuite(t, &out, map[string]string{"a": "DVAL energy: 2.0\n"})
	// A previous run left an output that does not match the benchmark.
	dir := tests[0].Path
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.out.id1.inp=a"), []byte("DVAL energy: 1.0\n"), 0o644))

	// Blessing outputs in a fresh invocation re-verifies them first, so the
	// confirmation sees the failure instead of an unattempted status record.
	Compare(tests, testcode.NewReporter(&out, 0), log.New())

	var asked string
	err := MakeBenchmarks(tests, "newlabel", time.Time{}, func(desc string) bool {
		asked = desc
		return false
	}, log.New())
	require.Error(t, err)
	assert.True(t, testcode.IsRunError(err))
	assert.Contains(t, asked, "Not all tests passed (0 out of 1).")
}
