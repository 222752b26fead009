package runner

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testcode-hq/testcode"
	"github.com/testcode-hq/testcode/status"
)

// Compare re-verifies the outputs of a previous run against the benchmarks
// without executing anything. Cases whose test output file is missing are
// counted as skipped. The test id selecting the previous run is carried by
// each test's program.
func Compare(tests []*testcode.Test, reporter *testcode.Reporter, lg log.Logger) Result {
	if lg == nil {
		lg = log.New()
	}
	start := time.Now()
	var result Result
	for _, test := range tests {
		for _, ca := range test.InputsArgs {
			testFile := filepath.Join(test.Path, test.Program.TestFilename(ca.Input, ca.Args))
			if _, err := os.Stat(testFile); err != nil {
				msg := fmt.Sprintf("Test file does not exist: %s.", testFile)
				test.MarkSkipped(ca, msg)
				reporter.Verdict(status.Skipped, msg)
				continue
			}
			test.VerifyCase(ca.Input, ca.Args)
		}
		npassed, nran := test.Status()
		result.Passed += npassed
		result.Ran += nran
		result.Skipped += test.SkippedCases()
	}
	result.Duration = time.Since(start)
	reporter.Summary(result.Passed, result.Ran, result.Skipped)
	lg.Info("Comparison finished", "passed", result.Passed, "ran", result.Ran, "skipped", result.Skipped)
	return result
}

// Diff runs an external diff program on the benchmark and test file of each
// case, writing its output to w. Cases missing either file are skipped.
func Diff(tests []*testcode.Test, diffProgram string, w io.Writer, lg log.Logger) error {
	if lg == nil {
		lg = log.New()
	}
	for _, test := range tests {
		for _, ca := range test.InputsArgs {
			benchFile := test.Program.BenchFilename(ca.Input, ca.Args)
			testFile := test.Program.TestFilename(ca.Input, ca.Args)
			missing := false
			for _, name := range []string{benchFile, testFile} {
				if _, err := os.Stat(filepath.Join(test.Path, name)); err != nil {
					fmt.Fprintf(w, "Skipping diff with %s in %s: file does not exist.\n", name, test.Path)
					missing = true
				}
			}
			if missing {
				continue
			}
			fmt.Fprintf(w, "Diffing %s and %s in %s.\n", benchFile, testFile, test.Path)
			cmd := exec.Command("/bin/sh", "-c", fmt.Sprintf("%s %s %s",
				diffProgram, testcode.ShellQuote(benchFile), testcode.ShellQuote(testFile)))
			cmd.Dir = test.Path
			cmd.Stdout = w
			cmd.Stderr = w
			if err := cmd.Run(); err != nil {
				if _, ok := err.(*exec.ExitError); ok {
					// Differing files are the whole point of asking.
					continue
				}
				return testcode.NewRunErrorf("failed to run diff program %s: %v", diffProgram, err)
			}
		}
	}
	return nil
}

// Tidy deletes test outputs, error files and submit script copies older
// than ndays from each test directory. The confirm callback receives a
// description of what will be removed and must return true to proceed.
func Tidy(tests []*testcode.Test, ndays int, confirm func(string) bool, w io.Writer, lg log.Logger) error {
	if lg == nil {
		lg = log.New()
	}
	cutoff := time.Now().AddDate(0, 0, -ndays)
	for _, test := range tests {
		patterns := []string{
			test.Program.Stems.Test + ".*",
			test.Program.Stems.Error + ".*",
		}
		if test.Program.SubmitTemplate != "" {
			patterns = append(patterns, filepath.Base(test.Program.SubmitTemplate)+".*")
		}
		var victims []string
		for _, pattern := range patterns {
			matches, err := filepath.Glob(filepath.Join(test.Path, pattern))
			if err != nil {
				continue
			}
			for _, match := range matches {
				info, err := os.Stat(match)
				if err != nil || !info.Mode().IsRegular() {
					continue
				}
				if info.ModTime().Before(cutoff) {
					victims = append(victims, match)
				}
			}
		}
		if len(victims) == 0 {
			continue
		}
		desc := fmt.Sprintf("%s:\n", test.Path)
		for _, victim := range victims {
			desc += fmt.Sprintf("    %s\n", filepath.Base(victim))
		}
		if !confirm(desc) {
			fmt.Fprintf(w, "Skipping %s.\n", test.Path)
			continue
		}
		for _, victim := range victims {
			if err := os.Remove(victim); err != nil {
				return testcode.NewRunErrorf("failed to remove %s: %v", victim, err)
			}
			lg.Debug("Removed old file", "file", victim)
		}
	}
	return nil
}

// MakeBenchmarks copies the test outputs of the most recent run into
// benchmark files tagged with label. When not every attempted case passed,
// the confirm callback decides whether to proceed anyway. Data files
// modified at or after copyFilesSince are archived alongside.
func MakeBenchmarks(tests []*testcode.Test, label string, copyFilesSince time.Time,
	confirm func(string) bool, lg log.Logger) error {

	if lg == nil {
		lg = log.New()
	}
	var passed, ran int
	for _, test := range tests {
		npassed, nran := test.Status()
		passed += npassed
		ran += nran
	}
	if passed != ran {
		msg := fmt.Sprintf("Not all tests passed (%d out of %d).  Create benchmarks anyway?", passed, ran)
		if !confirm(msg) {
			return testcode.NewRunErrorf("benchmark creation aborted")
		}
	}
	for _, test := range tests {
		if err := test.CreateBenchmarks(label, copyFilesSince, ""); err != nil {
			return err
		}
	}
	lg.Info("Created benchmarks", "label", label, "tests", len(tests))
	return nil
}
