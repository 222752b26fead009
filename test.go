package testcode

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testcode-hq/testcode/dirlock"
	"github.com/testcode-hq/testcode/extract"
	"github.com/testcode-hq/testcode/filenames"
	"github.com/testcode-hq/testcode/metrics"
	"github.com/testcode-hq/testcode/queues"
	"github.com/testcode-hq/testcode/status"
	"github.com/testcode-hq/testcode/validation"
)

// DefaultDataDir is where CreateBenchmarks archives recently modified data
// files.
const DefaultDataDir = "testcode_data"

// InputArgs identifies one case of a test: an input file (possibly empty)
// and an argument string.
type InputArgs struct {
	Input string
	Args  string
}

// CaseStatus records the outcome of one case. A case is passed only if it
// was attempted and its combined verdict was a full pass. Message retains
// the diagnostic text of the latest verdict.
type CaseStatus struct {
	Attempted bool
	Passed    bool
	Skipped   bool
	Message   string
}

// Test owns one configured test: a program, a working directory and an
// ordered set of cases. It drives the run -> extract -> validate -> report
// pipeline for each case and records per-case status. A Test's status
// record is mutated only by the worker running that Test.
type Test struct {
	Program *Program
	Path    string

	InputsArgs []InputArgs
	// Output is a glob pattern for programs that write to a fixed path
	// rather than the stem-named output file; the produced file is moved
	// into place after each case.
	Output    string
	Nprocs    int
	MinNprocs int
	MaxNprocs int // 0 means unbounded

	DefaultTolerance *validation.Tolerance
	Tolerances       map[string]*validation.Tolerance

	// QueuePollInterval overrides the queue status-poll interval.
	QueuePollInterval time.Duration

	lock     *dirlock.Lock
	reporter *Reporter
	log      log.Logger

	caseStatus map[InputArgs]*CaseStatus
}

// NewTest creates a test for program in the given working directory. The
// caller fills in cases, tolerances and the remaining options before Run.
func NewTest(program *Program, path string, lock *dirlock.Lock, reporter *Reporter, logger log.Logger) *Test {
	return &Test{
		Program:  program,
		Path:     path,
		lock:     lock,
		reporter: reporter,
		log:      logger,
	}
}

func (t *Test) init() {
	if len(t.InputsArgs) == 0 {
		t.InputsArgs = []InputArgs{{}}
	}
	if t.caseStatus == nil {
		t.caseStatus = make(map[InputArgs]*CaseStatus, len(t.InputsArgs))
		for _, ca := range t.InputsArgs {
			t.caseStatus[ca] = &CaseStatus{}
		}
	}
}

// Run executes every case of the test. Cases run in configured order; a
// failing case never aborts its siblings. When clusterQueue is non-empty
// all cases are combined into a single queue submission.
func (t *Test) Run(clusterQueue string) {
	t.init()

	if t.Nprocs < t.MinNprocs || (t.MaxNprocs > 0 && t.Nprocs > t.MaxNprocs) {
		msg := fmt.Sprintf("Test in %s requires between %d and %d processors.", t.Path, t.MinNprocs, t.MaxNprocs)
		for _, ca := range t.InputsArgs {
			t.MarkSkipped(ca, msg)
			t.reporter.Verdict(status.Skipped, msg)
		}
		return
	}

	if err := t.moveOldOutputFiles(); err != nil {
		t.failAll(err)
		return
	}

	if clusterQueue != "" {
		t.runQueued(clusterQueue)
		return
	}

	for _, ca := range t.InputsArgs {
		if err := t.runCase(ca); err != nil {
			t.failCase(ca, err)
		}
	}
}

// runCase drives one case through the local pipeline: input check, job
// start, wait, output relocation, verification.
func (t *Test) runCase(ca InputArgs) error {
	if ca.Input != "" {
		if _, err := os.Stat(filepath.Join(t.Path, ca.Input)); err != nil {
			return NewRunErrorf("input file does not exist: %s", ca.Input)
		}
	}
	cmd := t.Program.RunCmd(ca.Input, ca.Args, t.Nprocs)

	job, err := t.startJob(cmd, "")
	if err != nil {
		return err
	}
	code, err := job.Wait()
	if err != nil {
		return err
	}
	if code != 0 {
		return NewRunErrorf("test command exited with status %d.%s", code, t.errorFileTail(ca))
	}
	if t.Output != "" {
		if err := t.moveOutputToTestOutput(t.Program.TestFilename(ca.Input, ca.Args)); err != nil {
			return err
		}
	}
	t.VerifyCase(ca.Input, ca.Args)
	return nil
}

// runQueued concatenates all case commands into one submit script, waits
// for the queue to finish the job, then verifies every case.
func (t *Test) runQueued(clusterQueue string) {
	cmds := make([]string, 0, len(t.InputsArgs))
	for _, ca := range t.InputsArgs {
		if ca.Input != "" {
			if _, err := os.Stat(filepath.Join(t.Path, ca.Input)); err != nil {
				t.failAll(NewRunErrorf("input file does not exist: %s", ca.Input))
				return
			}
		}
		cmd := t.Program.RunCmd(ca.Input, ca.Args, t.Nprocs)
		if t.Output != "" {
			// The queue job must do the relocation itself; the output
			// pattern stays unquoted if it contains wildcards.
			out := t.Output
			if !hasGlobChars(out) {
				out = ShellQuote(out)
			}
			cmd = fmt.Sprintf("%s; mv %s %s", cmd, out,
				ShellQuote(t.Program.TestFilename(ca.Input, ca.Args)))
		}
		cmds = append(cmds, cmd)
	}

	job, err := t.startJob(strings.Join(cmds, "\n"), clusterQueue)
	if err != nil {
		t.failAll(err)
		return
	}
	if _, err := job.Wait(); err != nil {
		t.failAll(err)
		return
	}
	for _, ca := range t.InputsArgs {
		t.VerifyCase(ca.Input, ca.Args)
	}
}

// startJob starts one execution, locally or via the queue. The directory
// lock is held only while starting: the child keeps running without it.
func (t *Test) startJob(cmd, clusterQueue string) (Job, error) {
	var job Job
	err := t.lock.InDir(t.Path, func() error {
		if clusterQueue != "" {
			submitFile := fmt.Sprintf("%s.%s", filepath.Base(t.Program.SubmitTemplate), t.Program.TestID)
			qjob, err := queues.NewJob(submitFile, clusterQueue)
			if err != nil {
				return NewRunError(err)
			}
			if t.QueuePollInterval > 0 {
				qjob.SetPollInterval(t.QueuePollInterval)
			}
			if err := qjob.CreateSubmitFile(t.Program.SubmitPattern, cmd, t.Program.SubmitTemplate); err != nil {
				return NewRunError(err)
			}
			t.reporter.Infof("Submitting tests using %s (template submit file) in %s", t.Program.SubmitTemplate, t.Path)
			t.log.Debug("Submitting queue job", "submit_file", submitFile, "queue", clusterQueue, "path", t.Path)
			if err := qjob.Start(); err != nil {
				return NewRunError(err)
			}
			job = qjob
			return nil
		}
		t.reporter.Infof("Running test using %s in %s\n", cmd, t.Path)
		t.log.Debug("Starting local job", "cmd", cmd, "path", t.Path)
		local, err := startLocalJob(cmd)
		if err != nil {
			return err
		}
		job = local
		return nil
	})
	return job, err
}

// moveOldOutputFiles relocates stray files matching the output pattern
// into a run-tagged holding directory so they cannot be mistaken for fresh
// output.
func (t *Test) moveOldOutputFiles() error {
	if t.Output == "" {
		return nil
	}
	return t.lock.InDir(t.Path, func() error {
		matches, err := filepath.Glob(t.Output)
		if err != nil {
			return NewRunErrorf("bad output pattern %s: %v", t.Output, err)
		}
		if len(matches) == 0 {
			return nil
		}
		holdDir := fmt.Sprintf("test.prev.output.%s", t.Program.TestID)
		t.reporter.Infof("WARNING: found existing files matching output pattern: %s.", t.Output)
		t.reporter.Infof("WARNING: moving existing output files (%s) to %s.\n", strings.Join(matches, ", "), holdDir)
		if err := os.MkdirAll(holdDir, 0o755); err != nil {
			return NewRunErrorf("failed to create %s: %v", holdDir, err)
		}
		for _, match := range matches {
			if err := os.Rename(match, filepath.Join(holdDir, filepath.Base(match))); err != nil {
				return NewRunErrorf("failed to move %s: %v", match, err)
			}
		}
		return nil
	})
}

// moveOutputToTestOutput moves the file produced by the program into the
// stem-named test output file. The pattern must match exactly one file.
func (t *Test) moveOutputToTestOutput(testFile string) error {
	return t.lock.InDir(t.Path, func() error {
		matches, err := filepath.Glob(t.Output)
		if err != nil {
			return NewRunErrorf("bad output pattern %s: %v", t.Output, err)
		}
		if len(matches) != 1 {
			return NewRunErrorf("output pattern (%s) matches %d files (%v).", t.Output, len(matches), matches)
		}
		if err := os.Rename(matches[0], testFile); err != nil {
			return NewRunErrorf("failed to move %s to %s: %v", matches[0], testFile, err)
		}
		return nil
	})
}

// VerifyCase checks one case against the benchmark: external verifier in
// verify mode, otherwise extract-and-compare. The status record is updated
// and the verdict reported. Also used on its own by the compare action.
func (t *Test) VerifyCase(input, args string) (status.Status, string) {
	t.init()
	var (
		st  status.Status
		msg string
	)
	err := t.lock.InDir(t.Path, func() error {
		if t.Program.Verify {
			var err error
			st, msg, err = t.verifyExternal(input, args)
			return err
		}
		bench, test, err := t.extractData(input, args)
		if err != nil {
			return err
		}
		comparable, cmpStatus, cmpMsg := validation.CompareData(bench, test,
			t.DefaultTolerance, t.Tolerances, t.Program.IgnoreFields)
		st = cmpStatus
		dataTable := DataTable(bench, test, comparable)
		if strings.TrimSpace(cmpMsg) != "" {
			msg = cmpMsg + "\n" + dataTable
		} else {
			msg = dataTable
		}
		return nil
	})
	if err != nil {
		st = status.Failed
		msg = fmt.Sprintf("Test(s) in %s failed.\n%v", t.Path, err)
	}
	t.updateStatus(InputArgs{Input: input, Args: args}, st.Passed(), msg)
	t.reporter.Verdict(st, msg)
	return st, msg
}

// verifyExternal runs the user-supplied verifier, which receives both file
// paths and performs the whole comparison itself. Its exit status is the
// verdict and its standard output the diagnostic text. Assumes the working
// directory is t.Path.
func (t *Test) verifyExternal(input, args string) (status.Status, string, error) {
	cmd := t.Program.ExtractCmds(input, args)[0]
	t.reporter.Infof("Analysing test using %s in %s.", cmd, t.Path)
	out, err := exec.Command("/bin/sh", "-c", cmd).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return status.Failed, string(out), nil
		}
		return status.Failed, "", NewRunErrorf("execution of verifier failed: %v", err)
	}
	return status.Passed, string(out), nil
}

// extractData extracts named series from the benchmark and test outputs.
// Assumes the working directory is t.Path.
func (t *Test) extractData(input, args string) (bench, test extract.Data, err error) {
	p := t.Program
	if p.DataTag != "" {
		benchFile := p.BenchFilename(input, args)
		testFile := p.TestFilename(input, args)
		t.reporter.Infof("Analysing output using data_tag %s in %s on files %s and %s.",
			p.DataTag, t.Path, benchFile, testFile)
		if bench, err = extract.Tagged(p.DataTag, benchFile); err != nil {
			return nil, nil, NewRunError(err)
		}
		if test, err = extract.Tagged(p.DataTag, testFile); err != nil {
			return nil, nil, NewRunError(err)
		}
		return bench, test, nil
	}

	// External extraction script, invoked once per file, benchmark first.
	outputs := make([]extract.Data, 0, 2)
	for _, cmd := range p.ExtractCmds(input, args) {
		t.reporter.Infof("Analysing output using %s in %s.", cmd, t.Path)
		out, err := exec.Command("/bin/sh", "-c", cmd).Output()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return nil, nil, NewRunErrorf("analysing output failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
			}
			return nil, nil, NewRunErrorf("analysing output failed: %v", err)
		}
		var data extract.Data
		switch p.ExtractFmt {
		case ExtractFmtYAML:
			data, err = extract.YAML(string(out))
		default:
			data, err = extract.Table(string(out))
		}
		if err != nil {
			return nil, nil, NewRunError(err)
		}
		outputs = append(outputs, data)
	}
	return outputs[0], outputs[1], nil
}

// CreateBenchmarks copies each case's test output file to a benchmark file
// tagged with the given label. If copyFilesSince is non-zero, data files
// modified at or after it are archived into dataDir (DefaultDataDir when
// empty), overwriting same-named prior archives.
func (t *Test) CreateBenchmarks(label string, copyFilesSince time.Time, dataDir string) error {
	t.init()
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	return t.lock.InDir(t.Path, func() error {
		for _, ca := range t.InputsArgs {
			testFile := t.Program.TestFilename(ca.Input, ca.Args)
			benchFile := filenames.BuildName(t.Program.Stems.Benchmark, label, ca.Input, ca.Args)
			if err := copyFile(testFile, benchFile); err != nil {
				return fmt.Errorf("failed to create benchmark from %s: %w", testFile, err)
			}
			t.log.Info("Created benchmark", "file", benchFile, "path", t.Path)
		}
		if copyFilesSince.IsZero() {
			return nil
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dataDir, err)
		}
		entries, err := os.ReadDir(".")
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().Before(copyFilesSince) {
				continue
			}
			if err := copyFile(entry.Name(), filepath.Join(dataDir, entry.Name())); err != nil {
				return fmt.Errorf("failed to archive %s: %w", entry.Name(), err)
			}
		}
		return nil
	})
}

// Status returns the number of passed and attempted cases.
func (t *Test) Status() (npassed, nran int) {
	t.init()
	for _, cs := range t.caseStatus {
		if cs.Attempted {
			nran++
		}
		if cs.Passed {
			npassed++
		}
	}
	return npassed, nran
}

// SkippedCases returns the number of cases skipped without being attempted.
func (t *Test) SkippedCases() int {
	t.init()
	n := 0
	for _, cs := range t.caseStatus {
		if cs.Skipped {
			n++
		}
	}
	return n
}

// Case returns the status record for one case.
func (t *Test) Case(ca InputArgs) CaseStatus {
	t.init()
	if cs, ok := t.caseStatus[ca]; ok {
		return *cs
	}
	return CaseStatus{}
}

// MarkSkipped records a case as skipped without attempting it.
func (t *Test) MarkSkipped(ca InputArgs, msg string) {
	t.init()
	if cs, ok := t.caseStatus[ca]; ok {
		cs.Skipped = true
		cs.Message = msg
	}
}

func (t *Test) updateStatus(ca InputArgs, passed bool, msg string) {
	t.init()
	cs, ok := t.caseStatus[ca]
	if !ok {
		cs = &CaseStatus{}
		t.caseStatus[ca] = cs
	}
	cs.Attempted = true
	if passed {
		cs.Passed = true
	}
	cs.Message = msg
}

func (t *Test) failCase(ca InputArgs, err error) {
	msg := fmt.Sprintf("Test(s) in %s failed.\n%v", t.Path, err)
	t.updateStatus(ca, false, msg)
	metrics.RecordErrorDetails("run", err)
	t.log.Debug("Case failed", "path", t.Path, "input", ca.Input, "args", ca.Args, "error", err)
	t.reporter.Verdict(status.Failed, msg)
}

func (t *Test) failAll(err error) {
	for _, ca := range t.InputsArgs {
		t.failCase(ca, err)
	}
}

func (t *Test) errorFileTail(ca InputArgs) string {
	data, err := os.ReadFile(filepath.Join(t.Path, t.Program.ErrorFilename(ca.Input, ca.Args)))
	if err != nil {
		return ""
	}
	tail := strings.TrimSpace(string(data))
	if tail == "" {
		return ""
	}
	const maxTail = 2048
	if len(tail) > maxTail {
		cut := len(tail) - maxTail
		// Never split a multi-byte character at the cut point.
		for cut < len(tail) && !utf8.RuneStart(tail[cut]) {
			cut++
		}
		tail = tail[cut:]
	}
	return "\n" + tail
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
