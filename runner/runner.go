// Package runner fans a set of tests out over a bounded worker pool and
// aggregates their outcomes into a single run result.
package runner

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/testcode-hq/testcode"
	"github.com/testcode-hq/testcode/logging"
	"github.com/testcode-hq/testcode/metrics"
	"github.com/testcode-hq/testcode/status"
)

// Config configures one run.
type Config struct {
	Tests    []*testcode.Test
	Reporter *testcode.Reporter
	// Concurrency bounds the number of tests executing at once. Values
	// below one run tests serially. Ignored when submitting to a queue:
	// queued tests only wait, so they all submit at once.
	Concurrency int
	// Queue selects a cluster queueing system; empty runs locally.
	Queue string
	// FileLogger persists per-case verdicts and diagnostic text when set.
	FileLogger *logging.FileLogger
	Log        log.Logger
}

// Result is the aggregate outcome of a run.
type Result struct {
	Passed   int
	Ran      int
	Skipped  int
	Duration time.Duration
}

// AllPassed reports whether every attempted case passed.
func (r Result) AllPassed() bool {
	return r.Passed == r.Ran
}

// Runner executes tests concurrently. Each test mutates only its own
// status record, so aggregation happens strictly after the pool is joined.
type Runner struct {
	cfg   Config
	log   log.Logger
	runID string
}

// NewRunner creates a runner with a fresh run id.
func NewRunner(cfg Config) *Runner {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Runner{
		cfg:   cfg,
		log:   cfg.Log,
		runID: uuid.New().String(),
	}
}

// RunID returns the id labeling this run in metrics and log files.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes every test and returns the aggregated result. The summary
// is printed through the reporter once all workers have joined.
func (r *Runner) Run() Result {
	start := time.Now()
	tests := r.cfg.Tests

	concurrency := r.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if r.cfg.Queue != "" {
		// Queued tests spend their time waiting on the queue, not working.
		concurrency = len(tests)
	}

	r.log.Info("Starting test run", "run_id", r.runID, "tests", len(tests), "concurrency", concurrency)

	workChan := make(chan *testcode.Test)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for test := range workChan {
				test.Run(r.cfg.Queue)
			}
		}()
	}
	for _, test := range tests {
		workChan <- test
	}
	close(workChan)
	wg.Wait()

	result := r.aggregate(tests)
	result.Duration = time.Since(start)

	r.cfg.Reporter.Summary(result.Passed, result.Ran, result.Skipped)

	resultLabel := "pass"
	if !result.AllPassed() {
		resultLabel = "fail"
	}
	metrics.RecordRun(r.runID, resultLabel, result.Ran, result.Passed, result.Ran-result.Passed, result.Duration)
	r.log.Info("Test run finished", "run_id", r.runID,
		"passed", result.Passed, "ran", result.Ran, "skipped", result.Skipped,
		"duration", result.Duration)
	return result
}

// aggregate collects per-test status records into one result, recording
// per-case metrics and log entries along the way.
func (r *Runner) aggregate(tests []*testcode.Test) Result {
	var result Result
	for _, test := range tests {
		npassed, nran := test.Status()
		result.Passed += npassed
		result.Ran += nran
		result.Skipped += test.SkippedCases()

		testName := filepath.Base(test.Path)
		for _, ca := range test.InputsArgs {
			cs := test.Case(ca)
			metrics.RecordCase(r.runID, test.Program.Name, caseResult(cs))
			if r.cfg.FileLogger == nil {
				continue
			}
			text := fmt.Sprintf("%s: %s", caseLabel(ca), caseResult(cs))
			if cs.Message != "" {
				text += "\n" + cs.Message
			}
			if err := r.cfg.FileLogger.LogCaseResult(testName, caseLabel(ca), cs.Passed, text); err != nil {
				r.log.Warn("Failed to write case log", "test", testName, "error", err)
			}
		}
	}
	if r.cfg.FileLogger != nil {
		summary := fmt.Sprintf("%d out of %d tests passed.  (Skipped: %d.)",
			result.Passed, result.Ran, result.Skipped)
		if err := r.cfg.FileLogger.LogSummary(summary); err != nil {
			r.log.Warn("Failed to write run summary", "error", err)
		}
	}
	return result
}

func caseResult(cs testcode.CaseStatus) status.Status {
	switch {
	case cs.Skipped:
		return status.Skipped
	case !cs.Attempted:
		return status.Unknown
	case cs.Passed:
		return status.Passed
	}
	return status.Failed
}

func caseLabel(ca testcode.InputArgs) string {
	switch {
	case ca.Input == "" && ca.Args == "":
		return "default"
	case ca.Args == "":
		return ca.Input
	case ca.Input == "":
		return ca.Args
	}
	return ca.Input + " " + ca.Args
}
