package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/testcode-hq/testcode"
	"github.com/testcode-hq/testcode/config"
	"github.com/testcode-hq/testcode/dirlock"
	"github.com/testcode-hq/testcode/exitcodes"
	"github.com/testcode-hq/testcode/filenames"
	"github.com/testcode-hq/testcode/flags"
	"github.com/testcode-hq/testcode/logging"
	"github.com/testcode-hq/testcode/runner"
	"github.com/testcode-hq/testcode/vcs"
)

var (
	Version   = "v2.0.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "testcode"
	app.Usage = "Regression tester for numerical programs"
	app.Description = "testcode runs a program against a set of test inputs and " +
		"compares the extracted data to benchmark results within tolerances."
	app.DefaultCommand = "run"
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Run the tests and compare against the benchmarks",
			Flags:  flags.Flags,
			Action: actionRun,
		},
		{
			Name:   "compare",
			Usage:  "Compare the outputs of a previous run against the benchmarks",
			Flags:  flags.Flags,
			Action: actionCompare,
		},
		{
			Name:   "diff",
			Usage:  "Diff the benchmark and test files of a previous run",
			Flags:  flags.Flags,
			Action: actionDiff,
		},
		{
			Name:   "tidy",
			Usage:  "Delete old test outputs from the test directories",
			Flags:  flags.Flags,
			Action: actionTidy,
		},
		{
			Name:   "make-benchmarks",
			Usage:  "Turn the outputs of the most recent run into new benchmarks",
			Flags:  flags.Flags,
			Action: actionMakeBenchmarks,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if testcode.IsConfigError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	// An interrupt kills the invocation on the spot. Partially written test
	// outputs are relocated by the next run.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		os.Exit(exitcodes.RuntimeErr)
	}()

	if err := app.Run(os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

// setup holds everything an action needs after the config files are parsed.
type setup struct {
	suite    *config.Suite
	tests    []*testcode.Test
	reporter *testcode.Reporter
	log      log.Logger
	yes      bool
}

// loadSetup parses the config files and builds the selected tests. forRun
// selects the id policy: running generates a fresh test id, every other
// action recovers the most recent one.
func loadSetup(ctx *cli.Context, forRun bool) (*setup, error) {
	logger := log.New()
	reporter := testcode.NewReporter(os.Stdout, ctx.Count(flags.Verbose.Name))

	stems := filenames.DefaultStems()
	benchmark := ctx.String(flags.Benchmark.Name)
	if strings.HasPrefix(benchmark, "t:") {
		stems.Benchmark = stems.Test
		benchmark = benchmark[len("t:"):]
	}
	testID := ctx.String(flags.TestID.Name)
	if strings.HasPrefix(testID, "b:") {
		stems.Test = filenames.DefaultStems().Benchmark
		testID = testID[len("b:"):]
	}
	if forRun && stems.Test != filenames.DefaultStems().Test {
		return nil, testcode.NewConfigErrorf("not allowed to treat benchmark files as test files when running tests")
	}

	user, err := config.LoadUserConfig(ctx.String(flags.UserConfig.Name))
	if err != nil {
		return nil, err
	}
	jobPath := ctx.String(flags.JobConfig.Name)
	job, err := config.LoadJobConfig(jobPath)
	if err != nil {
		return nil, err
	}
	suite, err := config.Build(user, job, jobPath, config.BuildOptions{
		TestID:      testID,
		UseLatestID: !forRun,
		Benchmark:   benchmark,
		Executable:  ctx.String(flags.Executable.Name),
		Nprocs:      ctx.Int(flags.Processors.Name),
		Stems:       stems,
		Lock:        &dirlock.Lock{},
		Reporter:    reporter,
		Log:         logger,
	})
	if err != nil {
		return nil, err
	}

	categories := ctx.StringSlice(flags.Category.Name)
	if len(categories) == 0 {
		if forRun {
			categories = []string{config.CategoryDefault}
		} else {
			categories = []string{config.CategoryAll}
		}
	}
	tests, err := suite.Select(categories)
	if err != nil {
		return nil, err
	}
	return &setup{
		suite:    suite,
		tests:    tests,
		reporter: reporter,
		log:      logger,
		yes:      ctx.Bool(flags.Yes.Name),
	}, nil
}

func actionRun(ctx *cli.Context) error {
	s, err := loadSetup(ctx, true)
	if err != nil {
		return err
	}

	var fileLogger *logging.FileLogger
	if dir := ctx.String(flags.LogDir.Name); dir != "" {
		fileLogger, err = logging.NewFileLogger(dir, s.suite.TestID)
		if err != nil {
			return testcode.NewConfigError(err)
		}
	}

	result := runner.NewRunner(runner.Config{
		Tests:       s.tests,
		Reporter:    s.reporter,
		Concurrency: ctx.Int(flags.Concurrency.Name),
		Queue:       ctx.String(flags.Queue.Name),
		FileLogger:  fileLogger,
		Log:         s.log,
	}).Run()
	if !result.AllPassed() {
		return cli.Exit("", exitcodes.TestFailure)
	}
	return nil
}

func actionCompare(ctx *cli.Context) error {
	s, err := loadSetup(ctx, false)
	if err != nil {
		return err
	}
	result := runner.Compare(s.tests, s.reporter, s.log)
	if !result.AllPassed() {
		return cli.Exit("", exitcodes.TestFailure)
	}
	return nil
}

func actionDiff(ctx *cli.Context) error {
	s, err := loadSetup(ctx, false)
	if err != nil {
		return err
	}
	return runner.Diff(s.tests, s.suite.Options.Diff, os.Stdout, s.log)
}

func actionTidy(ctx *cli.Context) error {
	s, err := loadSetup(ctx, false)
	if err != nil {
		return err
	}
	confirm := confirmFunc(s.yes, "Delete the following files?")
	return runner.Tidy(s.tests, ctx.Int(flags.OlderThan.Name), confirm, os.Stdout, s.log)
}

func actionMakeBenchmarks(ctx *cli.Context) error {
	s, err := loadSetup(ctx, false)
	if err != nil {
		return err
	}

	// Re-verify the outputs being blessed so the not-all-passed
	// confirmation reflects their actual state.
	runner.Compare(s.tests, s.reporter, s.log)

	label := ctx.String(flags.Label.Name)
	if label == "" {
		label, err = benchmarkLabel(s.suite)
		if err != nil {
			return err
		}
	}

	var copyFilesSince time.Time
	if ctx.Bool(flags.InsertFiles.Name) {
		// Archive everything touched since the outputs being blessed.
		copyFilesSince = outputsModifiedSince(s.tests)
	}

	confirm := confirmFunc(s.yes, "")
	if err := runner.MakeBenchmarks(s.tests, label, copyFilesSince, confirm, s.log); err != nil {
		return err
	}
	if err := config.SaveUserBenchmark(ctx.String(flags.UserConfig.Name), label); err != nil {
		return err
	}
	fmt.Printf("Created benchmarks with label %s.\n", label)
	return nil
}

// benchmarkLabel derives a benchmark label from each program's version
// control system, asking the operator for programs not under one.
func benchmarkLabel(suite *config.Suite) (string, error) {
	ids := make(map[string]string, len(suite.Programs))
	for name, prog := range suite.Programs {
		system := suite.ProgramVCS[name]
		if vcs.Supported(system) {
			id, err := vcs.CodeID(system, filepath.Dir(prog.Exe))
			if err == nil {
				ids[name] = id
				continue
			}
			fmt.Printf("Failed to get %s revision id for %s.\n", system, name)
		} else {
			fmt.Printf("Program %s not under a known version control system.\n", name)
		}
		id, err := prompt(fmt.Sprintf("Enter revision id for %s: ", name))
		if err != nil {
			return "", err
		}
		ids[name] = id
	}
	if len(ids) == 1 {
		for _, id := range ids {
			return id, nil
		}
	}
	parts := make([]string, 0, len(ids))
	for name, id := range ids {
		parts = append(parts, fmt.Sprintf("%s-%s", name, id))
	}
	return strings.Join(parts, "."), nil
}

// outputsModifiedSince returns the oldest modification time among the test
// output files being turned into benchmarks.
func outputsModifiedSince(tests []*testcode.Test) time.Time {
	oldest := time.Now()
	for _, test := range tests {
		for _, ca := range test.InputsArgs {
			info, err := os.Stat(filepath.Join(test.Path, test.Program.TestFilename(ca.Input, ca.Args)))
			if err != nil {
				continue
			}
			if info.ModTime().Before(oldest) {
				oldest = info.ModTime()
			}
		}
	}
	return oldest
}

func confirmFunc(yes bool, question string) func(string) bool {
	return func(desc string) bool {
		if yes {
			return true
		}
		if desc != "" {
			fmt.Println(desc)
		}
		q := question
		if q == "" {
			q = "Proceed?"
		}
		answer, err := prompt(q + " [y/n] ")
		if err != nil {
			return false
		}
		return answer == "y" || answer == "yes"
	}
}

func prompt(question string) (string, error) {
	fmt.Print(question)
	answer, err := readLine(os.Stdin)
	if err != nil {
		return "", testcode.NewRunErrorf("failed to read answer: %v", err)
	}
	return strings.ToLower(strings.TrimSpace(answer)), nil
}

func readLine(r io.Reader) (string, error) {
	return bufio.NewReader(r).ReadString('\n')
}
