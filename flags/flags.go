package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "TESTCODE"

// prefixEnvVar joins the prefix and the flag's env var name.
func prefixEnvVar(name string) []string {
	return []string{fmt.Sprintf("%s_%s", EnvVarPrefix, name)}
}

var (
	UserConfig = &cli.StringFlag{
		Name:    "userconfig",
		Value:   "userconfig.yaml",
		EnvVars: prefixEnvVar("USERCONFIG"),
		Usage:   "Path to the userconfig file describing the programs under test",
	}
	JobConfig = &cli.StringFlag{
		Name:    "jobconfig",
		Value:   "jobconfig.yaml",
		EnvVars: prefixEnvVar("JOBCONFIG"),
		Usage:   "Path to the jobconfig file describing the tests",
	}
	Category = &cli.StringSliceFlag{
		Name:    "category",
		Aliases: []string{"c"},
		EnvVars: prefixEnvVar("CATEGORY"),
		Usage: "Select the category/group of tests.  Can be specified multiple times.  " +
			"Default: the _default_ category when running tests, the _all_ category otherwise",
	}
	Executable = &cli.StringFlag{
		Name:    "executable",
		Aliases: []string{"e"},
		EnvVars: prefixEnvVar("EXECUTABLE"),
		Usage:   "Override the executable of every program under test",
	}
	TestID = &cli.StringFlag{
		Name:    "test-id",
		Aliases: []string{"t"},
		EnvVars: prefixEnvVar("TEST_ID"),
		Usage: "Id of the test run to work with.  'b:ID' treats the benchmark files " +
			"with that id as test files (not permitted when running tests)",
	}
	Benchmark = &cli.StringFlag{
		Name:    "benchmark",
		Aliases: []string{"b"},
		EnvVars: prefixEnvVar("BENCHMARK"),
		Usage: "Benchmark id to compare against.  't:ID' compares against the test " +
			"files of a previous run instead",
	}
	Processors = &cli.IntFlag{
		Name:    "processors",
		Aliases: []string{"n"},
		EnvVars: prefixEnvVar("PROCESSORS"),
		Usage:   "Number of processors to run each test on",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   1,
		EnvVars: prefixEnvVar("CONCURRENCY"),
		Usage:   "Number of tests to run at the same time",
	}
	Queue = &cli.StringFlag{
		Name:    "queue",
		Aliases: []string{"q"},
		EnvVars: prefixEnvVar("QUEUE"),
		Usage:   "Submit tests to the named cluster queueing system (eg. 'PBS') instead of running locally",
	}
	Verbose = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Increase the verbosity of the output.  Can be specified multiple times",
	}
	OlderThan = &cli.IntFlag{
		Name:    "older-than",
		Value:   14,
		EnvVars: prefixEnvVar("OLDER_THAN"),
		Usage:   "Tidy files from runs older than this number of days",
	}
	Label = &cli.StringFlag{
		Name:    "label",
		EnvVars: prefixEnvVar("LABEL"),
		Usage:   "Label for newly created benchmark files.  Default: ask the program's version control system",
	}
	InsertFiles = &cli.BoolFlag{
		Name:    "insert-files",
		EnvVars: prefixEnvVar("INSERT_FILES"),
		Usage:   "Archive data files modified during the run alongside new benchmarks",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		EnvVars: prefixEnvVar("LOGDIR"),
		Usage:   "Directory for per-run log files.  Empty disables file logging",
	}
	Yes = &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		EnvVars: prefixEnvVar("YES"),
		Usage:   "Answer yes to all confirmation prompts",
	}
)

// Flags holds the flags shared by every action.
var Flags = []cli.Flag{
	UserConfig,
	JobConfig,
	Category,
	Executable,
	TestID,
	Benchmark,
	Processors,
	Concurrency,
	Queue,
	Verbose,
	OlderThan,
	Label,
	InsertFiles,
	LogDir,
	Yes,
}
