package testcode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/testcode-hq/testcode/filenames"
)

// Run-command template placeholders. tc.args is substituted verbatim;
// everything else is shell-escaped.
const (
	placeProgram = "tc.program"
	placeArgs    = "tc.args"
	placeInput   = "tc.input"
	placeOutput  = "tc.output"
	placeError   = "tc.error"
	placeNprocs  = "tc.nprocs"
	placeExtract = "tc.extract"
	placeFile    = "tc.file"
	placeTest    = "tc.test"
	placeBench   = "tc.bench"
)

// Default command templates and the submit-file marker.
const (
	DefaultRunCmdTemplate     = "tc.program tc.args tc.input > tc.output 2> tc.error"
	DefaultLaunchParallel     = "mpirun -np tc.nprocs"
	DefaultSubmitPattern      = "testcode.run_cmd"
	DefaultExtractCmdTemplate = "tc.extract tc.args tc.file"
	DefaultVerifyCmdTemplate  = "tc.extract tc.args tc.test tc.bench"
)

// Extraction formats understood for external extractor output.
const (
	ExtractFmtTable = "table"
	ExtractFmtYAML  = "yaml"
)

// Program stores information about the program being tested. It is
// immutable once execution starts; the TestID and Benchmark ids may be
// assigned once beforehand.
type Program struct {
	Name string
	Exe  string

	// Running.
	TestID         string
	RunCmdTemplate string
	LaunchParallel string
	SubmitTemplate string
	SubmitPattern  string

	// Analysis.
	Benchmark          string
	IgnoreFields       []string
	DataTag            string
	ExtractCmdTemplate string
	ExtractProgram     string
	ExtractArgs        string
	ExtractFmt         string
	Verify             bool

	// Filename stems, threaded explicitly so two runs or two benchmark
	// sets can be compared against each other.
	Stems filenames.Stems
}

// NewProgram creates a program with the default templates.
func NewProgram(name, exe, testID, benchmark string) *Program {
	return &Program{
		Name:               name,
		Exe:                exe,
		TestID:             testID,
		Benchmark:          benchmark,
		RunCmdTemplate:     DefaultRunCmdTemplate,
		LaunchParallel:     DefaultLaunchParallel,
		SubmitPattern:      DefaultSubmitPattern,
		ExtractCmdTemplate: DefaultExtractCmdTemplate,
		ExtractFmt:         ExtractFmtTable,
		Stems:              filenames.DefaultStems(),
	}
}

// Validate checks settings which cannot be verified field by field.
func (p *Program) Validate() error {
	if p.ExtractFmt != ExtractFmtTable && p.ExtractFmt != ExtractFmtYAML {
		return NewConfigErrorf("unknown extraction format for program %s: %s", p.Name, p.ExtractFmt)
	}
	if p.Verify && p.DataTag != "" {
		return NewConfigErrorf("program %s sets both verify and data_tag", p.Name)
	}
	return nil
}

// TestFilename returns the name of the test output file for a case.
func (p *Program) TestFilename(input, args string) string {
	return filenames.BuildName(p.Stems.Test, p.TestID, input, args)
}

// ErrorFilename returns the name of the error file for a case.
func (p *Program) ErrorFilename(input, args string) string {
	return filenames.BuildName(p.Stems.Error, p.TestID, input, args)
}

// BenchFilename returns the name of the benchmark file for a case.
func (p *Program) BenchFilename(input, args string) string {
	return filenames.BuildName(p.Stems.Benchmark, p.Benchmark, input, args)
}

// RunCmd synthesizes the shell command which runs one case. All filename
// substitutions are escaped for shell safety; the argument string is
// substituted as given.
func (p *Program) RunCmd(input, args string, nprocs int) string {
	cmd := p.RunCmdTemplate
	cmd = strings.ReplaceAll(cmd, placeProgram, ShellQuote(p.Exe))
	if input != "" {
		cmd = strings.ReplaceAll(cmd, placeInput, ShellQuote(input))
	} else {
		cmd = strings.ReplaceAll(cmd, placeInput, "")
	}
	cmd = strings.ReplaceAll(cmd, placeArgs, args)
	cmd = strings.ReplaceAll(cmd, placeOutput, ShellQuote(p.TestFilename(input, args)))
	cmd = strings.ReplaceAll(cmd, placeError, ShellQuote(p.ErrorFilename(input, args)))
	if nprocs > 0 && p.LaunchParallel != "" {
		cmd = fmt.Sprintf("%s %s", p.LaunchParallel, cmd)
	}
	cmd = strings.ReplaceAll(cmd, placeNprocs, strconv.Itoa(nprocs))
	return cmd
}

// ExtractCmds returns the extraction command(s) for a case. In verify mode
// a single command receives both the test and benchmark files and performs
// the whole comparison itself; otherwise one command per file is returned,
// benchmark first.
func (p *Program) ExtractCmds(input, args string) []string {
	cmd := p.ExtractCmdTemplate
	cmd = strings.ReplaceAll(cmd, placeExtract, ShellQuote(p.ExtractProgram))
	cmd = strings.ReplaceAll(cmd, placeArgs, p.ExtractArgs)
	testFile := p.TestFilename(input, args)
	benchFile := p.BenchFilename(input, args)
	if p.Verify {
		cmd = strings.ReplaceAll(cmd, placeTest, ShellQuote(testFile))
		cmd = strings.ReplaceAll(cmd, placeBench, ShellQuote(benchFile))
		return []string{cmd}
	}
	benchCmd := strings.ReplaceAll(cmd, placeFile, ShellQuote(benchFile))
	testCmd := strings.ReplaceAll(cmd, placeFile, ShellQuote(testFile))
	return []string{benchCmd, testCmd}
}
