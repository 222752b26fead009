package config

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testcode-hq/testcode"
	"github.com/testcode-hq/testcode/dirlock"
	"github.com/testcode-hq/testcode/filenames"
	"github.com/testcode-hq/testcode/validation"
)

// Reserved category names.
const (
	CategoryAll     = "_all_"
	CategoryDefault = "_default_"
)

// BuildOptions carries the command-line overrides applied while turning the
// parsed configuration into tests.
type BuildOptions struct {
	// TestID labels this run's output files. Empty generates a fresh
	// date-based id unique across all test directories, or recovers the
	// most recent run's id when UseLatestID is set.
	TestID      string
	UseLatestID bool
	// Benchmark overrides the userconfig benchmark id.
	Benchmark string
	// Executable overrides every program's exe.
	Executable string
	// Nprocs overrides every test's processor count when positive.
	Nprocs int
	// Stems overrides the filename stem triple. The zero value selects the
	// standard stems.
	Stems filenames.Stems

	QueuePollInterval time.Duration

	Lock     *dirlock.Lock
	Reporter *testcode.Reporter
	Log      log.Logger
}

// Suite is the runnable form of the two config files: built tests in
// jobconfig order, the programs they use and the category groupings.
type Suite struct {
	Options    UserOptions
	TestID     string
	Programs   map[string]*testcode.Program
	ProgramVCS map[string]string
	Tests      []*testcode.Test

	categories  map[string][]string
	testsByName map[string]*testcode.Test
}

// Build resolves the parsed configuration into a Suite. Test directories
// are resolved relative to the jobconfig file; input globs are expanded
// within each test directory, skipping files that use the output or
// benchmark naming convention.
func Build(user *UserConfig, job *JobConfig, jobConfigPath string, opts BuildOptions) (*Suite, error) {
	if opts.Log == nil {
		opts.Log = log.New()
	}
	stems := opts.Stems
	if stems == (filenames.Stems{}) {
		stems = filenames.DefaultStems()
	}
	benchmark := opts.Benchmark
	if benchmark == "" {
		benchmark = user.User.Benchmark
	}

	configDir := filepath.Dir(jobConfigPath)
	dirs := make([]string, 0, len(job.Tests))
	for _, tc := range job.Tests {
		dirs = append(dirs, filepath.Join(configDir, tc.Path))
	}
	testID := opts.TestID
	if testID == "" {
		if opts.UseLatestID {
			id, ok := filenames.MostRecentID(dirs, stems.Test)
			if !ok {
				return nil, testcode.NewConfigErrorf("no previous test run found in the test directories")
			}
			testID = id
		} else {
			testID = filenames.UniqueID(dirs, stems.Test, time.Now().Format(user.User.DateFmt))
		}
	}

	userDefault, userTols, err := buildTolerances(nil, nil, user.User.Tolerances)
	if err != nil {
		return nil, err
	}

	s := &Suite{
		Options:     user.User,
		TestID:      testID,
		Programs:    make(map[string]*testcode.Program, len(user.Programs)),
		ProgramVCS:  make(map[string]string, len(user.Programs)),
		categories:  make(map[string][]string, len(job.Categories)),
		testsByName: make(map[string]*testcode.Test, len(job.Tests)),
	}

	progDefaults := make(map[string]*ProgramConfig, len(user.Programs))
	progDefaultTol := make(map[string]*validation.Tolerance, len(user.Programs))
	progTols := make(map[string]map[string]*validation.Tolerance, len(user.Programs))
	for i := range user.Programs {
		pc := &user.Programs[i]
		exe := pc.Exe
		if opts.Executable != "" {
			exe = opts.Executable
		}
		prog := testcode.NewProgram(pc.Name, exe, testID, benchmark)
		applyProgramConfig(prog, pc)
		prog.Stems = stems
		if err := prog.Validate(); err != nil {
			return nil, err
		}
		defTol, tols, err := buildTolerances(userDefault, userTols, pc.Tolerances)
		if err != nil {
			return nil, err
		}
		s.Programs[pc.Name] = prog
		s.ProgramVCS[pc.Name] = pc.VCS
		progDefaults[pc.Name] = pc
		progDefaultTol[pc.Name] = defTol
		progTols[pc.Name] = tols
	}
	defaultProgram := user.Programs[0].Name

	for i := range job.Tests {
		tc := &job.Tests[i]
		progName := tc.Program
		if progName == "" {
			progName = defaultProgram
		}
		prog, ok := s.Programs[progName]
		if !ok {
			return nil, testcode.NewConfigErrorf("test %s uses unknown program: %s", tc.Name, progName)
		}
		pc := progDefaults[progName]

		test := testcode.NewTest(prog, filepath.Join(configDir, tc.Path), opts.Lock, opts.Reporter, opts.Log)
		test.QueuePollInterval = opts.QueuePollInterval

		defTol, tols, err := buildTolerances(progDefaultTol[progName], progTols[progName], tc.Tolerances)
		if err != nil {
			return nil, err
		}
		test.DefaultTolerance = defTol
		test.Tolerances = tols

		cases := tc.InputsArgs
		if len(cases) == 0 {
			cases = pc.InputsArgs
		}
		test.InputsArgs = expandCases(test.Path, cases, stems)

		test.Output = tc.Output
		if test.Output == "" {
			test.Output = pc.Output
		}
		test.Nprocs = intOr(tc.Nprocs, pc.Nprocs)
		test.MinNprocs = intOr(tc.MinNprocs, pc.MinNprocs)
		test.MaxNprocs = intOr(tc.MaxNprocs, pc.MaxNprocs)
		if opts.Nprocs > 0 {
			test.Nprocs = opts.Nprocs
		}

		s.Tests = append(s.Tests, test)
		s.testsByName[tc.Name] = test
	}

	for _, cat := range job.Categories {
		s.categories[cat.Name] = cat.Contents
	}
	return s, nil
}

// Dirs returns every test directory, in test order.
func (s *Suite) Dirs() []string {
	dirs := make([]string, 0, len(s.Tests))
	for _, t := range s.Tests {
		dirs = append(dirs, t.Path)
	}
	return dirs
}

// Select resolves the requested categories into tests, preserving jobconfig
// order and dropping duplicates. The _all_ category holds every test; the
// _default_ category falls back to _all_ unless defined in the jobconfig.
func (s *Suite) Select(categories []string) ([]*testcode.Test, error) {
	selected := make(map[*testcode.Test]bool)
	for _, name := range categories {
		if err := s.selectInto(name, selected, make(map[string]bool)); err != nil {
			return nil, err
		}
	}
	tests := make([]*testcode.Test, 0, len(selected))
	for _, t := range s.Tests {
		if selected[t] {
			tests = append(tests, t)
		}
	}
	return tests, nil
}

func (s *Suite) selectInto(name string, selected map[*testcode.Test]bool, visiting map[string]bool) error {
	if name == CategoryAll {
		for _, t := range s.Tests {
			selected[t] = true
		}
		return nil
	}
	if name == CategoryDefault {
		if _, ok := s.categories[name]; !ok {
			return s.selectInto(CategoryAll, selected, visiting)
		}
	}
	if visiting[name] {
		return testcode.NewConfigErrorf("circular category definition: %s", name)
	}
	if contents, ok := s.categories[name]; ok {
		visiting[name] = true
		defer delete(visiting, name)
		for _, member := range contents {
			if err := s.selectInto(member, selected, visiting); err != nil {
				return err
			}
		}
		return nil
	}
	if t, ok := s.testsByName[name]; ok {
		selected[t] = true
		return nil
	}
	return testcode.NewConfigErrorf("unknown test or category: %s", name)
}

func applyProgramConfig(prog *testcode.Program, pc *ProgramConfig) {
	if pc.RunCmdTemplate != "" {
		prog.RunCmdTemplate = pc.RunCmdTemplate
	}
	if pc.LaunchParallel != "" {
		prog.LaunchParallel = pc.LaunchParallel
	}
	if pc.SubmitTemplate != "" {
		prog.SubmitTemplate = pc.SubmitTemplate
	}
	if pc.SubmitPattern != "" {
		prog.SubmitPattern = pc.SubmitPattern
	}
	if pc.DataTag != "" {
		prog.DataTag = pc.DataTag
	}
	if pc.ExtractCmdTemplate != "" {
		prog.ExtractCmdTemplate = pc.ExtractCmdTemplate
	}
	if pc.ExtractProgram != "" {
		prog.ExtractProgram = pc.ExtractProgram
	}
	if pc.ExtractArgs != "" {
		prog.ExtractArgs = pc.ExtractArgs
	}
	if pc.ExtractFmt != "" {
		prog.ExtractFmt = pc.ExtractFmt
	}
	prog.Verify = pc.Verify
	prog.IgnoreFields = pc.IgnoreFields
	if pc.Verify && prog.ExtractCmdTemplate == testcode.DefaultExtractCmdTemplate {
		prog.ExtractCmdTemplate = testcode.DefaultVerifyCmdTemplate
	}
}

// buildTolerances layers override tolerances on top of an inherited map.
// The returned map is a copy; inherited maps are never mutated.
func buildTolerances(baseDefault *validation.Tolerance, base map[string]*validation.Tolerance,
	overrides []ToleranceConfig) (*validation.Tolerance, map[string]*validation.Tolerance, error) {

	tols := make(map[string]*validation.Tolerance, len(base)+len(overrides))
	for name, tol := range base {
		tols[name] = tol
	}
	def := baseDefault
	for _, tc := range overrides {
		tol, err := validation.New(tc.Absolute, tc.Relative, boolOr(tc.Strict, true))
		if err != nil {
			return nil, nil, testcode.NewConfigErrorf("tolerance %q: %v", tc.Name, err)
		}
		if tc.Name == "" {
			def = tol
			continue
		}
		tols[tc.Name] = tol
	}
	return def, tols, nil
}

// expandCases expands glob patterns in the case inputs relative to the test
// directory. Files using the test or benchmark naming convention are never
// treated as inputs. A pattern with no matches is kept verbatim so the
// missing input is reported when the case runs.
func expandCases(dir string, cases []CaseConfig, stems filenames.Stems) []testcode.InputArgs {
	if len(cases) == 0 {
		return []testcode.InputArgs{{}}
	}
	expanded := make([]testcode.InputArgs, 0, len(cases))
	for _, ca := range cases {
		if ca.Input == "" {
			expanded = append(expanded, testcode.InputArgs{Args: ca.Args})
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, ca.Input))
		if err != nil || len(matches) == 0 {
			expanded = append(expanded, testcode.InputArgs{Input: ca.Input, Args: ca.Args})
			continue
		}
		sort.Strings(matches)
		for _, match := range matches {
			base := filepath.Base(match)
			if isRunFile(base, stems) {
				continue
			}
			expanded = append(expanded, testcode.InputArgs{Input: base, Args: ca.Args})
		}
	}
	return expanded
}

func isRunFile(name string, stems filenames.Stems) bool {
	for _, stem := range []string{stems.Test, stems.Error, stems.Benchmark} {
		if strings.HasPrefix(name, stem+".") {
			return true
		}
	}
	return false
}

func intOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

func boolOr(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}
