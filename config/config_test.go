package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testcode-hq/testcode"
)

const userYAML = `
user:
  benchmark: dd7f2a
  tolerances:
    - name: ""
      absolute: 1.0e-6
programs:
  - name: mcprog
    exe: bin/mc.x
    data_tag: DVAL
    launch_parallel: "mpirun -np tc.nprocs"
    tolerances:
      - name: energy
        absolute: 1.0e-10
        relative: 1.0e-8
  - name: dmcprog
    exe: bin/dmc.x
    verify: true
    extract_program: bin/verify.sh
`

const jobYAML = `
categories:
  - name: quick
    contents: [dimer]
  - name: _default_
    contents: [quick, trimer]
tests:
  - name: dimer
    nprocs: 2
    tolerances:
      - name: time
        absolute: 0.5
  - name: trimer
    program: dmcprog
    path: systems/trimer
  - name: slow
    min_nprocs: 8
`

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loadSuite(t *testing.T, opts BuildOptions) (*Suite, string) {
	t.Helper()
	dir := t.TempDir()
	user, err := LoadUserConfig(writeConfig(t, dir, "userconfig.yaml", userYAML))
	require.NoError(t, err)
	jobPath := writeConfig(t, dir, "jobconfig.yaml", jobYAML)
	job, err := LoadJobConfig(jobPath)
	require.NoError(t, err)
	suite, err := Build(user, job, jobPath, opts)
	require.NoError(t, err)
	return suite, dir
}

func TestSaveUserBenchmarkRewritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "userconfig.yaml", `# production config
user:
  benchmark: dd7f2a
  diff: vimdiff
programs:
  - name: prog
    exe: prog.x
`)
	require.NoError(t, SaveUserBenchmark(path, "ab12cd"))

	user, err := LoadUserConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ab12cd", user.User.Benchmark)
	assert.Equal(t, "vimdiff", user.User.Diff)
	require.Len(t, user.Programs, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# production config")
}

func TestSaveUserBenchmarkInsertsMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "userconfig.yaml", `
programs:
  - name: prog
    exe: prog.x
`)
	require.NoError(t, SaveUserBenchmark(path, "ab12cd"))

	user, err := LoadUserConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ab12cd", user.User.Benchmark)
}

func TestLoadUserConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	user, err := LoadUserConfig(writeConfig(t, dir, "userconfig.yaml", `
programs:
  - name: prog
    exe: prog.x
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultDateFmt, user.User.DateFmt)
	assert.Equal(t, DefaultDiff, user.User.Diff)
	require.Len(t, user.User.Tolerances, 1)
	assert.Equal(t, DefaultAbsoluteTolerance, *user.User.Tolerances[0].Absolute)
	assert.Nil(t, user.User.Tolerances[0].Relative)
}

func TestLoadUserConfigUnknownKeyRejected(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadUserConfig(writeConfig(t, dir, "userconfig.yaml", `
programs:
  - name: prog
    exe: prog.x
    run_command: "typo"
`))
	require.Error(t, err)
	assert.True(t, testcode.IsConfigError(err))
}

func TestLoadUserConfigRequiresPrograms(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadUserConfig(writeConfig(t, dir, "userconfig.yaml", "user:\n  diff: diff\n"))
	require.Error(t, err)
	assert.True(t, testcode.IsConfigError(err))
}

func TestLoadJobConfigValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadJobConfig(writeConfig(t, dir, "a.yaml", "tests: []\n"))
	assert.True(t, testcode.IsConfigError(err))

	_, err = LoadJobConfig(writeConfig(t, dir, "b.yaml", `
tests:
  - name: dimer
  - name: dimer
`))
	assert.True(t, testcode.IsConfigError(err))
}

func TestBuildResolvesProgramsAndPaths(t *testing.T) {
	suite, dir := loadSuite(t, BuildOptions{TestID: "id1"})

	require.Len(t, suite.Tests, 3)
	dimer, trimer, slow := suite.Tests[0], suite.Tests[1], suite.Tests[2]

	assert.Equal(t, filepath.Join(dir, "dimer"), dimer.Path)
	assert.Equal(t, filepath.Join(dir, "systems/trimer"), trimer.Path)

	// dimer falls back to the first program; trimer names its own.
	assert.Same(t, suite.Programs["mcprog"], dimer.Program)
	assert.Same(t, suite.Programs["dmcprog"], trimer.Program)

	assert.Equal(t, "bin/mc.x", dimer.Program.Exe)
	assert.Equal(t, "dd7f2a", dimer.Program.Benchmark)
	assert.Equal(t, "id1", dimer.Program.TestID)
	assert.Equal(t, 2, dimer.Nprocs)
	assert.Equal(t, 8, slow.MinNprocs)

	// Verify mode picks up the verify command template automatically.
	assert.True(t, trimer.Program.Verify)
	assert.Equal(t, testcode.DefaultVerifyCmdTemplate, trimer.Program.ExtractCmdTemplate)
}

func TestBuildLayersTolerances(t *testing.T) {
	suite, _ := loadSuite(t, BuildOptions{TestID: "id1"})
	dimer := suite.Tests[0]

	// User default applies where no override exists.
	require.NotNil(t, dimer.DefaultTolerance)
	assert.Equal(t, 1e-6, *dimer.DefaultTolerance.Absolute)

	// Program-level override survives into the test.
	energy := dimer.Tolerances["energy"]
	require.NotNil(t, energy)
	assert.Equal(t, 1e-10, *energy.Absolute)
	assert.Equal(t, 1e-8, *energy.Relative)

	// Test-level override is layered on top, without leaking into the
	// sibling test using the same program.
	require.NotNil(t, dimer.Tolerances["time"])
	assert.Nil(t, suite.Tests[2].Tolerances["time"])
}

func TestBuildTolerancesDefaultStrict(t *testing.T) {
	suite, _ := loadSuite(t, BuildOptions{TestID: "id1"})
	dimer := suite.Tests[0]

	// Omitting the strict key means both configured thresholds must be met:
	// a single passing check is not enough.
	energy := dimer.Tolerances["energy"]
	require.NotNil(t, energy)
	assert.True(t, energy.Strict)
}

func TestBuildTolerancesStrictFalse(t *testing.T) {
	dir := t.TempDir()
	user, err := LoadUserConfig(writeConfig(t, dir, "userconfig.yaml", `
programs:
  - name: prog
    exe: prog.x
    tolerances:
      - name: energy
        absolute: 1.0e-10
        relative: 1.0e-3
        strict: false
`))
	require.NoError(t, err)
	jobPath := writeConfig(t, dir, "jobconfig.yaml", `
tests:
  - name: dimer
`)
	job, err := LoadJobConfig(jobPath)
	require.NoError(t, err)
	suite, err := Build(user, job, jobPath, BuildOptions{TestID: "id1"})
	require.NoError(t, err)

	energy := suite.Tests[0].Tolerances["energy"]
	require.NotNil(t, energy)
	assert.False(t, energy.Strict)
}

func TestBuildOverrides(t *testing.T) {
	suite, _ := loadSuite(t, BuildOptions{TestID: "id1", Benchmark: "override", Executable: "/usr/bin/other", Nprocs: 16})
	for _, test := range suite.Tests {
		assert.Equal(t, "override", test.Program.Benchmark)
		assert.Equal(t, "/usr/bin/other", test.Program.Exe)
		assert.Equal(t, 16, test.Nprocs)
	}
}

func TestBuildGeneratesUniqueTestID(t *testing.T) {
	suite, _ := loadSuite(t, BuildOptions{})
	assert.NotEmpty(t, suite.Tests[0].Program.TestID)
}

func TestBuildExpandsInputGlobs(t *testing.T) {
	dir := t.TempDir()
	testDir := filepath.Join(dir, "dimer")
	require.NoError(t, os.MkdirAll(testDir, 0o755))
	for _, name := range []string{"a.inp", "b.inp", "test.out.old.inp=a.inp", "benchmark.out.dd7f2a.inp=b.inp"} {
		require.NoError(t, os.WriteFile(filepath.Join(testDir, name), nil, 0o644))
	}

	user, err := LoadUserConfig(writeConfig(t, dir, "userconfig.yaml", userYAML))
	require.NoError(t, err)
	jobPath := writeConfig(t, dir, "jobconfig.yaml", `
tests:
  - name: dimer
    inputs_args:
      - input: "*.inp"
        args: "-v"
`)
	job, err := LoadJobConfig(jobPath)
	require.NoError(t, err)
	suite, err := Build(user, job, jobPath, BuildOptions{TestID: "id1"})
	require.NoError(t, err)

	assert.Equal(t, []testcode.InputArgs{
		{Input: "a.inp", Args: "-v"},
		{Input: "b.inp", Args: "-v"},
	}, suite.Tests[0].InputsArgs)
}

func TestBuildKeepsUnmatchedGlobVerbatim(t *testing.T) {
	dir := t.TempDir()
	user, err := LoadUserConfig(writeConfig(t, dir, "userconfig.yaml", userYAML))
	require.NoError(t, err)
	jobPath := writeConfig(t, dir, "jobconfig.yaml", `
tests:
  - name: dimer
    inputs_args:
      - input: missing.inp
`)
	job, err := LoadJobConfig(jobPath)
	require.NoError(t, err)
	built, err := Build(user, job, jobPath, BuildOptions{TestID: "id1"})
	require.NoError(t, err)
	assert.Equal(t, []testcode.InputArgs{{Input: "missing.inp"}}, built.Tests[0].InputsArgs)
}

func TestBuildUseLatestID(t *testing.T) {
	dir := t.TempDir()
	testDir := filepath.Join(dir, "dimer")
	require.NoError(t, os.MkdirAll(testDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(testDir, "test.out.15052012"), nil, 0o644))

	user, err := LoadUserConfig(writeConfig(t, dir, "userconfig.yaml", userYAML))
	require.NoError(t, err)
	jobPath := writeConfig(t, dir, "jobconfig.yaml", "tests:\n  - name: dimer\n")
	job, err := LoadJobConfig(jobPath)
	require.NoError(t, err)

	suite, err := Build(user, job, jobPath, BuildOptions{UseLatestID: true})
	require.NoError(t, err)
	assert.Equal(t, "15052012", suite.TestID)
	assert.Equal(t, "15052012", suite.Tests[0].Program.TestID)
}

func TestBuildUseLatestIDWithoutPriorRun(t *testing.T) {
	dir := t.TempDir()
	user, err := LoadUserConfig(writeConfig(t, dir, "userconfig.yaml", userYAML))
	require.NoError(t, err)
	jobPath := writeConfig(t, dir, "jobconfig.yaml", "tests:\n  - name: dimer\n")
	job, err := LoadJobConfig(jobPath)
	require.NoError(t, err)

	_, err = Build(user, job, jobPath, BuildOptions{UseLatestID: true})
	require.Error(t, err)
	assert.True(t, testcode.IsConfigError(err))
}

func TestSelectCategories(t *testing.T) {
	suite, _ := loadSuite(t, BuildOptions{TestID: "id1"})

	all, err := suite.Select([]string{CategoryAll})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// _default_ is defined in the jobconfig and expands recursively.
	def, err := suite.Select([]string{CategoryDefault})
	require.NoError(t, err)
	require.Len(t, def, 2)
	assert.Equal(t, suite.Tests[0], def[0])
	assert.Equal(t, suite.Tests[1], def[1])

	// Selecting a test by name, with duplicates collapsed.
	named, err := suite.Select([]string{"quick", "dimer"})
	require.NoError(t, err)
	assert.Len(t, named, 1)

	_, err = suite.Select([]string{"nonesuch"})
	assert.True(t, testcode.IsConfigError(err))
}

func TestSelectDefaultFallsBackToAll(t *testing.T) {
	dir := t.TempDir()
	user, err := LoadUserConfig(writeConfig(t, dir, "userconfig.yaml", userYAML))
	require.NoError(t, err)
	jobPath := writeConfig(t, dir, "jobconfig.yaml", "tests:\n  - name: dimer\n")
	job, err := LoadJobConfig(jobPath)
	require.NoError(t, err)
	suite, err := Build(user, job, jobPath, BuildOptions{TestID: "id1"})
	require.NoError(t, err)

	def, err := suite.Select([]string{CategoryDefault})
	require.NoError(t, err)
	assert.Len(t, def, 1)
}

func TestSelectCircularCategory(t *testing.T) {
	dir := t.TempDir()
	user, err := LoadUserConfig(writeConfig(t, dir, "userconfig.yaml", userYAML))
	require.NoError(t, err)
	jobPath := writeConfig(t, dir, "jobconfig.yaml", `
categories:
  - name: a
    contents: [b]
  - name: b
    contents: [a]
tests:
  - name: dimer
`)
	job, err := LoadJobConfig(jobPath)
	require.NoError(t, err)
	suite, err := Build(user, job, jobPath, BuildOptions{TestID: "id1"})
	require.NoError(t, err)

	_, err = suite.Select([]string{"a"})
	require.Error(t, err)
	assert.True(t, testcode.IsConfigError(err))
}
