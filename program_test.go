package testcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "''", ShellQuote(""))
	assert.Equal(t, "test.out.15052012", ShellQuote("test.out.15052012"))
	assert.Equal(t, "/usr/bin/prog", ShellQuote("/usr/bin/prog"))
	assert.Equal(t, "'my prog'", ShellQuote("my prog"))
	assert.Equal(t, `'it'"'"'s'`, ShellQuote("it's"))
}

func TestRunCmdSubstitution(t *testing.T) {
	p := NewProgram("prog", "/opt/bin/prog", "15052012", "abc123")
	cmd := p.RunCmd("in.dat", "-n 2", 0)
	assert.Equal(t,
		"/opt/bin/prog -n 2 in.dat > test.out.15052012.inp=in.dat.args=-n_2 2> test.err.15052012.inp=in.dat.args=-n_2",
		cmd)
}

func TestRunCmdEmptyInputAndArgs(t *testing.T) {
	p := NewProgram("prog", "prog", "id", "bench")
	cmd := p.RunCmd("", "", 0)
	assert.Equal(t, "prog   > test.out.id 2> test.err.id", cmd)
}

func TestRunCmdParallelLaunch(t *testing.T) {
	p := NewProgram("prog", "prog", "id", "bench")
	cmd := p.RunCmd("in", "", 4)
	assert.Equal(t, "mpirun -np 4 prog  in > test.out.id.inp=in 2> test.err.id.inp=in", cmd)

	p.LaunchParallel = ""
	cmd = p.RunCmd("in", "", 4)
	assert.NotContains(t, cmd, "mpirun")
}

func TestRunCmdQuotesUnsafeNames(t *testing.T) {
	p := NewProgram("prog", "/opt/my progs/prog", "id", "bench")
	cmd := p.RunCmd("input file", "", 0)
	assert.Contains(t, cmd, "'/opt/my progs/prog'")
	assert.Contains(t, cmd, "'input file'")
}

func TestExtractCmds(t *testing.T) {
	p := NewProgram("prog", "prog", "id", "bench")
	p.ExtractProgram = "extract.sh"
	p.ExtractArgs = "-q"

	cmds := p.ExtractCmds("in", "")
	require.Len(t, cmds, 2)
	assert.Equal(t, "extract.sh -q benchmark.out.bench.inp=in", cmds[0])
	assert.Equal(t, "extract.sh -q test.out.id.inp=in", cmds[1])
}

func TestExtractCmdsVerify(t *testing.T) {
	p := NewProgram("prog", "prog", "id", "bench")
	p.Verify = true
	p.ExtractProgram = "verify.sh"
	p.ExtractCmdTemplate = DefaultVerifyCmdTemplate

	cmds := p.ExtractCmds("in", "")
	require.Len(t, cmds, 1)
	assert.Equal(t, "verify.sh  test.out.id.inp=in benchmark.out.bench.inp=in", cmds[0])
}

func TestProgramValidate(t *testing.T) {
	p := NewProgram("prog", "prog", "id", "bench")
	require.NoError(t, p.Validate())

	p.ExtractFmt = "csv"
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	p.ExtractFmt = ExtractFmtYAML
	p.Verify = true
	p.DataTag = "DVAL"
	assert.Error(t, p.Validate())
}

func TestErrorPredicates(t *testing.T) {
	runErr := NewRunErrorf("boom")
	assert.True(t, IsRunError(runErr))
	assert.False(t, IsConfigError(runErr))

	cfgErr := NewConfigErrorf("bad setting")
	assert.True(t, IsConfigError(cfgErr))
	assert.False(t, IsRunError(cfgErr))
}
