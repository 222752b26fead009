package flags

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		for _, name := range flag.Names() {
			if _, ok := seenCLI[name]; ok {
				t.Errorf("duplicate flag %s", name)
				continue
			}
			seenCLI[name] = struct{}{}
		}
	}
}

// TestEnvVarPrefix asserts that every env var carries the TESTCODE_ prefix.
func TestEnvVarPrefix(t *testing.T) {
	for _, flag := range Flags {
		envFlag, ok := flag.(interface {
			GetEnvVars() []string
		})
		if !ok {
			continue
		}
		for _, envVar := range envFlag.GetEnvVars() {
			require.True(t, strings.HasPrefix(envVar, EnvVarPrefix+"_"),
				"env var %s does not have prefix %s_", envVar, EnvVarPrefix)
		}
	}
}

// TestNoRequiredFlags asserts that every flag has a usable default so bare
// invocations work in a directory holding the standard config files.
func TestNoRequiredFlags(t *testing.T) {
	for _, flag := range Flags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}
