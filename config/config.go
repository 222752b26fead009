// Package config loads the userconfig and jobconfig files and turns them
// into runnable tests. The userconfig describes the programs under test and
// global options; the jobconfig describes the individual tests and their
// grouping into categories.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/testcode-hq/testcode"
)

// Defaults applied when the userconfig leaves an option unset.
const (
	DefaultDateFmt           = "02012006"
	DefaultDiff              = "diff"
	DefaultAbsoluteTolerance = 1e-10
)

// ToleranceConfig is one named tolerance. The empty name denotes the
// default tolerance applied to fields without an override. Strict defaults
// to true when the key is absent: a tolerance with both thresholds requires
// both to be met unless strict is set to false explicitly.
type ToleranceConfig struct {
	Name     string   `yaml:"name"`
	Absolute *float64 `yaml:"absolute"`
	Relative *float64 `yaml:"relative"`
	Strict   *bool    `yaml:"strict"`
}

// CaseConfig is one (input, args) pair. The input may be a glob pattern,
// expanded relative to the test directory when the tests are built.
type CaseConfig struct {
	Input string `yaml:"input"`
	Args  string `yaml:"args"`
}

// ProgramConfig describes one program under test, plus the default test
// settings inherited by every test using the program.
type ProgramConfig struct {
	Name               string            `yaml:"name"`
	Exe                string            `yaml:"exe"`
	RunCmdTemplate     string            `yaml:"run_cmd_template"`
	LaunchParallel     string            `yaml:"launch_parallel"`
	SubmitTemplate     string            `yaml:"submit_template"`
	SubmitPattern      string            `yaml:"submit_pattern"`
	DataTag            string            `yaml:"data_tag"`
	ExtractCmdTemplate string            `yaml:"extract_cmd_template"`
	ExtractProgram     string            `yaml:"extract_program"`
	ExtractArgs        string            `yaml:"extract_args"`
	ExtractFmt         string            `yaml:"extract_fmt"`
	Verify             bool              `yaml:"verify"`
	VCS                string            `yaml:"vcs"`
	IgnoreFields       []string          `yaml:"ignore_fields"`
	Tolerances         []ToleranceConfig `yaml:"tolerances"`

	// Default test settings.
	InputsArgs []CaseConfig `yaml:"inputs_args"`
	Output     string       `yaml:"output"`
	Nprocs     int          `yaml:"nprocs"`
	MinNprocs  int          `yaml:"min_nprocs"`
	MaxNprocs  int          `yaml:"max_nprocs"`
}

// UserOptions holds the global options from the user section.
type UserOptions struct {
	Benchmark  string            `yaml:"benchmark"`
	DateFmt    string            `yaml:"date_fmt"`
	Diff       string            `yaml:"diff"`
	Tolerances []ToleranceConfig `yaml:"tolerances"`
}

// UserConfig is the top-level structure of the userconfig file.
type UserConfig struct {
	User     UserOptions     `yaml:"user"`
	Programs []ProgramConfig `yaml:"programs"`
}

// TestConfig describes one test in the jobconfig file. Unset fields fall
// back to the defaults of the test's program.
type TestConfig struct {
	Name       string            `yaml:"name"`
	Program    string            `yaml:"program"`
	Path       string            `yaml:"path"`
	InputsArgs []CaseConfig      `yaml:"inputs_args"`
	Output     string            `yaml:"output"`
	Nprocs     *int              `yaml:"nprocs"`
	MinNprocs  *int              `yaml:"min_nprocs"`
	MaxNprocs  *int              `yaml:"max_nprocs"`
	Tolerances []ToleranceConfig `yaml:"tolerances"`
}

// CategoryConfig names a group of tests. Contents may refer to tests or to
// other categories.
type CategoryConfig struct {
	Name     string   `yaml:"name"`
	Contents []string `yaml:"contents"`
}

// JobConfig is the top-level structure of the jobconfig file.
type JobConfig struct {
	Categories []CategoryConfig `yaml:"categories"`
	Tests      []TestConfig     `yaml:"tests"`
}

// LoadUserConfig reads and validates the userconfig file. Unknown keys are
// a configuration error so typos do not silently fall back to defaults.
func LoadUserConfig(path string) (*UserConfig, error) {
	var cfg UserConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, testcode.NewConfigErrorf("failed to load userconfig %s: %v", path, err)
	}
	if len(cfg.Programs) == 0 {
		return nil, testcode.NewConfigErrorf("no test programs specified in userconfig %s", path)
	}
	for i, prog := range cfg.Programs {
		if prog.Name == "" {
			return nil, testcode.NewConfigErrorf("program %d in userconfig has no name", i)
		}
		if prog.Exe == "" {
			return nil, testcode.NewConfigErrorf("program %s has no exe", prog.Name)
		}
	}
	if cfg.User.DateFmt == "" {
		cfg.User.DateFmt = DefaultDateFmt
	}
	if cfg.User.Diff == "" {
		cfg.User.Diff = DefaultDiff
	}
	if !hasDefaultTolerance(cfg.User.Tolerances) {
		def := DefaultAbsoluteTolerance
		cfg.User.Tolerances = append(cfg.User.Tolerances, ToleranceConfig{Absolute: &def})
	}
	return &cfg, nil
}

// LoadJobConfig reads and validates the jobconfig file. A test's name
// doubles as its directory when no explicit path is given.
func LoadJobConfig(path string) (*JobConfig, error) {
	var cfg JobConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, testcode.NewConfigErrorf("failed to load jobconfig %s: %v", path, err)
	}
	if len(cfg.Tests) == 0 {
		return nil, testcode.NewConfigErrorf("no tests specified in jobconfig %s", path)
	}
	seen := make(map[string]bool, len(cfg.Tests))
	for i := range cfg.Tests {
		t := &cfg.Tests[i]
		if t.Name == "" {
			return nil, testcode.NewConfigErrorf("test %d in jobconfig has no name", i)
		}
		if seen[t.Name] {
			return nil, testcode.NewConfigErrorf("duplicate test name in jobconfig: %s", t.Name)
		}
		seen[t.Name] = true
		if t.Path == "" {
			t.Path = t.Name
		}
	}
	for _, cat := range cfg.Categories {
		if cat.Name == "" {
			return nil, testcode.NewConfigErrorf("category with no name in jobconfig %s", path)
		}
	}
	return &cfg, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// SaveUserBenchmark rewrites the benchmark id in the userconfig file so
// that later comparisons pick up newly created benchmarks. The rest of the
// document, comments included, is preserved.
func SaveUserBenchmark(path, benchmark string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return testcode.NewConfigErrorf("failed to load userconfig %s: %v", path, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return testcode.NewConfigErrorf("failed to parse userconfig %s: %v", path, err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return testcode.NewConfigErrorf("userconfig %s is not a mapping", path)
	}
	root := doc.Content[0]
	user := mappingValue(root, "user")
	if user == nil {
		user = &yaml.Node{Kind: yaml.MappingNode}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "user"}, user)
	}
	if bench := mappingValue(user, "benchmark"); bench != nil {
		bench.SetString(benchmark)
	} else {
		user.Content = append(user.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "benchmark"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: benchmark})
	}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return testcode.NewConfigErrorf("failed to encode userconfig %s: %v", path, err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return testcode.NewConfigErrorf("failed to write userconfig %s: %v", path, err)
	}
	return nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func hasDefaultTolerance(tols []ToleranceConfig) bool {
	for _, tol := range tols {
		if tol.Name == "" {
			return true
		}
	}
	return false
}
