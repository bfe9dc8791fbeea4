package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/critq/internal/metadata"
)

// Scenario describes one statement and what compiling it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE schema directory, relative to the scenario file.
	// Runs that supply a registry may leave it empty.
	Schema string `yaml:"schema,omitempty"`

	// Naming is the naming strategy for entities loaded from Schema.
	Naming string `yaml:"naming,omitempty"`

	// InlineLiterals skips the literal-to-parameter rewrite.
	InlineLiterals bool `yaml:"inline_literals,omitempty"`

	Statement Statement `yaml:"statement"`

	// Error is the error code building or compiling must fail with.
	Error string `yaml:"error,omitempty"`

	// Assertions check the compiled model.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Expect maps a dialect name to its expected rendering.
	Expect map[string]DialectExpect `yaml:"expect,omitempty"`
}

// DialectExpect is the expected rendering for one dialect.
type DialectExpect struct {
	// Text is the SQL, or the MongoDB command as extended JSON, compared
	// as JSON documents.
	Text string `yaml:"text,omitempty"`

	// Params lists placeholder parameter names in order.
	Params []string `yaml:"params,omitempty"`

	// Error is the error code rendering must fail with.
	Error string `yaml:"error,omitempty"`
}

// Assertion checks one property of the compiled model.
type Assertion struct {
	// Type is one of joins, parameters, criteria or filter.
	Type string `yaml:"type"`

	// Aliases lists join aliases in model order (joins).
	Aliases []string `yaml:"aliases,omitempty"`

	// Values lists parameter values in model order (parameters).
	Values []any `yaml:"values,omitempty"`

	// Operators lists criterion operators in model order (criteria).
	Operators []string `yaml:"operators,omitempty"`

	// Op and Negated describe the top-level WHERE group (filter).
	Op      string `yaml:"op,omitempty"`
	Negated bool   `yaml:"negated,omitempty"`

	// Count is the expected number of joins, parameters or criteria.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertJoins      = "joins"
	AssertParameters = "parameters"
	AssertCriteria   = "criteria"
	AssertFilter     = "filter"
)

// LoadScenario reads and parses a scenario YAML file, resolving Schema
// relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ext := filepath.Ext(path); !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, path)
		}
		return nil
	})
	slices.Sort(files)
	return files, err
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Naming != "" {
		if _, err := metadata.ParseNaming(s.Naming); err != nil {
			return err
		}
	}

	roots := 0
	for _, r := range []string{s.Statement.Query, s.Statement.Update, s.Statement.Delete} {
		if r != "" {
			roots++
		}
	}
	if roots != 1 {
		return fmt.Errorf("statement needs exactly one of query, update or delete")
	}
	if len(s.Statement.Set) > 0 && s.Statement.Update == "" {
		return fmt.Errorf("statement: set is only valid for update")
	}
	if err := validatePredicates("statement.where", s.Statement.Where); err != nil {
		return err
	}
	if err := validatePredicates("statement.having", s.Statement.Having); err != nil {
		return err
	}

	if s.Error == "" && len(s.Expect) == 0 && len(s.Assertions) == 0 {
		return fmt.Errorf("one of error, assertions or expect is required")
	}
	for name, exp := range s.Expect {
		if _, err := ParseDialect(name); err != nil {
			return fmt.Errorf("expect.%s: %w", name, err)
		}
		if exp.Text == "" && exp.Error == "" {
			return fmt.Errorf("expect.%s: text or error is required", name)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validatePredicates(where string, ps []Predicate) error {
	for i, p := range ps {
		at := fmt.Sprintf("%s[%d]", where, i)
		switch p.Op {
		case opAnd, opOr, opNot:
			if len(p.Children) == 0 {
				return fmt.Errorf("%s: %s needs at least one predicate", at, p.Op)
			}
			if err := validatePredicates(at, p.Children); err != nil {
				return err
			}
			continue
		}
		if p.Operands.Path == "" && p.Operands.Func == "" {
			return fmt.Errorf("%s: %s needs a path", at, p.Op)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertJoins:
		if a.Aliases == nil && a.Count == nil {
			return fmt.Errorf("assertions[%d]: aliases or count is required for joins", index)
		}
	case AssertParameters:
		if a.Values == nil && a.Count == nil {
			return fmt.Errorf("assertions[%d]: values or count is required for parameters", index)
		}
	case AssertCriteria:
		if a.Operators == nil && a.Count == nil {
			return fmt.Errorf("assertions[%d]: operators or count is required for criteria", index)
		}
	case AssertFilter:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for filter", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
