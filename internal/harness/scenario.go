package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orq/internal/querysql"
	"github.com/roach88/orq/internal/translate"
)

// Scenario defines a translation conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the CUE model directory. Empty selects the library fixture.
	// Relative paths are resolved against the scenario file.
	Model string `yaml:"model,omitempty"`

	// Setup lists SQL scripts run before execution, relative to the
	// scenario file.
	Setup []string `yaml:"setup,omitempty"`

	// Query is the query document.
	Query yaml.Node `yaml:"query"`

	// Args overrides argument values of the query document.
	Args map[string]string `yaml:"args,omitempty"`

	// Assertions validate the translated commands and execution results.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates one aspect of a scenario's outcome.
type Assertion struct {
	// Type is one of template, error, cacheable, result, affected.
	Type string `yaml:"type"`

	// Dialect selects the command checked by template, error and
	// cacheable. Default: sqlite.
	Dialect string `yaml:"dialect,omitempty"`

	// Expect is the expected template (template).
	Expect string `yaml:"expect,omitempty"`

	// Kind is the expected translation error kind (error).
	Kind translate.Kind `yaml:"kind,omitempty"`

	// Cacheable is the expected cacheable flag (cacheable).
	Cacheable *bool `yaml:"cacheable,omitempty"`

	// Rows is the expected query result (result).
	Rows yaml.Node `yaml:"rows,omitempty"`

	// Count is the expected affected row count (affected).
	Count *int64 `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTemplate  = "template"
	AssertError     = "error"
	AssertCacheable = "cacheable"
	AssertResult    = "result"
	AssertAffected  = "affected"
)

// dialect returns the assertion's dialect or the default.
func (a *Assertion) dialect() string {
	if a.Dialect == "" {
		return "sqlite"
	}
	return a.Dialect
}

// executes reports whether the scenario must run against a database.
func (s *Scenario) executes() bool {
	for _, a := range s.Assertions {
		if a.Type == AssertResult || a.Type == AssertAffected {
			return true
		}
	}
	return false
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) {
		scenario.Model = filepath.Join(base, scenario.Model)
	}
	for i, script := range scenario.Setup {
		if !filepath.IsAbs(script) {
			scenario.Setup[i] = filepath.Join(base, script)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Query.Kind == 0 {
		return fmt.Errorf("query is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for _, script := range s.Setup {
		if _, err := os.Stat(script); os.IsNotExist(err) {
			return fmt.Errorf("setup script not found: %s", script)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if _, err := querysql.Lookup(a.dialect()); err != nil {
		return fmt.Errorf("assertions[%d]: %w", index, err)
	}

	switch a.Type {
	case AssertTemplate:
		if a.Expect == "" {
			return fmt.Errorf("assertions[%d]: expect is required for template", index)
		}
	case AssertError:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for error", index)
		}
	case AssertCacheable:
		if a.Cacheable == nil {
			return fmt.Errorf("assertions[%d]: cacheable is required for cacheable", index)
		}
	case AssertResult:
		if a.Rows.Kind == 0 {
			return fmt.Errorf("assertions[%d]: rows is required for result", index)
		}
	case AssertAffected:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for affected", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Dialect != "" && (a.Type == AssertResult || a.Type == AssertAffected) {
		return fmt.Errorf("assertions[%d]: %s assertions run on sqlite only", index, a.Type)
	}
	return nil
}
