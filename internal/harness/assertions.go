package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Dialect  string         // Dialect the assertion checked
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Command  *CommandRecord // Translation outcome for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (%s)\n", e.Type, e.Dialect)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Command != nil {
		if e.Command.Error != "" {
			fmt.Fprintf(&buf, "\nTranslation error:\n  %s\n", e.Command.Error)
		} else {
			fmt.Fprintf(&buf, "\nCommand:\n  %s\n", e.Command.Template)
		}
	}
	return buf.String()
}

// assertTemplate checks the command template for a dialect.
func assertTemplate(cmd *CommandRecord, a Assertion) error {
	if cmd.Error == "" && cmd.Template == a.Expect {
		return nil
	}
	actual := cmd.Template
	if cmd.Error != "" {
		actual = "translation failed"
	}
	return &AssertionError{
		Type:     AssertTemplate,
		Dialect:  a.dialect(),
		Expected: a.Expect,
		Actual:   actual,
		Command:  cmd,
	}
}

// assertError checks that translation failed with the expected kind.
func assertError(cmd *CommandRecord, a Assertion) error {
	if cmd.ErrorKind == string(a.Kind) {
		return nil
	}
	actual := "translation succeeded"
	if cmd.Error != "" {
		actual = "error kind " + cmd.ErrorKind
	}
	return &AssertionError{
		Type:     AssertError,
		Dialect:  a.dialect(),
		Expected: "error kind " + string(a.Kind),
		Actual:   actual,
		Command:  cmd,
	}
}

// assertCacheable checks the command's cacheable flag.
func assertCacheable(cmd *CommandRecord, a Assertion) error {
	if cmd.Error == "" && cmd.Cacheable == *a.Cacheable {
		return nil
	}
	return &AssertionError{
		Type:     AssertCacheable,
		Dialect:  a.dialect(),
		Expected: fmt.Sprintf("cacheable=%t", *a.Cacheable),
		Actual:   fmt.Sprintf("cacheable=%t", cmd.Cacheable),
		Command:  cmd,
	}
}

// assertResult compares the executed query result with the expected rows.
func assertResult(result *Result, a Assertion) error {
	var raw any
	if err := a.Rows.Decode(&raw); err != nil {
		return fmt.Errorf("result: decoding expected rows: %w", err)
	}
	expected, err := normalize(raw)
	if err != nil {
		return fmt.Errorf("result: %w", err)
	}
	if result.ExecError == "" && reflect.DeepEqual(expected, result.Rows) {
		return nil
	}
	actual := formatJSON(result.Rows)
	if result.ExecError != "" {
		actual = "execution failed: " + result.ExecError
	}
	return &AssertionError{
		Type:     AssertResult,
		Dialect:  "sqlite",
		Expected: formatJSON(expected),
		Actual:   actual,
		Command:  result.Commands["sqlite"],
	}
}

// assertAffected checks the executed mutation's affected row count.
func assertAffected(result *Result, a Assertion) error {
	if result.ExecError == "" && result.Affected == *a.Count {
		return nil
	}
	actual := fmt.Sprintf("%d row(s)", result.Affected)
	if result.ExecError != "" {
		actual = "execution failed: " + result.ExecError
	}
	return &AssertionError{
		Type:     AssertAffected,
		Dialect:  "sqlite",
		Expected: fmt.Sprintf("%d row(s)", *a.Count),
		Actual:   actual,
		Command:  result.Commands["sqlite"],
	}
}

func formatJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// EvaluateAssertions evaluates all assertions against a scenario result.
// Returns a list of error messages (empty if all pass).
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error
		cmd, ok := result.Commands[assertion.dialect()]
		if !ok {
			cmd = &CommandRecord{Error: "not translated"}
		}

		switch assertion.Type {
		case AssertTemplate:
			err = assertTemplate(cmd, assertion)
		case AssertError:
			err = assertError(cmd, assertion)
		case AssertCacheable:
			err = assertCacheable(cmd, assertion)
		case AssertResult, AssertAffected:
			if !result.Executed {
				err = fmt.Errorf("assertion[%d]: %s requires an executed scenario", i, assertion.Type)
			} else if assertion.Type == AssertResult {
				err = assertResult(result, assertion)
			} else {
				err = assertAffected(result, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
