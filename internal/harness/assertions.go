package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/overpassql/internal/bridge"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	SQL      string // Compiled SQL for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.SQL != "" {
		fmt.Fprintf(&buf, "\nSQL:\n%s\n", e.SQL)
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion against a successfully compiled
// request and returns one message per failure.
func EvaluateAssertions(req *bridge.RequestHandle, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(req, result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(req *bridge.RequestHandle, result *Result, a Assertion) error {
	switch a.Type {
	case AssertSQLContains:
		return assertSQLContains(result, a, true)
	case AssertSQLNotContains:
		return assertSQLContains(result, a, false)
	case AssertStatementCount:
		if len(result.Statements) != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d statements", a.Count),
				Actual:   fmt.Sprintf("%d statements", len(result.Statements)),
				SQL:      result.SQL(),
			}
		}
		return nil
	case AssertFirstKeys:
		return assertFirstKeys(req, a)
	case AssertMatches:
		return assertMatches(req, a)
	case AssertAllSelectors:
		return assertAllSelectors(req, a)
	case AssertSource:
		if got := req.Source(); got != a.Text {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%q", a.Text), Actual: fmt.Sprintf("%q", got)}
		}
		return nil
	case AssertEscapeCalls:
		if !sameStrings(result.EscapeCalls, a.Inputs) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%q", a.Inputs),
				Actual:   fmt.Sprintf("%q", result.EscapeCalls),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertSQLContains checks the joined SQL for a fragment.
func assertSQLContains(result *Result, a Assertion, want bool) error {
	sql := result.SQL()
	if strings.Contains(sql, a.Text) == want {
		return nil
	}

	expected, actual := "SQL containing "+a.Text, "fragment not found"
	if !want {
		expected, actual = "SQL without "+a.Text, "fragment present"
	}
	return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, SQL: sql}
}

// assertFirstKeys checks the keys of the first selector list. A nil
// expectation means the list has no key constraint.
func assertFirstKeys(req *bridge.RequestHandle, a Assertion) error {
	sel, err := req.FirstSelectors()
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: "an object query first", Actual: err.Error()}
	}

	keys, ok := sel.Keys()
	if a.Keys == nil {
		if ok {
			return &AssertionError{Type: a.Type, Expected: "no key constraint", Actual: fmt.Sprintf("keys %q", keys)}
		}
		return nil
	}
	if !ok || !sameStrings(keys, a.Keys) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("keys %q", a.Keys), Actual: fmt.Sprintf("keys %q (constrained: %t)", keys, ok)}
	}
	return nil
}

// assertMatches checks the failing keys of the first selector list.
func assertMatches(req *bridge.RequestHandle, a Assertion) error {
	sel, err := req.FirstSelectors()
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: "an object query first", Actual: err.Error()}
	}

	failing, _ := sel.Matches(a.Tags)
	if !sameStrings(failing, a.Failing) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("failing %q for tags %v", a.Failing, a.Tags),
			Actual:   fmt.Sprintf("failing %q", failing),
		}
	}
	return nil
}

// assertAllSelectors checks the canonical source of every selector list.
func assertAllSelectors(req *bridge.RequestHandle, a Assertion) error {
	all := req.AllSelectors()
	sources := make([]string, len(all))
	for i, sel := range all {
		sources[i] = sel.Source()
	}

	if !sameStrings(sources, a.Sources) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%q", a.Sources), Actual: fmt.Sprintf("%q", sources)}
	}
	return nil
}

// sameStrings compares string lists, treating nil and empty as equal.
func sameStrings(got, want []string) bool {
	if len(got) == 0 && len(want) == 0 {
		return true
	}
	return reflect.DeepEqual(got, want)
}
