package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/overpassql/internal/bridge"
)

func compiled(t *testing.T, query string) (*bridge.RequestHandle, *Result) {
	t.Helper()

	req, err := bridge.Parse(query)
	require.NoError(t, err)
	statements, err := req.CompileStatements("postgres", "", nil)
	require.NoError(t, err)

	result := NewResult()
	result.Statements = statements
	return req, result
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	req, result := compiled(t, "node[amenity=cafe][!disused];out;way[shop];out;")
	result.EscapeCalls = []string{"amenity"}

	errs := EvaluateAssertions(req, result, []Assertion{
		{Type: AssertSQLContains, Text: "(tags->>'amenity') = 'cafe'"},
		{Type: AssertSQLNotContains, Text: "RECURSIVE"},
		{Type: AssertStatementCount, Count: 2},
		{Type: AssertFirstKeys, Keys: []string{"amenity"}},
		{Type: AssertMatches, Tags: map[string]string{"amenity": "cafe"}},
		{Type: AssertMatches, Tags: map[string]string{"amenity": "cafe", "disused": "yes"}, Failing: []string{"disused"}},
		{Type: AssertAllSelectors, Sources: []string{"[amenity=cafe][!disused]", "[shop]"}},
		{Type: AssertSource, Text: req.Source()},
		{Type: AssertEscapeCalls, Inputs: []string{"amenity"}},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "sql_contains",
			query:     "node[amenity=cafe];out;",
			assertion: Assertion{Type: AssertSQLContains, Text: "'bar'"},
			wantErr:   "Expected: SQL containing 'bar'",
		},
		{
			name:      "sql_not_contains",
			query:     "node[amenity=cafe];out;",
			assertion: Assertion{Type: AssertSQLNotContains, Text: "'cafe'"},
			wantErr:   "fragment present",
		},
		{
			name:      "statement_count",
			query:     "node[amenity=cafe];out;",
			assertion: Assertion{Type: AssertStatementCount, Count: 2},
			wantErr:   "Actual: 1 statements",
		},
		{
			name:      "first_keys unconstrained",
			query:     "node(1);out;",
			assertion: Assertion{Type: AssertFirstKeys, Keys: []string{"a"}},
			wantErr:   "constrained: false",
		},
		{
			name:      "first_keys expected none",
			query:     "node[a];out;",
			assertion: Assertion{Type: AssertFirstKeys},
			wantErr:   "no key constraint",
		},
		{
			name:      "first_keys structural",
			query:     "(node[a];);out;",
			assertion: Assertion{Type: AssertFirstKeys},
			wantErr:   "an object query first",
		},
		{
			name:      "matches",
			query:     "node[a=1];out;",
			assertion: Assertion{Type: AssertMatches, Tags: map[string]string{"a": "2"}},
			wantErr:   `Actual: failing ["a"]`,
		},
		{
			name:      "all_selectors",
			query:     "node[a];out;",
			assertion: Assertion{Type: AssertAllSelectors, Sources: []string{"[b]"}},
			wantErr:   `Actual: ["[a]"]`,
		},
		{
			name:      "source",
			query:     "node[a];out;",
			assertion: Assertion{Type: AssertSource, Text: "node[b];"},
			wantErr:   "Assertion failed: source",
		},
		{
			name:      "escape_calls",
			query:     "node[a];out;",
			assertion: Assertion{Type: AssertEscapeCalls, Inputs: []string{"a"}},
			wantErr:   "Actual: []",
		},
		{
			name:      "unknown",
			query:     "node[a];out;",
			assertion: Assertion{Type: "trace_contains"},
			wantErr:   `unknown assertion type "trace_contains"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, result := compiled(t, tt.query)

			errs := EvaluateAssertions(req, result, []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], "assertions[0]: ")
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}

func TestAssertionError_IncludesSQL(t *testing.T) {
	err := &AssertionError{Type: AssertSQLContains, Expected: "x", Actual: "y", SQL: "SELECT 1;"}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: sql_contains")
	assert.Contains(t, msg, "Expected: x")
	assert.Contains(t, msg, "Actual: y")
	assert.Contains(t, msg, "SQL:\nSELECT 1;")
}
