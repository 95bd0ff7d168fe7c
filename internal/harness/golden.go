package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenBytes is the golden file content for a result: the joined SQL
// followed by a newline.
func GoldenBytes(result *Result) []byte {
	return []byte(result.SQL() + "\n")
}

// RunWithGolden executes a scenario and compares its SQL against a golden
// file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Scenarios that expect an error have no SQL and are not compared.
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if SQL doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if result.ErrorCode == "" {
		AssertGolden(t, scenario.Name, result)
	}
	return result, nil
}

// AssertGolden compares an existing result's SQL against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, GoldenBytes(result))
}
