package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/overpassql/internal/dialect"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Query is the Overpass QL text to parse.
	Query string `yaml:"query"`

	// Dialect is the SQL dialect to compile for. Defaults to postgres.
	// Unknown names are allowed so scenarios can expect UNSUPPORTED_DIALECT.
	Dialect string `yaml:"dialect,omitempty"`

	// SRID is the target spatial reference id. Empty means the default.
	SRID string `yaml:"srid,omitempty"`

	// Escape selects the escape function: "" or "none" for no function,
	// "upper" for one that quotes and uppercases every literal.
	Escape string `yaml:"escape,omitempty"`

	// Expect specifies the expected outcome of parse and compile.
	// If nil, both must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Assertions validate the compiled SQL and extracted selectors.
	Assertions []Assertion `yaml:"assertions"`
}

// ExpectClause specifies the expected parse and compile outcome.
type ExpectClause struct {
	// Error is the expected bridge error code (e.g., "PARSING_ERROR").
	// Empty means success is expected.
	Error string `yaml:"error,omitempty"`

	// Statements is the expected number of statements. Zero skips the check.
	Statements int `yaml:"statements,omitempty"`
}

// Assertion validates the compiled SQL or the extracted selectors.
type Assertion struct {
	// Type specifies the assertion type:
	// - "sql_contains" / "sql_not_contains": Check Text in the joined SQL
	// - "statement_count": Check Count statements were produced
	// - "first_keys": Check the keys of the first selector list
	// - "matches": Check the failing keys for Tags
	// - "all_selectors": Check the source of every selector list
	// - "source": Check the canonical request source
	// - "escape_calls": Check the literals passed to the escape function
	Type string `yaml:"type"`

	// Text is the expected SQL fragment or source text.
	Text string `yaml:"text,omitempty"`

	// Count is the expected number of statements (used by statement_count).
	Count int `yaml:"count,omitempty"`

	// Keys are the expected keys (used by first_keys). Omitted means the
	// selector list has no key constraint.
	Keys []string `yaml:"keys,omitempty"`

	// Tags is the tag map to match (used by matches).
	Tags map[string]string `yaml:"tags,omitempty"`

	// Failing are the expected failing keys (used by matches). Omitted
	// means the tags satisfy the selectors.
	Failing []string `yaml:"failing,omitempty"`

	// Sources are the expected selector sources (used by all_selectors).
	Sources []string `yaml:"sources,omitempty"`

	// Inputs are the expected escape inputs (used by escape_calls).
	Inputs []string `yaml:"inputs,omitempty"`
}

// Assertion type constants.
const (
	AssertSQLContains    = "sql_contains"
	AssertSQLNotContains = "sql_not_contains"
	AssertStatementCount = "statement_count"
	AssertFirstKeys      = "first_keys"
	AssertMatches        = "matches"
	AssertAllSelectors   = "all_selectors"
	AssertSource         = "source"
	AssertEscapeCalls    = "escape_calls"
)

// Escape modes.
const (
	EscapeNone  = "none"
	EscapeUpper = "upper"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML and applies defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Dialect == "" {
		scenario.Dialect = dialect.NamePostgres
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

	if s.Query == "" && (s.Expect == nil || s.Expect.Error == "") {
		return fmt.Errorf("query is required unless an error is expected")
	}

	switch s.Escape {
	case "", EscapeNone, EscapeUpper:
	default:
		return fmt.Errorf("unknown escape mode %q", s.Escape)
	}

	if s.Expect == nil && len(s.Assertions) == 0 {
		return fmt.Errorf("expect or assertions are required")
	}

	if s.Expect != nil && s.Expect.Statements < 0 {
		return fmt.Errorf("expect.statements must be non-negative")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
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

	switch a.Type {
	case AssertSQLContains, AssertSQLNotContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	case AssertStatementCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for statement_count", index)
		}
	case AssertMatches:
		if a.Tags == nil {
			return fmt.Errorf("assertions[%d]: tags is required for matches (use {} for no tags)", index)
		}
	case AssertSource:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for source", index)
		}
	case AssertFirstKeys, AssertAllSelectors, AssertEscapeCalls:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
