package harness

import "github.com/roach88/overpassql/internal/bridge"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the expect clause and all assertions hold.
	Pass bool `json:"pass"`

	// Statements are the compiled statements, without trailing semicolons.
	Statements []string `json:"statements,omitempty"`

	// ErrorCode is the bridge error code when parsing or compiling failed.
	ErrorCode string `json:"error_code,omitempty"`

	// ErrorMessage is the failure message that goes with ErrorCode.
	ErrorMessage string `json:"error_message,omitempty"`

	// EscapeCalls lists the literals passed to the escape function.
	EscapeCalls []string `json:"escape_calls,omitempty"`

	// CacheHit reports that the second compilation was served from the cache.
	CacheHit bool `json:"cache_hit,omitempty"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// SQL returns the statements joined the way bridge.RequestHandle.CompileToSQL
// joins them, or "" when compilation failed.
func (r *Result) SQL() string {
	return bridge.JoinStatements(r.Statements)
}
