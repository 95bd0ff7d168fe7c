package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"

	"github.com/roach88/overpassql/internal/bridge"
	"github.com/roach88/overpassql/internal/store"
	"github.com/roach88/overpassql/internal/testutil"
)

// Harness is the test execution engine for one scenario.
type Harness struct {
	store    *store.Store
	recorder *testutil.EscapeRecorder
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory compile cache for isolation.
//
// Execution flow:
// 1. Parse the query
// 2. Compile it for the scenario's dialect
// 3. Check the expect clause
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	st.WithLogger(h.logger)
	if scenario.Escape == EscapeUpper {
		h.recorder = testutil.NewEscapeRecorder()
	}

	ctx := context.Background()
	result := NewResult()

	req, err := bridge.Parse(scenario.Query)
	if err == nil {
		err = h.compile(ctx, req, scenario, result)
	}
	if err != nil {
		var bErr *bridge.Error
		if !errors.As(err, &bErr) {
			return nil, fmt.Errorf("failed to compile scenario %s: %w", scenario.Name, err)
		}
		result.ErrorCode = string(bErr.Code)
		result.ErrorMessage = bErr.Message
	}
	if h.recorder != nil {
		result.EscapeCalls = h.recorder.Calls()
	}

	checkExpect(scenario.Expect, result)

	if result.ErrorCode == "" {
		for _, errMsg := range EvaluateAssertions(req, result, scenario.Assertions) {
			result.AddError(errMsg)
		}
	}

	h.logger.Info("scenario completed",
		"name", scenario.Name,
		"pass", result.Pass,
		"statements", len(result.Statements),
	)
	return result, nil
}

// compile fills result.Statements. Without an escape function the request
// is compiled through the cache twice and both results must agree.
func (h *Harness) compile(ctx context.Context, req *bridge.RequestHandle, scenario *Scenario, result *Result) error {
	if h.recorder != nil {
		statements, err := req.CompileStatements(scenario.Dialect, scenario.SRID, h.recorder.Func())
		if err != nil {
			return err
		}
		result.Statements = statements
		return nil
	}

	source := req.Source()
	compile := func() ([]string, error) {
		return req.CompileStatements(scenario.Dialect, scenario.SRID, nil)
	}

	fresh, _, err := h.store.GetOrCompile(ctx, scenario.Dialect, scenario.SRID, source, compile)
	if err != nil {
		return err
	}
	cached, hit, err := h.store.GetOrCompile(ctx, scenario.Dialect, scenario.SRID, source, compile)
	if err != nil {
		return err
	}

	result.Statements = fresh
	result.CacheHit = hit
	if !hit {
		result.AddError("compile cache: second compilation was not served from the cache")
	}
	if !reflect.DeepEqual(fresh, cached) {
		result.AddError("compile cache: cached statements differ from the fresh compilation")
	}
	return nil
}

// checkExpect validates the expect clause.
func checkExpect(expect *ExpectClause, result *Result) {
	wantErr := ""
	if expect != nil {
		wantErr = expect.Error
	}

	switch {
	case wantErr == "" && result.ErrorCode != "":
		result.AddError(fmt.Sprintf("expected success, got %s: %s", result.ErrorCode, result.ErrorMessage))
	case wantErr != "" && result.ErrorCode == "":
		result.AddError(fmt.Sprintf("expected %s, got success", wantErr))
	case wantErr != result.ErrorCode:
		result.AddError(fmt.Sprintf("expected %s, got %s: %s", wantErr, result.ErrorCode, result.ErrorMessage))
	}

	if expect != nil && expect.Statements > 0 && result.ErrorCode == "" && len(result.Statements) != expect.Statements {
		result.AddError(fmt.Sprintf("expected %d statements, got %d", expect.Statements, len(result.Statements)))
	}
}
