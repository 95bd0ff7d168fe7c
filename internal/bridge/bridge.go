// Package bridge is the boundary between host code and the Overpass QL
// compiler.
//
// Parse returns a RequestHandle that owns the parsed tree. Handles expose
// extraction, tag matching, source rendering and SQL compilation. Every
// failure is returned as *Error with a Code.
//
// # Callbacks
//
// Compile methods accept an optional escape function. Each call creates its
// own callback.Registry, registers the function for the dialects that
// support it, and releases it before returning, whether compilation
// succeeded or not. A failing or panicking escape function becomes a
// CALLBACK_ERROR.
//
// # Ownership
//
// A RequestHandle owns its tree exclusively. A SelectorsHandle owns a deep
// copy of the selectors it was extracted from, so it stays valid after the
// RequestHandle is dropped. Both are immutable and safe for concurrent use.
package bridge

import (
	"log/slog"
	"strings"

	"github.com/roach88/overpassql/internal/ast"
	"github.com/roach88/overpassql/internal/callback"
	"github.com/roach88/overpassql/internal/dialect"
	"github.com/roach88/overpassql/internal/parser"
	"github.com/roach88/overpassql/internal/sqlgen"
)

// Parse parses query into a RequestHandle.
func Parse(query string) (*RequestHandle, error) {
	req, err := parser.Parse(query)
	if err != nil {
		slog.Debug("parse failed", "error", err)
		return nil, &Error{
			Code:    ErrCodeParsing,
			Message: "failed to parse query: " + err.Error(),
			Err:     err,
		}
	}
	return &RequestHandle{request: req}, nil
}

// RequestHandle owns a parsed request.
type RequestHandle struct {
	request *ast.Request
}

// CompileToSQL compiles every statement and joins them with ";\n",
// terminating the last one with ";".
func (h *RequestHandle) CompileToSQL(dialectName, srid string, escape callback.Func) (string, error) {
	statements, err := h.CompileStatements(dialectName, srid, escape)
	if err != nil {
		return "", err
	}
	return JoinStatements(statements), nil
}

// JoinStatements joins compiled statements the way CompileToSQL does. It
// returns "" for no statements.
func JoinStatements(statements []string) string {
	if len(statements) == 0 {
		return ""
	}
	return strings.Join(statements, ";\n") + ";"
}

// CompileStatements compiles the request to one SQL statement per
// subrequest, without trailing semicolons.
func (h *RequestHandle) CompileStatements(dialectName, srid string, escape callback.Func) ([]string, error) {
	return h.compile(callback.NewRegistry(), dialectName, srid, escape)
}

func (h *RequestHandle) compile(reg *callback.Registry, dialectName, srid string, escape callback.Func) ([]string, error) {
	d, release, err := dialect.Build(dialectName, escape, reg)
	if err != nil {
		return nil, translate(err)
	}
	defer release()

	statements, err := sqlgen.NewCompiler(d, srid).CompileRequest(h.request)
	if err != nil {
		return nil, translate(err)
	}
	return statements, nil
}

// FirstSelectors returns the selectors of the first statement, which must
// be an object query.
func (h *RequestHandle) FirstSelectors() (*SelectorsHandle, error) {
	if len(h.request.Subrequests) == 0 {
		return nil, structuralError("request has no subrequests")
	}
	sub := h.request.Subrequests[0]
	if len(sub.Queries) == 0 {
		return nil, structuralError("first subrequest has no queries")
	}

	switch q := sub.Queries[0].(type) {
	case *ast.QueryObjects:
		return newSelectorsHandle(q.Selectors), nil
	case *ast.QueryUnion:
		return nil, structuralError("first query is a union, not an object query")
	case *ast.QueryRecurse:
		return nil, structuralError("first query is a recursion, not an object query")
	default:
		return nil, structuralError("first query is %T, not an object query", q)
	}
}

// AllSelectors returns the non-empty selector lists of every object query,
// depth-first in source order. Unions are flattened; recursions and set
// references contribute nothing.
func (h *RequestHandle) AllSelectors() []*SelectorsHandle {
	var out []*SelectorsHandle
	for _, sub := range h.request.Subrequests {
		out = collectSelectors(out, sub.Queries)
	}
	return out
}

func collectSelectors(out []*SelectorsHandle, queries []ast.Query) []*SelectorsHandle {
	for _, q := range queries {
		switch query := q.(type) {
		case *ast.QueryObjects:
			if len(query.Selectors) > 0 {
				out = append(out, newSelectorsHandle(query.Selectors))
			}
		case *ast.QueryUnion:
			out = collectSelectors(out, query.Queries)
		}
	}
	return out
}

// Source renders the request as canonical Overpass QL.
func (h *RequestHandle) Source() string {
	return h.request.Source()
}

// Request returns a deep copy of the parsed tree.
func (h *RequestHandle) Request() *ast.Request {
	return h.request.Clone()
}
