package bridge

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/overpassql/internal/ast"
	"github.com/roach88/overpassql/internal/callback"
	"github.com/roach88/overpassql/internal/parser"
	"github.com/roach88/overpassql/internal/testutil"
)

var validQueries = []string{
	"node[amenity=cafe];out;",
	"way[highway=primary](50.7,7.1,50.8,7.2);out geom;",
	`[out:json];(node["shop"="bakery"];way["shop"="bakery"];);out center;`,
	"rel[route=bus];>>;out skel;",
	"node(1);<;out ids;",
	"node[name~\"^Caf\",i](around:200,50.73,7.1)->.c;.c out count;",
	"nwr[!disused][building!=no];",
	"node(id:1,2,3);out qt 10;",
}

func TestParse_ValidQueriesCompileForBothDialects(t *testing.T) {
	for _, query := range validQueries {
		t.Run(query, func(t *testing.T) {
			h, err := Parse(query)
			require.NoError(t, err)

			for _, d := range []string{"postgres", "duckdb"} {
				sql, err := h.CompileToSQL(d, "4326", nil)
				require.NoError(t, err, d)
				assert.NotEmpty(t, strings.TrimSpace(sql))
				assert.True(t, strings.HasSuffix(sql, ";"))
				assert.Contains(t, sql, "SELECT")
			}
		})
	}
}

func TestParse_InvalidQueryIsParsingError(t *testing.T) {
	for _, query := range []string{"", "foo bar !", "node[", "node[shop] out;", "(node;", `node["x];`} {
		t.Run(query, func(t *testing.T) {
			h, err := Parse(query)
			require.Error(t, err)
			assert.Nil(t, h)

			assert.True(t, IsParsingError(err))
			assert.Equal(t, ErrCodeParsing, CodeOf(err))
			assert.Contains(t, err.Error(), "failed to parse query: ")

			var bErr *Error
			require.True(t, errors.As(err, &bErr))
			assert.NotEmpty(t, strings.TrimPrefix(bErr.Message, "failed to parse query: "))

			var perr *parser.ParseError
			assert.True(t, errors.As(err, &perr), "parse diagnostic must stay reachable")
		})
	}
}

func TestCompile_UnsupportedDialect(t *testing.T) {
	h, err := Parse("node[amenity=cafe];out;")
	require.NoError(t, err)
	sel, err := h.FirstSelectors()
	require.NoError(t, err)

	for _, name := range []string{"mysql", "Postgres", "sqlite", ""} {
		t.Run(name, func(t *testing.T) {
			_, err := h.CompileToSQL(name, "4326", nil)
			assert.True(t, IsUnsupportedDialect(err), "request: %v", err)

			_, err = h.CompileStatements(name, "4326", testutil.NewEscapeRecorder().Func())
			assert.True(t, IsUnsupportedDialect(err), "statements: %v", err)

			_, err = sel.CompileToSQL(name, "", "4326", nil)
			assert.True(t, IsUnsupportedDialect(err), "selectors: %v", err)
		})
	}
}

func TestCompile_EscapeUppercasesEveryLiteralOnce(t *testing.T) {
	h, err := Parse(`node[amenity=cafe][cuisine!=pizza][name~"^caf",i][!disused];out;`)
	require.NoError(t, err)

	rec := testutil.NewEscapeRecorder()
	sql, err := h.CompileToSQL("postgres", "4326", rec.Func())
	require.NoError(t, err)

	assert.Equal(t, []string{"amenity", "cafe", "cuisine", "pizza", "name", "^caf", "disused"}, rec.Calls())
	for _, lit := range []string{"'CAFE'", "'PIZZA'", "'^CAF'", "'AMENITY'", "'DISUSED'"} {
		assert.Equal(t, 1, strings.Count(sql, lit), "literal %s in %s", lit, sql)
	}
	assert.NotContains(t, sql, "'cafe'")
}

func TestCompile_DuckDBIgnoresEscape(t *testing.T) {
	h, err := Parse("node[amenity=cafe];out;")
	require.NoError(t, err)

	rec := testutil.NewEscapeRecorder()
	sql, err := h.CompileToSQL("duckdb", "4326", rec.Func())
	require.NoError(t, err)

	assert.Equal(t, 0, rec.Count())
	assert.Contains(t, sql, "'cafe'")
}

func TestCompile_CallbackFailureIsReturned(t *testing.T) {
	h, err := Parse("node[amenity=cafe];out;")
	require.NoError(t, err)
	sel, err := h.FirstSelectors()
	require.NoError(t, err)

	boom := errors.New("host raised")
	_, err = h.CompileToSQL("postgres", "4326", testutil.NewFailingEscape(boom).Func())
	require.Error(t, err)
	assert.True(t, IsCallbackError(err))
	assert.ErrorIs(t, err, boom)

	panicking := func(string) (string, error) { panic("host exploded") }
	require.NotPanics(t, func() {
		_, err = sel.CompileToSQL("postgres", "", "4326", panicking)
	})
	assert.True(t, IsCallbackError(err))
	assert.Contains(t, err.Error(), "host exploded")
}

func TestCompile_RegistryIsEmptyAfterEveryCall(t *testing.T) {
	h, err := Parse("node[amenity=cafe];out;")
	require.NoError(t, err)
	sel, err := h.FirstSelectors()
	require.NoError(t, err)

	escapes := map[string]callback.Func{
		"ok":      testutil.NewEscapeRecorder().Func(),
		"failing": testutil.NewFailingEscape(nil).Func(),
		"nil":     nil,
	}
	for name, escape := range escapes {
		for _, d := range []string{"postgres", "duckdb", "oracle"} {
			t.Run(name+"/"+d, func(t *testing.T) {
				reg := callback.NewRegistry()
				_, _ = h.compile(reg, d, "4326", escape)
				assert.Equal(t, 0, reg.Len(), "request compile leaked a registration")

				_, _ = sel.compile(reg, d, "t", "4326", escape)
				assert.Equal(t, 0, reg.Len(), "selectors compile leaked a registration")
			})
		}
	}
}

func TestCompile_StatementArity(t *testing.T) {
	h, err := Parse("node[shop];out;way[highway];out ids;")
	require.NoError(t, err)

	statements, err := h.CompileStatements("postgres", "", nil)
	require.NoError(t, err)
	require.Len(t, statements, 2)
	for _, s := range statements {
		assert.False(t, strings.HasSuffix(s, ";"))
	}

	sql, err := h.CompileToSQL("postgres", "", nil)
	require.NoError(t, err)
	assert.Equal(t, statements[0]+";\n"+statements[1]+";", sql)
}

func TestCompile_ConcurrentCallersNeverSeeEachOthersCallbacks(t *testing.T) {
	h, err := Parse("node[amenity=cafe][name=x];out;")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tag := fmt.Sprintf("W%d_", w)
			for range 50 {
				sql, err := h.CompileToSQL("postgres", "4326", func(s string) (string, error) {
					return "'" + tag + s + "'", nil
				})
				if err != nil {
					errs <- err
					return
				}
				if strings.Count(sql, tag) != 4 {
					errs <- fmt.Errorf("worker %d saw foreign escape output: %s", w, sql)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestFirstSelectors(t *testing.T) {
	h, err := Parse("node[amenity=cafe];out;")
	require.NoError(t, err)

	sel, err := h.FirstSelectors()
	require.NoError(t, err)

	keys, ok := sel.Keys()
	assert.True(t, ok)
	assert.Equal(t, []string{"amenity"}, keys)

	failing, ok := sel.Matches(map[string]string{"amenity": "cafe"})
	assert.False(t, ok)
	assert.Nil(t, failing)

	failing, ok = sel.Matches(map[string]string{"amenity": "bar"})
	assert.True(t, ok)
	assert.Equal(t, []string{"amenity"}, failing)
}

func TestFirstSelectors_StructuralErrors(t *testing.T) {
	testCases := map[string]string{
		"union first":     "(node[a];way[b];);out;",
		"recursion first": ">;out;",
		"item first":      "._;out;",
		"out first":       "out;node[a];out;",
	}
	for name, query := range testCases {
		t.Run(name, func(t *testing.T) {
			h, err := Parse(query)
			require.NoError(t, err)

			sel, err := h.FirstSelectors()
			assert.Nil(t, sel)
			assert.True(t, IsStructuralError(err), "got %v", err)
		})
	}

	empty := &RequestHandle{request: &ast.Request{}}
	_, err := empty.FirstSelectors()
	assert.True(t, IsStructuralError(err))
}

func TestFirstSelectors_EmptyList(t *testing.T) {
	h, err := Parse("node(1);out;")
	require.NoError(t, err)

	sel, err := h.FirstSelectors()
	require.NoError(t, err)

	keys, ok := sel.Keys()
	assert.False(t, ok)
	assert.Nil(t, keys)

	failing, ok := sel.Matches(nil)
	assert.False(t, ok)
	assert.Nil(t, failing)

	sql, err := sel.CompileToSQL("postgres", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "true", sql)
}

func TestAllSelectors(t *testing.T) {
	query := `
		node[a=1];
		(
		  way[b];
		  (rel[c][!d];);
		  node(5);
		)->.x;
		.x >;
		._;
		out;
		nwr[e~f];
	`
	h, err := Parse(query)
	require.NoError(t, err)

	all := h.AllSelectors()
	require.Len(t, all, 4)

	sources := make([]string, len(all))
	for i, s := range all {
		sources[i] = s.Source()
	}
	assert.Equal(t, []string{"[a=1]", "[b]", "[c][!d]", "[e~f]"}, sources)
}

func TestAllSelectors_None(t *testing.T) {
	h, err := Parse("node(1);>;out;")
	require.NoError(t, err)
	assert.Empty(t, h.AllSelectors())
}

func TestSelectorsOutliveRequest(t *testing.T) {
	h, err := Parse("node[amenity=cafe];out;")
	require.NoError(t, err)
	sel, err := h.FirstSelectors()
	require.NoError(t, err)

	// Mutating the tree the handle was extracted from must not reach the copy.
	q := h.request.Subrequests[0].Queries[0].(*ast.QueryObjects)
	q.Selectors[0].Value = "bar"

	assert.Equal(t, "[amenity=cafe]", sel.Source())

	copied := sel.Selectors()
	copied[0].Key = "changed"
	assert.Equal(t, "[amenity=cafe]", sel.Source())
}

func TestRequestHandle_SourceAndRequest(t *testing.T) {
	h, err := Parse("node [ amenity = cafe ] ; out ;")
	require.NoError(t, err)
	assert.Equal(t, "node[amenity=cafe];\nout;\n", h.Source())

	req := h.Request()
	req.Subrequests = nil
	assert.Equal(t, "node[amenity=cafe];\nout;\n", h.Source())
}
