package bridge

import (
	"regexp"

	"github.com/roach88/overpassql/internal/ast"
	"github.com/roach88/overpassql/internal/callback"
	"github.com/roach88/overpassql/internal/dialect"
	"github.com/roach88/overpassql/internal/sqlgen"
)

// SelectorsHandle owns a detached copy of an object query's selectors.
type SelectorsHandle struct {
	selectors ast.Selectors
}

func newSelectorsHandle(sel ast.Selectors) *SelectorsHandle {
	return &SelectorsHandle{selectors: sel.Clone()}
}

// Selectors returns a copy of the underlying list.
func (s *SelectorsHandle) Selectors() ast.Selectors {
	return s.selectors.Clone()
}

// Matches evaluates the selectors against tags.
//
// It returns (nil, false) when the list is empty, since an empty list puts
// no constraint on the element, and when every predicate holds. Otherwise it
// returns the keys of the failing predicates in definition order, each key
// once.
func (s *SelectorsHandle) Matches(tags map[string]string) ([]string, bool) {
	var failing []string
	seen := make(map[string]bool)
	for _, sel := range s.selectors {
		if satisfied(sel, tags) || seen[sel.Key] {
			continue
		}
		seen[sel.Key] = true
		failing = append(failing, sel.Key)
	}
	if len(failing) == 0 {
		return nil, false
	}
	return failing, true
}

// satisfied applies one predicate. A value pattern that does not compile
// never matches.
func satisfied(sel ast.Selector, tags map[string]string) bool {
	value, present := tags[sel.Key]

	var test bool
	switch sel.Operator {
	case ast.OpExists:
		test = present
	case ast.OpEqual:
		test = present && value == sel.Value
	case ast.OpMatch:
		pattern := sel.Value
		if sel.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		test = err == nil && present && re.MatchString(value)
	}

	if sel.Negated {
		return !test
	}
	return test
}

// Keys returns the keys of the non-negated predicates in order. It returns
// (nil, false) for an empty list; a list of only negated predicates yields
// an empty, non-nil slice.
func (s *SelectorsHandle) Keys() ([]string, bool) {
	if len(s.selectors) == 0 {
		return nil, false
	}
	keys := make([]string, 0, len(s.selectors))
	for _, sel := range s.selectors {
		if !sel.Negated {
			keys = append(keys, sel.Key)
		}
	}
	return keys, true
}

// CompileToSQL compiles the selectors to a boolean SQL expression. Columns
// are qualified with table unless it is empty. srid is accepted for parity
// with RequestHandle.CompileToSQL; selector SQL never references geometry.
func (s *SelectorsHandle) CompileToSQL(dialectName, table, srid string, escape callback.Func) (string, error) {
	return s.compile(callback.NewRegistry(), dialectName, table, srid, escape)
}

func (s *SelectorsHandle) compile(reg *callback.Registry, dialectName, table, srid string, escape callback.Func) (string, error) {
	d, release, err := dialect.Build(dialectName, escape, reg)
	if err != nil {
		return "", translate(err)
	}
	defer release()

	sql, err := sqlgen.NewCompiler(d, srid).CompileSelectors(s.selectors, table)
	if err != nil {
		return "", translate(err)
	}
	return sql, nil
}

// Source renders the selectors as Overpass QL, for example [amenity=cafe][!name].
func (s *SelectorsHandle) Source() string {
	return s.selectors.Source()
}
