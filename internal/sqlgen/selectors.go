package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/overpassql/internal/ast"
	"github.com/roach88/overpassql/internal/dialect"
)

// CompileSelectors compiles a selector list to a boolean SQL expression.
//
// Columns are qualified with table when it is non-empty. An empty list
// compiles to "true".
func (c *Compiler) CompileSelectors(sel ast.Selectors, table string) (string, error) {
	if c.dialect == nil {
		return "", fmt.Errorf("cannot compile without a dialect")
	}
	if len(sel) == 0 {
		return "true", nil
	}
	return c.compileSelectorList(sel, table)
}

func (c *Compiler) compileSelectorList(sel ast.Selectors, table string) (string, error) {
	column := "tags"
	if table != "" {
		column = table + ".tags"
	}

	parts := make([]string, 0, len(sel))
	for _, s := range sel {
		sql, err := c.compileSelector(s, column)
		if err != nil {
			return "", fmt.Errorf("compile selector [%s]: %w", s.Key, err)
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, " AND "), nil
}

// compileSelector quotes the key, then the value, and renders the predicate.
func (c *Compiler) compileSelector(sel ast.Selector, column string) (string, error) {
	key, err := c.dialect.Literal(sel.Key)
	if err != nil {
		return "", err
	}
	var value string
	if sel.Operator != ast.OpExists {
		value, err = c.dialect.Literal(sel.Value)
		if err != nil {
			return "", err
		}
	}

	switch c.dialect.(type) {
	case dialect.Postgres:
		return postgresSelector(sel, column, key, value), nil
	case dialect.DuckDB:
		return duckdbSelector(sel, column, key, value), nil
	default:
		return "", fmt.Errorf("unsupported dialect: %T", c.dialect)
	}
}

// postgresSelector uses jsonb operators: ? for key presence, ->> for values.
func postgresSelector(sel ast.Selector, column, key, value string) string {
	get := "(" + column + "->>" + key + ")"
	switch sel.Operator {
	case ast.OpExists:
		test := column + " ? " + key
		if sel.Negated {
			return "NOT (" + test + ")"
		}
		return test
	case ast.OpEqual:
		if sel.Negated {
			return get + " IS DISTINCT FROM " + value
		}
		return get + " = " + value
	default:
		op := " ~ "
		if sel.CaseInsensitive {
			op = " ~* "
		}
		test := get + op + value
		if sel.Negated {
			return "NOT coalesce(" + test + ", false)"
		}
		return test
	}
}

// duckdbSelector uses the JSON extension's ->> and regexp_matches.
func duckdbSelector(sel ast.Selector, column, key, value string) string {
	get := "(" + column + "->>" + key + ")"
	switch sel.Operator {
	case ast.OpExists:
		if sel.Negated {
			return get + " IS NULL"
		}
		return get + " IS NOT NULL"
	case ast.OpEqual:
		if sel.Negated {
			return get + " IS DISTINCT FROM " + value
		}
		return get + " = " + value
	default:
		test := "regexp_matches(" + column + "->>" + key + ", " + value
		if sel.CaseInsensitive {
			test += ", 'i'"
		}
		test += ")"
		if sel.Negated {
			return "NOT coalesce(" + test + ", false)"
		}
		return test
	}
}

func (c *Compiler) compileFilter(f ast.Filter) (string, error) {
	switch filter := f.(type) {
	case ast.BBox:
		return "ST_Intersects(geom, " + c.envelope(filter) + ")", nil
	case ast.IDs:
		if len(filter.IDs) == 1 {
			return "id = " + strconv.FormatInt(filter.IDs[0], 10), nil
		}
		ids := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		return "id IN (" + strings.Join(ids, ", ") + ")", nil
	case ast.Around:
		return "ST_DWithin(geom, " + c.point(filter.Lat, filter.Lon) + ", " + ast.FormatNumber(filter.Radius) + ")", nil
	default:
		return "", fmt.Errorf("unsupported filter type: %T", f)
	}
}

// envelope builds a WGS84 box transformed to the target SRID.
func (c *Compiler) envelope(b ast.BBox) string {
	coords := strings.Join([]string{
		ast.FormatNumber(b.West),
		ast.FormatNumber(b.South),
		ast.FormatNumber(b.East),
		ast.FormatNumber(b.North),
	}, ", ")
	if _, ok := c.dialect.(dialect.DuckDB); ok {
		return "ST_Transform(ST_MakeEnvelope(" + coords + "), " + c.duckdbTransformArgs() + ")"
	}
	return "ST_Transform(ST_MakeEnvelope(" + coords + ", 4326), " + c.srid + ")"
}

// point builds a WGS84 point transformed to the target SRID.
func (c *Compiler) point(lat, lon float64) string {
	xy := ast.FormatNumber(lon) + ", " + ast.FormatNumber(lat)
	if _, ok := c.dialect.(dialect.DuckDB); ok {
		return "ST_Transform(ST_Point(" + xy + "), " + c.duckdbTransformArgs() + ")"
	}
	return "ST_Transform(ST_SetSRID(ST_MakePoint(" + xy + "), 4326), " + c.srid + ")"
}

// duckdbTransformArgs names source and target CRS; always_xy keeps lon/lat order.
func (c *Compiler) duckdbTransformArgs() string {
	return "'EPSG:4326', " + dialect.QuoteLiteral("EPSG:"+c.srid) + ", true"
}
