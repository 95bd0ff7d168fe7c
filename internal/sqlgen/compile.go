// Package sqlgen compiles Overpass QL trees into SQL text for a dialect.
//
// Generated SQL targets two tables:
//
//	osm_base(objtype, id, tags, geom)
//	osm_members(parent_type, parent_id, member_type, member_id, role, seq)
//
// Every subrequest compiles to one statement of the form
//
//	WITH _q1 AS (...), _q2 AS (...) SELECT ... FROM _q2 ORDER BY objtype, id
//
// Only the CTEs the out statement depends on are emitted. Tag keys and values
// are quoted through Descriptor.Literal in the order they appear in the
// output; internal constants (object type codes, SRIDs) never are.
package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/overpassql/internal/ast"
	"github.com/roach88/overpassql/internal/dialect"
	"github.com/roach88/overpassql/internal/parser"
)

// DefaultSRID is used when the caller passes an empty SRID.
const DefaultSRID = "4326"

// baseColumns is the row shape every CTE produces.
const baseColumns = "objtype, id, tags, geom"

// emptyRelation stands in for sets that were never assigned.
const emptyRelation = "osm_base WHERE false"

// Compiler compiles requests and selector lists for one dialect.
type Compiler struct {
	dialect dialect.Descriptor
	srid    string
}

// NewCompiler creates a compiler for d. SRID is spliced into geometry
// transforms as given; an empty SRID means DefaultSRID.
func NewCompiler(d dialect.Descriptor, srid string) *Compiler {
	if srid == "" {
		srid = DefaultSRID
	}
	return &Compiler{dialect: d, srid: srid}
}

// CompileRequest compiles every subrequest into its own statement.
// Statements carry no trailing semicolon.
func (c *Compiler) CompileRequest(req *ast.Request) ([]string, error) {
	if req == nil {
		return nil, fmt.Errorf("cannot compile nil request")
	}
	if c.dialect == nil {
		return nil, fmt.Errorf("cannot compile without a dialect")
	}

	var globalBBox *ast.BBox
	if value, ok := req.Setting("bbox"); ok {
		bbox, err := parser.ParseBBoxSetting(value)
		if err != nil {
			return nil, fmt.Errorf("bbox setting: %w", err)
		}
		globalBBox = &bbox
	}

	statements := make([]string, 0, len(req.Subrequests))
	for i := range req.Subrequests {
		sql, err := c.compileStatement(req, i, globalBBox)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		statements = append(statements, sql)
	}
	return statements, nil
}

// compileStatement compiles subrequest i. Sets assigned by earlier
// subrequests stay visible, so their statements are planned too and pruned
// when unused.
func (c *Compiler) compileStatement(req *ast.Request, i int, globalBBox *ast.BBox) (string, error) {
	p := newPlan()
	for _, sub := range req.Subrequests[:i+1] {
		for _, q := range sub.Queries {
			p.add(q)
		}
	}

	out := req.Subrequests[i].Out
	if out == nil {
		out = ast.DefaultOut()
	}
	src, undefined := p.lookup(setOrDefault(out.InputSet))
	p.markNeeded(src)

	var (
		defs      []string
		recursive bool
	)
	for _, s := range p.name() {
		stepDefs, rec, err := c.compileStep(p, s, globalBBox)
		if err != nil {
			return "", err
		}
		defs = append(defs, stepDefs...)
		recursive = recursive || rec
	}

	var b strings.Builder
	if len(defs) > 0 {
		if recursive {
			b.WriteString("WITH RECURSIVE ")
		} else {
			b.WriteString("WITH ")
		}
		b.WriteString(strings.Join(defs, ",\n"))
		b.WriteString("\n")
	}

	from := emptyRelation
	if !undefined {
		from = p.steps[src].name
	}
	b.WriteString(compileOut(out, from))
	return b.String(), nil
}

// compileStep returns the CTE definitions for s and whether any is recursive.
func (c *Compiler) compileStep(p *plan, s *step, globalBBox *ast.BBox) ([]string, bool, error) {
	if s.empty {
		return []string{cte(s.name, "SELECT "+baseColumns+" FROM "+emptyRelation)}, false, nil
	}

	switch query := s.query.(type) {
	case *ast.QueryObjects:
		body, err := c.compileObjects(query, p.inputName(s), globalBBox)
		if err != nil {
			return nil, false, err
		}
		return []string{cte(s.name, body)}, false, nil
	case *ast.QueryUnion:
		return []string{cte(s.name, compileUnion(p, s))}, false, nil
	case *ast.QueryItem:
		return []string{cte(s.name, "SELECT "+baseColumns+" FROM "+p.inputName(s))}, false, nil
	case *ast.QueryRecurse:
		defs, recursive := compileRecurse(query, s.name, p.inputName(s))
		return defs, recursive, nil
	default:
		return nil, false, fmt.Errorf("unsupported query type: %T", s.query)
	}
}

func (p *plan) inputName(s *step) string {
	if s.input == noInput {
		return ""
	}
	return p.steps[s.input].name
}

// compileObjects compiles an object query. input is the CTE the query is
// restricted to, or "" for the whole table.
func (c *Compiler) compileObjects(q *ast.QueryObjects, input string, globalBBox *ast.BBox) (string, error) {
	var conds []string

	codes := q.Type.Codes()
	switch len(codes) {
	case 1:
		conds = append(conds, "objtype = '"+codes[0]+"'")
	case 2:
		conds = append(conds, "objtype IN ('"+codes[0]+"', '"+codes[1]+"')")
	}

	if input != "" {
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM %s s WHERE s.objtype = osm_base.objtype AND s.id = osm_base.id)", input))
	}

	if len(q.Selectors) > 0 {
		sel, err := c.compileSelectorList(q.Selectors, "")
		if err != nil {
			return "", err
		}
		conds = append(conds, sel)
	}

	hasBBox := false
	for _, f := range q.Filters {
		cond, err := c.compileFilter(f)
		if err != nil {
			return "", err
		}
		if _, ok := f.(ast.BBox); ok {
			hasBBox = true
		}
		conds = append(conds, cond)
	}
	if globalBBox != nil && !hasBBox {
		cond, err := c.compileFilter(*globalBBox)
		if err != nil {
			return "", err
		}
		conds = append(conds, cond)
	}

	sql := "SELECT " + baseColumns + " FROM osm_base"
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	return sql, nil
}

func compileUnion(p *plan, s *step) string {
	if len(s.parts) == 0 {
		return "SELECT " + baseColumns + " FROM " + emptyRelation
	}
	members := make([]string, len(s.parts))
	for i, part := range s.parts {
		members[i] = "SELECT objtype, id FROM " + p.steps[part].name
	}
	return "SELECT b.objtype, b.id, b.tags, b.geom FROM osm_base b JOIN (" +
		strings.Join(members, " UNION ") +
		") u ON u.objtype = b.objtype AND u.id = b.id"
}

// compileRecurse follows osm_members from the input set. The transitive
// kinds use a recursive helper CTE named <name>_r.
func compileRecurse(q *ast.QueryRecurse, name, input string) ([]string, bool) {
	// from is the side of osm_members matched against the input, to the side produced.
	fromType, fromID, toType, toID := "parent_type", "parent_id", "member_type", "member_id"
	if !q.Kind.Down() {
		fromType, fromID, toType, toID = toType, toID, fromType, fromID
	}

	hop := func(src string) string {
		return fmt.Sprintf("SELECT m.%s, m.%s FROM osm_members m JOIN %s p ON m.%s = p.objtype AND m.%s = p.id",
			toType, toID, src, fromType, fromID)
	}

	if !q.Kind.Recursive() {
		body := fmt.Sprintf(
			"SELECT b.objtype, b.id, b.tags, b.geom FROM osm_base b JOIN (SELECT DISTINCT m.%s AS objtype, m.%s AS id FROM osm_members m JOIN %s p ON m.%s = p.objtype AND m.%s = p.id) r ON r.objtype = b.objtype AND r.id = b.id",
			toType, toID, input, fromType, fromID)
		return []string{cte(name, body)}, false
	}

	helper := name + "_r"
	helperBody := hop(input) + " UNION " + hop(helper)
	body := "SELECT b.objtype, b.id, b.tags, b.geom FROM osm_base b JOIN " + helper +
		" r ON r.objtype = b.objtype AND r.id = b.id"
	return []string{
		helper + "(objtype, id) AS (" + helperBody + ")",
		cte(name, body),
	}, true
}

// compileOut renders the final SELECT over from.
func compileOut(out *ast.Out, from string) string {
	if out.Count {
		return "SELECT count(*) AS total FROM " + from
	}

	sql := "SELECT " + strings.Join(outColumns(out), ", ") + " FROM " + from
	if !out.Quadtile {
		sql += " ORDER BY objtype, id"
	}
	if out.Limit > 0 {
		sql += " LIMIT " + strconv.Itoa(out.Limit)
	}
	return sql
}

func outColumns(out *ast.Out) []string {
	cols := []string{"objtype", "id"}

	withTags := false
	withGeom := out.Geometry != ast.GeometryNone
	switch out.Verbosity {
	case ast.VerbosityIDs:
	case ast.VerbositySkel:
		withGeom = true
	case ast.VerbosityTags:
		withTags = true
	default:
		withTags, withGeom = true, true
	}

	if withTags {
		cols = append(cols, "tags")
	}
	if withGeom {
		switch out.Geometry {
		case ast.GeometryCenter:
			cols = append(cols, "ST_Centroid(geom) AS geom")
		case ast.GeometryBBox:
			cols = append(cols, "ST_Envelope(geom) AS geom")
		default:
			cols = append(cols, "geom")
		}
	}
	return cols
}

func cte(name, body string) string {
	return name + " AS (" + body + ")"
}

func cteName(n int) string {
	return "_q" + strconv.Itoa(n)
}
