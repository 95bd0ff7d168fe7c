package sqlgen

import "github.com/roach88/overpassql/internal/ast"

// step is one query statement scheduled as a CTE.
type step struct {
	query ast.Query

	// input is the step the statement reads from, or noInput. For object
	// queries noInput with empty == false means the whole osm_base table.
	input int

	// parts are the member steps of a union.
	parts []int

	// empty is set when the statement reads an undefined set.
	empty bool

	needed bool
	name   string
}

const noInput = -1

// plan assigns every statement up to and including one subrequest to a step
// and tracks which step each named set currently refers to.
type plan struct {
	steps []*step
	sets  map[string]int
}

func newPlan() *plan {
	return &plan{sets: make(map[string]int)}
}

// add schedules q and returns its step index.
func (p *plan) add(q ast.Query) int {
	switch query := q.(type) {
	case *ast.QueryObjects:
		s := &step{query: q, input: noInput}
		if query.InputSet != "" {
			s.input, s.empty = p.lookup(query.InputSet)
		}
		return p.assign(s, query.OutputSet)
	case *ast.QueryUnion:
		parts := make([]int, 0, len(query.Queries))
		for _, inner := range query.Queries {
			parts = append(parts, p.add(inner))
		}
		return p.assign(&step{query: q, input: noInput, parts: parts}, query.OutputSet)
	case *ast.QueryRecurse:
		s := &step{query: q}
		s.input, s.empty = p.lookup(setOrDefault(query.InputSet))
		return p.assign(s, query.OutputSet)
	case *ast.QueryItem:
		s := &step{query: q}
		s.input, s.empty = p.lookup(query.InputSet)
		return p.assign(s, query.OutputSet)
	default:
		// Unreachable: Query is sealed.
		panic("sqlgen: unknown query type")
	}
}

func (p *plan) assign(s *step, outputSet string) int {
	p.steps = append(p.steps, s)
	idx := len(p.steps) - 1
	p.sets[setOrDefault(outputSet)] = idx
	return idx
}

// lookup returns the step currently bound to set, or (noInput, true) when the
// set has never been assigned.
func (p *plan) lookup(set string) (int, bool) {
	idx, ok := p.sets[set]
	if !ok {
		return noInput, true
	}
	return idx, false
}

// markNeeded flags idx and everything it depends on.
func (p *plan) markNeeded(idx int) {
	if idx == noInput || p.steps[idx].needed {
		return
	}
	s := p.steps[idx]
	s.needed = true
	p.markNeeded(s.input)
	for _, part := range s.parts {
		p.markNeeded(part)
	}
}

// name numbers the needed steps in definition order.
func (p *plan) name() []*step {
	var needed []*step
	for _, s := range p.steps {
		if s.needed {
			needed = append(needed, s)
			s.name = cteName(len(needed))
		}
	}
	return needed
}

func setOrDefault(set string) string {
	if set == "" {
		return ast.DefaultSet
	}
	return set
}
