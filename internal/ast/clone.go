package ast

import "slices"

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := &Request{
		Settings:    slices.Clone(r.Settings),
		Subrequests: make([]*Subrequest, len(r.Subrequests)),
	}
	for i, sub := range r.Subrequests {
		out.Subrequests[i] = sub.Clone()
	}
	return out
}

// Clone returns a deep copy of the subrequest.
func (s *Subrequest) Clone() *Subrequest {
	if s == nil {
		return nil
	}
	out := &Subrequest{Queries: cloneQueries(s.Queries)}
	if s.Out != nil {
		o := *s.Out
		out.Out = &o
	}
	return out
}

// Clone returns an independent copy of the selector list.
// A nil list stays nil so that "no selectors" survives the copy.
func (s Selectors) Clone() Selectors {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// CloneQuery returns a deep copy of a query node.
func CloneQuery(q Query) Query {
	switch query := q.(type) {
	case *QueryObjects:
		return &QueryObjects{
			Type:      query.Type,
			InputSet:  query.InputSet,
			Selectors: query.Selectors.Clone(),
			Filters:   cloneFilters(query.Filters),
			OutputSet: query.OutputSet,
		}
	case *QueryUnion:
		return &QueryUnion{
			Queries:   cloneQueries(query.Queries),
			OutputSet: query.OutputSet,
		}
	case *QueryRecurse:
		r := *query
		return &r
	case *QueryItem:
		item := *query
		return &item
	default:
		return nil
	}
}

func cloneQueries(qs []Query) []Query {
	if qs == nil {
		return nil
	}
	out := make([]Query, len(qs))
	for i, q := range qs {
		out[i] = CloneQuery(q)
	}
	return out
}

func cloneFilters(fs []Filter) []Filter {
	if fs == nil {
		return nil
	}
	out := make([]Filter, len(fs))
	for i, f := range fs {
		if ids, ok := f.(IDs); ok {
			out[i] = IDs{IDs: slices.Clone(ids.IDs)}
			continue
		}
		// BBox and Around are plain values.
		out[i] = f
	}
	return out
}
