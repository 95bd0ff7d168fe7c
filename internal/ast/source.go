package ast

import (
	"strconv"
	"strings"
	"unicode"
)

// Source renders the request as canonical Overpass QL.
//
// Settings go on the first line, followed by one statement per line:
//
//	[out:json][timeout:25];
//	node["addr:street"="Main St"](50.7,7.1,50.8,7.2);
//	out;
func (r *Request) Source() string {
	var b strings.Builder
	if len(r.Settings) > 0 {
		for _, s := range r.Settings {
			b.WriteString("[")
			b.WriteString(s.Key)
			b.WriteString(":")
			b.WriteString(s.Value)
			b.WriteString("]")
		}
		b.WriteString(";\n")
	}
	for _, sub := range r.Subrequests {
		for _, q := range sub.Queries {
			writeQuery(&b, q)
			b.WriteString(";\n")
		}
		if sub.Out != nil {
			writeOut(&b, sub.Out)
			b.WriteString(";\n")
		}
	}
	return b.String()
}

// Source renders the selector list as it appears after an object type,
// for example [amenity=cafe][!name]["name:en"~"^Caf",i].
func (s Selectors) Source() string {
	var b strings.Builder
	for _, sel := range s {
		writeSelector(&b, sel)
	}
	return b.String()
}

// QuerySource renders a single query statement without the trailing ';'.
func QuerySource(q Query) string {
	var b strings.Builder
	writeQuery(&b, q)
	return b.String()
}

func writeQuery(b *strings.Builder, q Query) {
	switch query := q.(type) {
	case *QueryObjects:
		b.WriteString(string(query.Type))
		writeInputSet(b, query.InputSet)
		for _, sel := range query.Selectors {
			writeSelector(b, sel)
		}
		for _, f := range query.Filters {
			writeFilter(b, f)
		}
		writeOutputSet(b, query.OutputSet)
	case *QueryUnion:
		b.WriteString("(")
		for i, inner := range query.Queries {
			if i > 0 {
				b.WriteString(" ")
			}
			writeQuery(b, inner)
			b.WriteString(";")
		}
		b.WriteString(")")
		writeOutputSet(b, query.OutputSet)
	case *QueryRecurse:
		if query.InputSet != "" {
			b.WriteString(".")
			b.WriteString(query.InputSet)
			b.WriteString(" ")
		}
		b.WriteString(string(query.Kind))
		writeOutputSet(b, query.OutputSet)
	case *QueryItem:
		writeInputSet(b, query.InputSet)
		writeOutputSet(b, query.OutputSet)
	}
}

func writeInputSet(b *strings.Builder, set string) {
	if set == "" {
		return
	}
	b.WriteString(".")
	b.WriteString(set)
}

func writeOutputSet(b *strings.Builder, set string) {
	if set == "" {
		return
	}
	b.WriteString("->.")
	b.WriteString(set)
}

func writeSelector(b *strings.Builder, sel Selector) {
	b.WriteString("[")
	if sel.Operator == OpExists {
		if sel.Negated {
			b.WriteString("!")
		}
		b.WriteString(QuoteWord(sel.Key))
		b.WriteString("]")
		return
	}
	b.WriteString(QuoteWord(sel.Key))
	if sel.Negated {
		b.WriteString("!")
	}
	b.WriteString(sel.Operator.String())
	b.WriteString(QuoteWord(sel.Value))
	if sel.CaseInsensitive {
		b.WriteString(",i")
	}
	b.WriteString("]")
}

func writeFilter(b *strings.Builder, f Filter) {
	switch filter := f.(type) {
	case BBox:
		b.WriteString("(")
		b.WriteString(FormatNumber(filter.South))
		b.WriteString(",")
		b.WriteString(FormatNumber(filter.West))
		b.WriteString(",")
		b.WriteString(FormatNumber(filter.North))
		b.WriteString(",")
		b.WriteString(FormatNumber(filter.East))
		b.WriteString(")")
	case IDs:
		if len(filter.IDs) == 1 {
			b.WriteString("(")
			b.WriteString(strconv.FormatInt(filter.IDs[0], 10))
			b.WriteString(")")
			return
		}
		b.WriteString("(id:")
		for i, id := range filter.IDs {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(strconv.FormatInt(id, 10))
		}
		b.WriteString(")")
	case Around:
		b.WriteString("(around:")
		b.WriteString(FormatNumber(filter.Radius))
		b.WriteString(",")
		b.WriteString(FormatNumber(filter.Lat))
		b.WriteString(",")
		b.WriteString(FormatNumber(filter.Lon))
		b.WriteString(")")
	}
}

func writeOut(b *strings.Builder, o *Out) {
	if o.InputSet != "" {
		b.WriteString(".")
		b.WriteString(o.InputSet)
		b.WriteString(" ")
	}
	b.WriteString("out")
	if o.Verbosity != "" && o.Verbosity != VerbosityBody {
		b.WriteString(" ")
		b.WriteString(string(o.Verbosity))
	}
	if o.Geometry != GeometryNone {
		b.WriteString(" ")
		b.WriteString(string(o.Geometry))
	}
	if o.Count {
		b.WriteString(" count")
	}
	if o.Quadtile {
		b.WriteString(" qt")
	}
	if o.Limit > 0 {
		b.WriteString(" ")
		b.WriteString(strconv.Itoa(o.Limit))
	}
}

// FormatNumber renders a coordinate or radius with the shortest exact
// decimal representation.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// IsWordRune reports whether r may appear in an unquoted key or value.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == ':' || r == '-' || r == '.'
}

// QuoteWord returns s unchanged when it can be written as a bare word and
// a double-quoted string literal otherwise.
func QuoteWord(s string) string {
	if s == "" {
		return `""`
	}
	for _, r := range s {
		if !IsWordRune(r) {
			return Quote(s)
		}
	}
	return s
}

// Quote renders s as a double-quoted Overpass QL string.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
