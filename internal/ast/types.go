package ast

// DefaultSet is the name of the implicit set every statement reads from and
// writes to when no explicit set is named.
const DefaultSet = "_"

// Request is the root of a parsed Overpass QL query.
type Request struct {
	Settings    []Setting
	Subrequests []*Subrequest
}

// Setting is one [key:value] entry of the request header.
type Setting struct {
	Key   string
	Value string
}

// Setting returns the value of the named setting, if present.
// Later entries win over earlier ones.
func (r *Request) Setting(key string) (string, bool) {
	var (
		value string
		found bool
	)
	for _, s := range r.Settings {
		if s.Key == key {
			value, found = s.Value, true
		}
	}
	return value, found
}

// Subrequest is a run of queries terminated by an out statement.
//
// Each subrequest compiles to one independent SQL statement. Out is nil when
// the request ends with queries that have no trailing out statement; such a
// subrequest is compiled as if it ended with a plain "out;".
type Subrequest struct {
	Queries []Query
	Out     *Out
}

// Query is a statement that produces a set of OSM elements.
//
// This is a sealed interface - only types in this package implement it.
//
// Query types:
//   - QueryObjects: node/way/relation lookup with selectors and filters
//   - QueryUnion: parenthesised block of queries whose results are merged
//   - QueryRecurse: membership recursion (>, >>, <, <<)
//   - QueryItem: reference to a named set (._; or .a->.b;)
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// ObjectType is the element type an object query selects.
type ObjectType string

const (
	TypeNode     ObjectType = "node"
	TypeWay      ObjectType = "way"
	TypeRelation ObjectType = "relation"
	TypeNWR      ObjectType = "nwr"
	TypeNW       ObjectType = "nw"
	TypeNR       ObjectType = "nr"
	TypeWR       ObjectType = "wr"
)

// Codes returns the single-letter objtype codes ("n", "w", "r") covered by t.
func (t ObjectType) Codes() []string {
	switch t {
	case TypeNode:
		return []string{"n"}
	case TypeWay:
		return []string{"w"}
	case TypeRelation:
		return []string{"r"}
	case TypeNW:
		return []string{"n", "w"}
	case TypeNR:
		return []string{"n", "r"}
	case TypeWR:
		return []string{"w", "r"}
	default:
		return []string{"n", "w", "r"}
	}
}

// QueryObjects selects elements of one or more types.
//
// Example:
//
//	node.shops["amenity"="cafe"](50.7,7.1,50.8,7.2)->.cafes;
//
// InputSet and OutputSet are empty when the statement uses the default set.
type QueryObjects struct {
	Type      ObjectType
	InputSet  string
	Selectors Selectors
	Filters   []Filter
	OutputSet string
}

func (*QueryObjects) queryNode() {}

// QueryUnion merges the results of the queries it contains.
type QueryUnion struct {
	Queries   []Query
	OutputSet string
}

func (*QueryUnion) queryNode() {}

// RecurseKind is the direction of a recursion statement.
type RecurseKind string

const (
	RecurseDown    RecurseKind = ">"
	RecurseDownRel RecurseKind = ">>"
	RecurseUp      RecurseKind = "<"
	RecurseUpRel   RecurseKind = "<<"
)

// Recursive reports whether the recursion follows memberships transitively.
func (k RecurseKind) Recursive() bool {
	return k == RecurseDownRel || k == RecurseUpRel
}

// Down reports whether the recursion goes from parents to members.
func (k RecurseKind) Down() bool {
	return k == RecurseDown || k == RecurseDownRel
}

// QueryRecurse follows way-node and relation-member links from its input set.
// Recursions carry no selectors.
type QueryRecurse struct {
	Kind      RecurseKind
	InputSet  string
	OutputSet string
}

func (*QueryRecurse) queryNode() {}

// QueryItem copies a named set, as in "._;" inside a union or ".a->.b;".
// InputSet is always set.
type QueryItem struct {
	InputSet  string
	OutputSet string
}

func (*QueryItem) queryNode() {}

// Operator is the comparison a selector applies to a tag.
type Operator int

const (
	// OpExists tests for presence of the key: [k] or [!k].
	OpExists Operator = iota
	// OpEqual compares the value: [k=v] or [k!=v].
	OpEqual
	// OpMatch applies a regular expression to the value: [k~v] or [k!~v].
	OpMatch
)

// String returns the source form of the operator (without negation).
func (o Operator) String() string {
	switch o {
	case OpExists:
		return ""
	case OpEqual:
		return "="
	case OpMatch:
		return "~"
	default:
		return "?"
	}
}

// Selector is one tag predicate of an object query.
//
// Negated flips the predicate: [!k], [k!=v] and [k!~v]. A negated
// predicate is satisfied when the underlying test is false.
type Selector struct {
	Key             string
	Operator        Operator
	Value           string
	Negated         bool
	CaseInsensitive bool
}

// Selectors is the ordered predicate list of an object query.
type Selectors []Selector

// Filter is a non-tag restriction of an object query.
//
// This is a sealed interface - only types in this package implement it.
type Filter interface {
	filterNode() // Marker method - seals interface to this package
}

// BBox restricts results to a bounding box given in WGS84 degrees.
type BBox struct {
	South float64
	West  float64
	North float64
	East  float64
}

func (BBox) filterNode() {}

// IDs restricts results to the given element ids.
type IDs struct {
	IDs []int64
}

func (IDs) filterNode() {}

// Around restricts results to elements within Radius of a WGS84 point.
type Around struct {
	Radius float64
	Lat    float64
	Lon    float64
}

func (Around) filterNode() {}

// Verbosity controls which columns an out statement returns.
type Verbosity string

const (
	VerbosityIDs  Verbosity = "ids"
	VerbositySkel Verbosity = "skel"
	VerbosityBody Verbosity = "body"
	VerbosityTags Verbosity = "tags"
	VerbosityMeta Verbosity = "meta"
)

// Geometry controls how an out statement renders element geometry.
type Geometry string

const (
	GeometryNone   Geometry = ""
	GeometryFull   Geometry = "geom"
	GeometryCenter Geometry = "center"
	GeometryBBox   Geometry = "bb"
)

// Out terminates a subrequest and selects what is returned.
//
// The zero value (after DefaultOut) is "out;" on the default set.
type Out struct {
	InputSet  string
	Verbosity Verbosity
	Geometry  Geometry
	Count     bool
	Quadtile  bool
	Limit     int
}

// DefaultOut returns the out statement used for subrequests without one.
func DefaultOut() *Out {
	return &Out{Verbosity: VerbosityBody}
}
