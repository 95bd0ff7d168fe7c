// Package ast defines the parsed form of an Overpass QL request.
//
// The tree is produced by the parser package and consumed by sqlgen and the
// bridge. It has no dependencies on other internal packages.
//
// STRUCTURE:
//
//	Request
//	  Settings   [out:json][timeout:25][bbox:...]
//	  Subrequests
//	    Subrequest            one independent SQL statement
//	      Queries             QueryObjects | QueryUnion | QueryRecurse
//	      Out                 terminating out statement (optional)
//
// SEALED INTERFACES:
//
// Query and Filter are sealed with marker methods so that consumers can use
// exhaustive type switches:
//
//	switch q := query.(type) {
//	case *QueryObjects:
//	case *QueryUnion:
//	case *QueryRecurse:
//	}
//
// IMMUTABILITY:
//
// Nodes are never mutated after parsing. Values handed out beyond the owning
// request (for example extracted Selectors) are deep copies made with Clone,
// so they stay valid independently of the request they came from.
//
// SOURCE TEXT:
//
// Source methods render nodes back into canonical Overpass QL. Parsing the
// canonical text yields a structurally equal tree.
package ast
