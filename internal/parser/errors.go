package parser

import "fmt"

// Position is a location in the query text.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number, counted in runes
	Offset int // 0-based byte offset
}

// IsValid returns true if the position is valid (line > 0).
func (p Position) IsValid() bool {
	return p.Line > 0
}

// ParseError reports query text that does not conform to the grammar.
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	if !e.Pos.IsValid() {
		return e.Message
	}
	return fmt.Sprintf("line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Common error messages
const (
	errUnexpected        = "unexpected %s, expected %s"
	errUnterminatedStr   = "unterminated string literal"
	errUnterminatedBlock = "unterminated block comment"
	errInvalidNumber     = "invalid number %q"
	errNoStatements      = "query contains no statements"
	errTooDeep           = "union nesting exceeds %d levels"
)
