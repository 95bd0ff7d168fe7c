package parser

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

const eof = -1

// scanner walks the query text rune by rune and tracks the current position.
type scanner struct {
	src  string
	off  int // byte offset of the current rune
	line int
	col  int
}

func newScanner(src string) *scanner {
	return &scanner{src: src, line: 1, col: 1}
}

// peek returns the current rune without consuming it.
func (s *scanner) peek() rune {
	if s.off >= len(s.src) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(s.src[s.off:])
	return r
}

// peekNext returns the rune after the current one.
func (s *scanner) peekNext() rune {
	if s.off >= len(s.src) {
		return eof
	}
	_, size := utf8.DecodeRuneInString(s.src[s.off:])
	if s.off+size >= len(s.src) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(s.src[s.off+size:])
	return r
}

// next consumes and returns the current rune.
func (s *scanner) next() rune {
	if s.off >= len(s.src) {
		return eof
	}
	r, size := utf8.DecodeRuneInString(s.src[s.off:])
	s.off += size
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return r
}

func (s *scanner) pos() Position {
	return Position{Line: s.line, Column: s.col, Offset: s.off}
}

func (s *scanner) errorf(pos Position, format string, args ...any) *ParseError {
	return &ParseError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// skip consumes whitespace, // line comments and /* */ block comments.
func (s *scanner) skip() error {
	for {
		r := s.peek()
		switch {
		case r == eof:
			return nil
		case unicode.IsSpace(r):
			s.next()
		case r == '/' && s.peekNext() == '/':
			for r := s.peek(); r != eof && r != '\n'; r = s.peek() {
				s.next()
			}
		case r == '/' && s.peekNext() == '*':
			start := s.pos()
			s.next()
			s.next()
			for {
				if s.peek() == eof {
					return s.errorf(start, errUnterminatedBlock)
				}
				if s.peek() == '*' && s.peekNext() == '/' {
					s.next()
					s.next()
					break
				}
				s.next()
			}
		default:
			return nil
		}
	}
}

// readWhile consumes runes while accept returns true.
func (s *scanner) readWhile(accept func(rune) bool) string {
	start := s.off
	for r := s.peek(); r != eof && accept(r); r = s.peek() {
		s.next()
	}
	return s.src[start:s.off]
}

// readQuoted consumes a '...' or "..." string and returns its unescaped value.
// The current rune must be the opening quote.
func (s *scanner) readQuoted() (string, error) {
	start := s.pos()
	quote := s.next()
	var out []rune
	for {
		r := s.next()
		switch r {
		case eof:
			return "", s.errorf(start, errUnterminatedStr)
		case quote:
			return string(out), nil
		case '\\':
			esc := s.next()
			switch esc {
			case eof:
				return "", s.errorf(start, errUnterminatedStr)
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			default:
				out = append(out, esc)
			}
		default:
			out = append(out, r)
		}
	}
}

// describe renders the current rune for error messages.
func (s *scanner) describe() string {
	r := s.peek()
	if r == eof {
		return "end of query"
	}
	return fmt.Sprintf("%q", r)
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func isSetRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isNumberRune(r rune) bool {
	return (r >= '0' && r <= '9') || r == '-' || r == '+' || r == '.' || r == 'e' || r == 'E'
}
