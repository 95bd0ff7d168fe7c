// Package parser turns Overpass QL text into an ast.Request.
//
// The parser is a hand-written recursive descent over runes. It supports the
// subset of Overpass QL used for tag and area lookups: settings, object
// queries with selectors and bbox/id/around filters, unions, recursions,
// named sets and out statements.
//
// Input text is normalised to NFC before parsing so that keys and values
// written with different Unicode compositions compare equal.
package parser

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/overpassql/internal/ast"
)

// maxUnionDepth bounds nested unions.
const maxUnionDepth = 64

var objectTypes = map[string]ast.ObjectType{
	"node":     ast.TypeNode,
	"way":      ast.TypeWay,
	"rel":      ast.TypeRelation,
	"relation": ast.TypeRelation,
	"nwr":      ast.TypeNWR,
	"nw":       ast.TypeNW,
	"nr":       ast.TypeNR,
	"wr":       ast.TypeWR,
}

// Parse parses a complete Overpass QL request.
// Errors are always *ParseError.
func Parse(query string) (*ast.Request, error) {
	p := &parser{scanner: newScanner(norm.NFC.String(query))}
	req, err := p.parseRequest()
	if err != nil {
		return nil, err
	}
	return req, nil
}

type parser struct {
	*scanner
	depth int
}

func (p *parser) parseRequest() (*ast.Request, error) {
	req := &ast.Request{}
	if err := p.skip(); err != nil {
		return nil, err
	}
	if p.peek() == '[' {
		settings, err := p.parseSettings()
		if err != nil {
			return nil, err
		}
		req.Settings = settings
	}

	current := &ast.Subrequest{}
	for {
		if err := p.skip(); err != nil {
			return nil, err
		}
		if p.peek() == eof {
			break
		}
		q, out, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if err := p.expect(';'); err != nil {
			return nil, err
		}
		if out != nil {
			current.Out = out
			req.Subrequests = append(req.Subrequests, current)
			current = &ast.Subrequest{}
			continue
		}
		current.Queries = append(current.Queries, q)
	}
	if len(current.Queries) > 0 {
		req.Subrequests = append(req.Subrequests, current)
	}
	if len(req.Subrequests) == 0 {
		return nil, p.errorf(p.pos(), errNoStatements)
	}
	return req, nil
}

// parseSettings parses [key:value]... ; at the start of a request.
func (p *parser) parseSettings() ([]ast.Setting, error) {
	var settings []ast.Setting
	for p.peek() == '[' {
		p.next()
		if err := p.skip(); err != nil {
			return nil, err
		}
		keyPos := p.pos()
		key := p.readWhile(isSetRune)
		if key == "" {
			return nil, p.errorf(keyPos, errUnexpected, p.describe(), "setting name")
		}
		if err := p.skip(); err != nil {
			return nil, err
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		valuePos := p.pos()
		value := strings.TrimSpace(p.readWhile(func(r rune) bool { return r != ']' }))
		if p.peek() != ']' {
			return nil, p.errorf(p.pos(), errUnexpected, p.describe(), "']'")
		}
		p.next()
		if value == "" {
			return nil, p.errorf(valuePos, "empty value for setting %q", key)
		}
		if key == "bbox" {
			if _, err := ParseBBoxSetting(value); err != nil {
				return nil, p.errorf(valuePos, "%s", err.Error())
			}
		}
		settings = append(settings, ast.Setting{Key: key, Value: value})
		if err := p.skip(); err != nil {
			return nil, err
		}
	}
	if err := p.expect(';'); err != nil {
		return nil, err
	}
	return settings, nil
}

// ParseBBoxSetting parses the value of a [bbox:s,w,n,e] setting.
func ParseBBoxSetting(value string) (ast.BBox, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return ast.BBox{}, &ParseError{Message: "bbox setting needs 4 comma-separated numbers"}
	}
	var nums [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return ast.BBox{}, &ParseError{Message: "invalid number " + strconv.Quote(strings.TrimSpace(part)) + " in bbox setting"}
		}
		nums[i] = f
	}
	return ast.BBox{South: nums[0], West: nums[1], North: nums[2], East: nums[3]}, nil
}

// parseStatement parses one statement without its terminating ';'.
// Exactly one of the returned query and out is non-nil on success.
func (p *parser) parseStatement() (ast.Query, *ast.Out, error) {
	pos := p.pos()
	switch r := p.peek(); {
	case r == '(':
		q, err := p.parseUnion()
		return q, nil, err
	case r == '>' || r == '<':
		q, err := p.parseRecurse("")
		return q, nil, err
	case r == '.':
		set, err := p.parseSetName()
		if err != nil {
			return nil, nil, err
		}
		if err := p.skip(); err != nil {
			return nil, nil, err
		}
		switch c := p.peek(); c {
		case '>', '<':
			q, err := p.parseRecurse(set)
			return q, nil, err
		case ';':
			return &ast.QueryItem{InputSet: set}, nil, nil
		case '-':
			out, err := p.parseOutputSet()
			if err != nil {
				return nil, nil, err
			}
			return &ast.QueryItem{InputSet: set, OutputSet: out}, nil, nil
		}
		wordPos := p.pos()
		if word := p.readWhile(isLetter); word == "out" {
			out, err := p.parseOut(set)
			return nil, out, err
		} else if word != "" {
			return nil, nil, p.errorf(wordPos, errUnexpected, strconv.Quote(word), "recursion, out or ';'")
		}
		return nil, nil, p.errorf(wordPos, errUnexpected, p.describe(), "recursion, out or ';'")
	case isLetter(r):
		word := p.readWhile(isLetter)
		if word == "out" {
			out, err := p.parseOut("")
			return nil, out, err
		}
		if t, ok := objectTypes[word]; ok {
			q, err := p.parseObjects(t)
			return q, nil, err
		}
		return nil, nil, p.errorf(pos, errUnexpected, strconv.Quote(word), "statement")
	default:
		return nil, nil, p.errorf(pos, errUnexpected, p.describe(), "statement")
	}
}

// parseQuery parses a statement that must be a query (used inside unions).
func (p *parser) parseQuery() (ast.Query, error) {
	pos := p.pos()
	q, out, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if out != nil {
		return nil, p.errorf(pos, "out statement is not allowed inside a union")
	}
	return q, nil
}

func (p *parser) parseObjects(t ast.ObjectType) (*ast.QueryObjects, error) {
	q := &ast.QueryObjects{Type: t}
	if err := p.skip(); err != nil {
		return nil, err
	}
	if p.peek() == '.' {
		set, err := p.parseSetName()
		if err != nil {
			return nil, err
		}
		q.InputSet = set
	}
	for {
		if err := p.skip(); err != nil {
			return nil, err
		}
		switch p.peek() {
		case '[':
			sel, err := p.parseSelector()
			if err != nil {
				return nil, err
			}
			q.Selectors = append(q.Selectors, sel)
		case '(':
			f, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			q.Filters = append(q.Filters, f)
		case '-':
			set, err := p.parseOutputSet()
			if err != nil {
				return nil, err
			}
			q.OutputSet = set
			return q, nil
		default:
			return q, nil
		}
	}
}

func (p *parser) parseSelector() (ast.Selector, error) {
	var sel ast.Selector
	p.next() // '['
	if err := p.skip(); err != nil {
		return sel, err
	}
	if p.peek() == '~' {
		return sel, p.errorf(p.pos(), "regular expressions on keys are not supported")
	}
	if p.peek() == '!' {
		p.next()
		sel.Negated = true
		sel.Operator = ast.OpExists
		if err := p.skip(); err != nil {
			return sel, err
		}
		key, err := p.parseWord("key")
		if err != nil {
			return sel, err
		}
		sel.Key = key
		if err := p.skip(); err != nil {
			return sel, err
		}
		return sel, p.expect(']')
	}

	key, err := p.parseWord("key")
	if err != nil {
		return sel, err
	}
	sel.Key = key
	if err := p.skip(); err != nil {
		return sel, err
	}

	opPos := p.pos()
	switch p.peek() {
	case ']':
		p.next()
		sel.Operator = ast.OpExists
		return sel, nil
	case '=':
		p.next()
		sel.Operator = ast.OpEqual
	case '~':
		p.next()
		sel.Operator = ast.OpMatch
	case '!':
		p.next()
		sel.Negated = true
		switch p.peek() {
		case '=':
			p.next()
			sel.Operator = ast.OpEqual
		case '~':
			p.next()
			sel.Operator = ast.OpMatch
		default:
			return sel, p.errorf(opPos, errUnexpected, p.describe(), "'=' or '~' after '!'")
		}
	default:
		return sel, p.errorf(opPos, errUnexpected, p.describe(), "']', '=', '!=', '~' or '!~'")
	}

	if err := p.skip(); err != nil {
		return sel, err
	}
	value, err := p.parseWord("value")
	if err != nil {
		return sel, err
	}
	sel.Value = value
	if err := p.skip(); err != nil {
		return sel, err
	}

	if p.peek() == ',' {
		flagPos := p.pos()
		p.next()
		if err := p.skip(); err != nil {
			return sel, err
		}
		if flag := p.readWhile(isLetter); flag != "i" {
			return sel, p.errorf(flagPos, "unknown selector flag %q", flag)
		}
		if sel.Operator != ast.OpMatch {
			return sel, p.errorf(flagPos, "case-insensitive flag requires '~' or '!~'")
		}
		sel.CaseInsensitive = true
		if err := p.skip(); err != nil {
			return sel, err
		}
	}
	return sel, p.expect(']')
}

// parseWord reads a quoted string or a bare word.
func (p *parser) parseWord(what string) (string, error) {
	if r := p.peek(); r == '"' || r == '\'' {
		return p.readQuoted()
	}
	pos := p.pos()
	word := p.readWhile(ast.IsWordRune)
	if word == "" {
		return "", p.errorf(pos, errUnexpected, p.describe(), what)
	}
	return word, nil
}

func (p *parser) parseFilter() (ast.Filter, error) {
	p.next() // '('
	if err := p.skip(); err != nil {
		return nil, err
	}

	pos := p.pos()
	if isLetter(p.peek()) {
		word := p.readWhile(isLetter)
		if err := p.skip(); err != nil {
			return nil, err
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		switch word {
		case "id":
			nums, err := p.parseNumberList()
			if err != nil {
				return nil, err
			}
			ids, err := p.toIDs(pos, nums)
			if err != nil {
				return nil, err
			}
			return ast.IDs{IDs: ids}, p.expect(')')
		case "around":
			nums, err := p.parseNumberList()
			if err != nil {
				return nil, err
			}
			if len(nums) != 3 {
				return nil, p.errorf(pos, "around filter needs radius, lat and lon")
			}
			return ast.Around{Radius: nums[0].value, Lat: nums[1].value, Lon: nums[2].value}, p.expect(')')
		default:
			return nil, p.errorf(pos, "unknown filter %q", word)
		}
	}

	nums, err := p.parseNumberList()
	if err != nil {
		return nil, err
	}
	switch len(nums) {
	case 1:
		ids, err := p.toIDs(pos, nums)
		if err != nil {
			return nil, err
		}
		return ast.IDs{IDs: ids}, p.expect(')')
	case 4:
		bbox := ast.BBox{South: nums[0].value, West: nums[1].value, North: nums[2].value, East: nums[3].value}
		return bbox, p.expect(')')
	default:
		return nil, p.errorf(pos, "filter needs 1 id or 4 bbox coordinates, got %d numbers", len(nums))
	}
}

type number struct {
	text  string
	value float64
	pos   Position
}

// parseNumberList reads one or more comma-separated numbers.
func (p *parser) parseNumberList() ([]number, error) {
	var nums []number
	for {
		if err := p.skip(); err != nil {
			return nil, err
		}
		pos := p.pos()
		text := p.readWhile(isNumberRune)
		if text == "" {
			return nil, p.errorf(pos, errUnexpected, p.describe(), "number")
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errorf(pos, errInvalidNumber, text)
		}
		nums = append(nums, number{text: text, value: f, pos: pos})
		if err := p.skip(); err != nil {
			return nil, err
		}
		if p.peek() != ',' {
			return nums, nil
		}
		p.next()
	}
}

func (p *parser) toIDs(pos Position, nums []number) ([]int64, error) {
	ids := make([]int64, len(nums))
	for i, n := range nums {
		id, err := strconv.ParseInt(n.text, 10, 64)
		if err != nil || id <= 0 {
			return nil, p.errorf(n.pos, "invalid element id %q", n.text)
		}
		ids[i] = id
	}
	return ids, nil
}

func (p *parser) parseUnion() (*ast.QueryUnion, error) {
	start := p.pos()
	p.next() // '('
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxUnionDepth {
		return nil, p.errorf(start, errTooDeep, maxUnionDepth)
	}

	u := &ast.QueryUnion{}
	for {
		if err := p.skip(); err != nil {
			return nil, err
		}
		if p.peek() == ')' {
			p.next()
			break
		}
		if p.peek() == eof {
			return nil, p.errorf(p.pos(), errUnexpected, p.describe(), "')'")
		}
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if err := p.expect(';'); err != nil {
			return nil, err
		}
		u.Queries = append(u.Queries, q)
	}

	if err := p.skip(); err != nil {
		return nil, err
	}
	if p.peek() == '-' {
		set, err := p.parseOutputSet()
		if err != nil {
			return nil, err
		}
		u.OutputSet = set
	}
	return u, nil
}

func (p *parser) parseRecurse(inputSet string) (*ast.QueryRecurse, error) {
	r := p.next()
	kind := ast.RecurseKind(string(r))
	if p.peek() == r {
		p.next()
		kind = ast.RecurseKind(string([]rune{r, r}))
	}
	q := &ast.QueryRecurse{Kind: kind, InputSet: inputSet}
	if err := p.skip(); err != nil {
		return nil, err
	}
	if p.peek() == '-' {
		set, err := p.parseOutputSet()
		if err != nil {
			return nil, err
		}
		q.OutputSet = set
	}
	return q, nil
}

func (p *parser) parseOut(inputSet string) (*ast.Out, error) {
	out := &ast.Out{InputSet: inputSet, Verbosity: ast.VerbosityBody}
	for {
		if err := p.skip(); err != nil {
			return nil, err
		}
		pos := p.pos()
		r := p.peek()
		switch {
		case isLetter(r):
			word := p.readWhile(isLetter)
			switch word {
			case "ids", "skel", "body", "tags", "meta":
				out.Verbosity = ast.Verbosity(word)
			case "geom", "center", "bb":
				out.Geometry = ast.Geometry(word)
			case "count":
				out.Count = true
			case "qt":
				out.Quadtile = true
			case "asc":
				out.Quadtile = false
			default:
				return nil, p.errorf(pos, "unknown out modifier %q", word)
			}
		case r >= '0' && r <= '9':
			text := p.readWhile(func(r rune) bool { return r >= '0' && r <= '9' })
			limit, err := strconv.Atoi(text)
			if err != nil || limit <= 0 {
				return nil, p.errorf(pos, "invalid out limit %q", text)
			}
			out.Limit = limit
		default:
			return out, nil
		}
	}
}

// parseSetName parses ".name" and returns name.
func (p *parser) parseSetName() (string, error) {
	if err := p.expect('.'); err != nil {
		return "", err
	}
	pos := p.pos()
	name := p.readWhile(isSetRune)
	if name == "" {
		return "", p.errorf(pos, errUnexpected, p.describe(), "set name")
	}
	return name, nil
}

// parseOutputSet parses "->.name".
func (p *parser) parseOutputSet() (string, error) {
	pos := p.pos()
	p.next() // '-'
	if p.peek() != '>' {
		return "", p.errorf(pos, errUnexpected, p.describe(), "'->'")
	}
	p.next()
	if err := p.skip(); err != nil {
		return "", err
	}
	return p.parseSetName()
}

// expect consumes r or fails.
func (p *parser) expect(r rune) error {
	if p.peek() != r {
		return p.errorf(p.pos(), errUnexpected, p.describe(), strconv.QuoteRune(r))
	}
	p.next()
	return nil
}
