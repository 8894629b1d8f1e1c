package condition

import (
	"errors"
	"fmt"
	"strings"
)

// reserved words cannot be used as field paths.
var reserved = map[string]bool{
	"and": true, "or": true, "not": true, "exists": true,
	"true": true, "false": true, "null": true,
}

// Parse compiles a text condition. Grammar, loosest binding first:
//
//	or      = and { ("OR" | "||") and }
//	and     = unary { ("AND" | "&&") unary }
//	unary   = ("NOT" | "!") unary | "(" or ")" | "exists" path | operand op operand
//	operand = path | string | number | true | false | null | "[" literal { "," literal } "]"
//
// Keywords are case-insensitive and numbers are exact decimals, e.g.
//
//	newValues.status == "approved" AND (amount >= 50000 OR priority in ["urgent", "high"])
func Parse(src string) (Expr, error) {
	p := &parser{lx: lexer{src: src}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokEOF {
		return nil, errors.New("empty expression")
	}
	expr, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.unexpected("end of expression")
	}
	return expr, nil
}

type parser struct {
	lx  lexer
	tok token
}

func (p *parser) advance() error {
	tok, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) keyword(word string) bool {
	return p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, word)
}

func (p *parser) punct(s string) bool {
	return p.tok.kind == tokPunct && p.tok.text == s
}

func (p *parser) unexpected(want string) error {
	if p.tok.kind == tokEOF {
		return fmt.Errorf("expected %s, reached end of expression", want)
	}
	return fmt.Errorf("expected %s at offset %d, found %q", want, p.tok.pos, p.tok.text)
}

func (p *parser) or() (Expr, error) {
	return p.chain(p.and, "OR", "||", func(terms []Expr) Expr { return AnyOf(terms) })
}

func (p *parser) and() (Expr, error) {
	return p.chain(p.unary, "AND", "&&", func(terms []Expr) Expr { return AllOf(terms) })
}

// chain parses next { sep next } and joins two or more terms with join.
func (p *parser) chain(next func() (Expr, error), word, symbol string, join func([]Expr) Expr) (Expr, error) {
	first, err := next()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.keyword(word) || p.punct(symbol) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		term, err := next()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return join(terms), nil
}

func (p *parser) unary() (Expr, error) {
	switch {
	case p.keyword("NOT") || p.punct("!"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		term, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Not{Term: term}, nil

	case p.punct("("):
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if !p.punct(")") {
			return nil, p.unexpected(`")"`)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil

	case p.keyword("exists"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		path, err := p.path()
		if err != nil {
			return nil, err
		}
		return &Exists{Path: path}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (Expr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokPunct && p.tok.kind != tokIdent {
		return nil, p.unexpected("an operator")
	}
	op, err := ParseOperator(p.tok.text)
	if err != nil {
		return nil, p.unexpected("an operator")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	pos := p.tok.pos
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	if err := checkLiteral(op, right); err != nil {
		return nil, fmt.Errorf("%w at offset %d", err, pos)
	}
	return &Compare{Left: left, Op: op, Right: right}, nil
}

// checkLiteral rejects right-hand literals op can never accept.
func checkLiteral(op Operator, right Operand) error {
	lit, ok := right.(Literal)
	if !ok {
		return nil
	}
	switch op {
	case OpIn, OpNotIn:
		if _, isList := lit.Value.([]interface{}); !isList {
			return fmt.Errorf("operator %s needs a list", op)
		}
	case OpMatches:
		pattern, isString := lit.Value.(string)
		if !isString {
			return fmt.Errorf("operator %s needs a string pattern", op)
		}
		if _, err := regexFor(pattern); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) operand() (Operand, error) {
	tok := p.tok
	var lit Literal
	switch tok.kind {
	case tokString:
		lit.Value = tok.text
	case tokNumber:
		lit.Value = tok.num
	case tokIdent:
		switch strings.ToLower(tok.text) {
		case "true":
			lit.Value = true
		case "false":
			lit.Value = false
		case "null":
		default:
			path, err := p.path()
			if err != nil {
				return nil, err
			}
			return Field(path), nil
		}
	case tokPunct:
		if tok.text == "[" {
			return p.list()
		}
		return nil, p.unexpected("a field or value")
	default:
		return nil, p.unexpected("a field or value")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *parser) path() ([]string, error) {
	if p.tok.kind != tokIdent || reserved[strings.ToLower(p.tok.text)] {
		return nil, p.unexpected("a field path")
	}
	parts := strings.Split(p.tok.text, ".")
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("malformed field path %q at offset %d", p.tok.text, p.tok.pos)
		}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (p *parser) list() (Operand, error) {
	start := p.tok.pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	items := []interface{}{}
	for !p.punct("]") {
		if len(items) > 0 {
			if !p.punct(",") {
				return nil, p.unexpected(`"," or "]"`)
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		item, err := p.operand()
		if err != nil {
			return nil, err
		}
		lit, ok := item.(Literal)
		if !ok {
			return nil, fmt.Errorf("list at offset %d may only hold literal values", start)
		}
		if _, nested := lit.Value.([]interface{}); nested {
			return nil, fmt.Errorf("list at offset %d may not nest lists", start)
		}
		items = append(items, lit.Value)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return Literal{Value: items}, nil
}
