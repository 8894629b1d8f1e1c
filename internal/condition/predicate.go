package condition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Predicate is the structured condition stored on a workflow rule.
// Exactly one of All, Any, Not, Field or Expression is set on a node;
// the zero Predicate matches every event.
//
//	{"all": [{"field": "newValues.status", "operator": "eq", "value": "approved"},
//	         {"expression": "payload.amount >= 50000"}]}
type Predicate struct {
	All        []Predicate `json:"all,omitempty" yaml:"all,omitempty"`
	Any        []Predicate `json:"any,omitempty" yaml:"any,omitempty"`
	Not        *Predicate  `json:"not,omitempty" yaml:"not,omitempty"`
	Field      string      `json:"field,omitempty" yaml:"field,omitempty"`
	Operator   string      `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value      interface{} `json:"value,omitempty" yaml:"value,omitempty"`
	Expression string      `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// IsZero reports whether p carries no condition at all.
func (p Predicate) IsZero() bool {
	return len(p.All) == 0 && len(p.Any) == 0 && p.Not == nil && p.Field == "" && p.Expression == ""
}

// ParsePredicate decodes a JSON predicate. Empty input and "null" yield the
// zero Predicate.
func ParsePredicate(raw []byte) (Predicate, error) {
	var p Predicate
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s == "{}" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode conditions: %w", err)
	}
	return p, nil
}

// Compile turns a predicate into an evaluable AST.
func Compile(p Predicate) (Expr, error) {
	if p.IsZero() {
		return Always{}, nil
	}
	return compileNode(p, "conditions")
}

func compileNode(p Predicate, loc string) (Expr, error) {
	set := 0
	for _, b := range []bool{len(p.All) > 0, len(p.Any) > 0, p.Not != nil, p.Field != "", p.Expression != ""} {
		if b {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%s: exactly one of all/any/not/field/expression must be set", loc)
	}

	switch {
	case len(p.All) > 0:
		return compileChildren(p.All, loc+".all", func(terms []Expr) Expr { return AllOf(terms) })
	case len(p.Any) > 0:
		return compileChildren(p.Any, loc+".any", func(terms []Expr) Expr { return AnyOf(terms) })
	case p.Not != nil:
		inner, err := compileNode(*p.Not, loc+".not")
		if err != nil {
			return nil, err
		}
		return &Not{Term: inner}, nil
	case p.Expression != "":
		expr, err := Parse(p.Expression)
		if err != nil {
			return nil, fmt.Errorf("%s: parse %q: %w", loc, p.Expression, err)
		}
		return expr, nil
	}

	path := strings.Split(p.Field, ".")
	if strings.EqualFold(strings.TrimSpace(p.Operator), "exists") {
		return &Exists{Path: path}, nil
	}
	op, err := ParseOperator(p.Operator)
	if err != nil {
		return nil, fmt.Errorf("%s: field %s: %w", loc, p.Field, err)
	}
	right := Literal{Value: p.Value}
	if err := checkLiteral(op, right); err != nil {
		return nil, fmt.Errorf("%s: field %s: %w", loc, p.Field, err)
	}
	return &Compare{Left: Field(path), Op: op, Right: right}, nil
}

func compileChildren(children []Predicate, loc string, join func([]Expr) Expr) (Expr, error) {
	terms := make([]Expr, 0, len(children))
	for i, child := range children {
		term, err := compileNode(child, fmt.Sprintf("%s[%d]", loc, i))
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return join(terms), nil
}
