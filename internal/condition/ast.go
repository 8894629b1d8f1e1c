package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// EvalContext resolves dotted field paths against whatever is being matched.
// event.Event is the production implementation.
type EvalContext interface {
	Resolve(path []string) (interface{}, bool)
}

// Expr is a compiled condition. String renders it back in the text grammar
// accepted by Parse.
type Expr interface {
	Eval(ctx EvalContext) (bool, error)
	String() string
}

// Evaluate reports whether ctx satisfies expr. A nil expr matches.
func Evaluate(expr Expr, ctx EvalContext) (bool, error) {
	if expr == nil {
		return true, nil
	}
	return expr.Eval(ctx)
}

// Always matches every context. An empty predicate compiles to it.
type Always struct{}

func (Always) Eval(EvalContext) (bool, error) { return true, nil }
func (Always) String() string                 { return "true" }

// AllOf matches when every term matches, stopping at the first miss.
type AllOf []Expr

func (a AllOf) Eval(ctx EvalContext) (bool, error) {
	for _, term := range a {
		ok, err := term.Eval(ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (a AllOf) String() string {
	parts := make([]string, len(a))
	for i, term := range a {
		if _, isAny := term.(AnyOf); isAny {
			parts[i] = "(" + term.String() + ")"
			continue
		}
		parts[i] = term.String()
	}
	return strings.Join(parts, " AND ")
}

// AnyOf matches when some term matches, stopping at the first hit.
type AnyOf []Expr

func (a AnyOf) Eval(ctx EvalContext) (bool, error) {
	for _, term := range a {
		ok, err := term.Eval(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (a AnyOf) String() string {
	parts := make([]string, len(a))
	for i, term := range a {
		parts[i] = term.String()
	}
	return strings.Join(parts, " OR ")
}

// Not inverts Term. Evaluation errors are not inverted.
type Not struct {
	Term Expr
}

func (n *Not) Eval(ctx EvalContext) (bool, error) {
	ok, err := n.Term.Eval(ctx)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (n *Not) String() string {
	switch n.Term.(type) {
	case AllOf, AnyOf:
		return "NOT (" + n.Term.String() + ")"
	}
	return "NOT " + n.Term.String()
}

// Exists matches when Path resolves to a non-nil value.
type Exists struct {
	Path []string
}

func (e *Exists) Eval(ctx EvalContext) (bool, error) {
	v, ok := ctx.Resolve(e.Path)
	return ok && v != nil, nil
}

func (e *Exists) String() string { return "exists " + strings.Join(e.Path, ".") }

// Compare applies Op to two operands. A field that does not resolve
// compares as null.
type Compare struct {
	Left  Operand
	Op    Operator
	Right Operand
}

func (c *Compare) Eval(ctx EvalContext) (bool, error) {
	ok, err := apply(c.Op, c.Left.value(ctx), c.Right.value(ctx))
	if err != nil {
		return false, fmt.Errorf("%s: %w", c, err)
	}
	return ok, nil
}

func (c *Compare) String() string {
	return c.Left.String() + " " + string(c.Op) + " " + c.Right.String()
}

// Operand is one side of a Compare: a Field or a Literal.
type Operand interface {
	value(ctx EvalContext) interface{}
	String() string
}

// Field is a dotted path such as newValues.status, split on dots.
type Field []string

func (f Field) value(ctx EvalContext) interface{} {
	v, ok := ctx.Resolve(f)
	if !ok {
		return nil
	}
	return v
}

func (f Field) String() string { return strings.Join(f, ".") }

// Literal is a constant: string, decimal.Decimal, bool, nil or a list of
// those. Predicates decoded from JSON may also carry float64.
type Literal struct {
	Value interface{}
}

func (l Literal) value(EvalContext) interface{} { return l.Value }

func (l Literal) String() string { return formatValue(l.Value) }

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case decimal.Decimal:
		return x.String()
	case []interface{}:
		items := make([]string, len(x))
		for i, item := range x {
			items[i] = formatValue(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	}
	return fmt.Sprint(v)
}
