package condition

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Operator is a comparison operator, stored in its canonical spelling.
type Operator string

const (
	OpEq       Operator = "=="
	OpNeq      Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
	OpIn       Operator = "in"
	OpNotIn    Operator = "not_in"
)

// operatorNames maps symbols and the word forms used in JSON predicates.
var operatorNames = map[string]Operator{
	"==": OpEq, "eq": OpEq, "equals": OpEq,
	"!=": OpNeq, "neq": OpNeq, "not_equals": OpNeq,
	">": OpGt, "gt": OpGt,
	">=": OpGte, "gte": OpGte,
	"<": OpLt, "lt": OpLt,
	"<=": OpLte, "lte": OpLte,
	"contains": OpContains,
	"matches":  OpMatches,
	"in":       OpIn,
	"not_in":   OpNotIn,
}

// ParseOperator resolves an operator symbol or name, ignoring case.
func ParseOperator(s string) (Operator, error) {
	if op, ok := operatorNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return op, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// apply evaluates left op right. nil stands for null or a missing field: it
// equals only nil, is a member only of lists holding null, and never
// satisfies an ordering or text operator.
func apply(op Operator, left, right interface{}) (bool, error) {
	switch op {
	case OpEq:
		return equal(left, right), nil
	case OpNeq:
		return !equal(left, right), nil
	case OpIn, OpNotIn:
		found, err := member(op, left, right)
		if err != nil {
			return false, err
		}
		return found == (op == OpIn), nil
	}

	if left == nil || right == nil {
		return false, nil
	}
	switch op {
	case OpGt, OpGte, OpLt, OpLte:
		return order(op, left, right)
	case OpContains:
		return contains(left, right)
	case OpMatches:
		return matches(left, right)
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

// number converts v to an exact decimal. Numeric strings are accepted so
// amounts stored as "1250.00" compare by value.
func number(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		return number(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint32:
		return decimal.NewFromInt(int64(n)), true
	case json.Number:
		d, err := decimal.NewFromString(string(n))
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

// equal compares by numeric value when either side is a number, strictly
// for bools, and by printed form otherwise. Two strings always compare as
// text, so "01" != "1".
func equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	_, aText := a.(string)
	_, bText := b.(string)
	if !aText || !bText {
		if x, ok := number(a); ok {
			if y, ok := number(b); ok {
				return x.Equal(y)
			}
		}
	}
	x, aBool := a.(bool)
	y, bBool := b.(bool)
	if aBool || bBool {
		return aBool && bBool && x == y
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func order(op Operator, left, right interface{}) (bool, error) {
	l, lok := number(left)
	r, rok := number(right)
	if !lok || !rok {
		return false, fmt.Errorf("operator %s needs numeric operands, got %T and %T", op, left, right)
	}
	c := l.Cmp(r)
	switch op {
	case OpGt:
		return c > 0, nil
	case OpGte:
		return c >= 0, nil
	case OpLt:
		return c < 0, nil
	}
	return c <= 0, nil
}

// contains is substring match on strings, membership on lists and key
// presence on objects.
func contains(left, right interface{}) (bool, error) {
	switch l := left.(type) {
	case string:
		return strings.Contains(l, fmt.Sprint(right)), nil
	case []interface{}:
		for _, item := range l {
			if equal(item, right) {
				return true, nil
			}
		}
		return false, nil
	case map[string]interface{}:
		if key, ok := right.(string); ok {
			_, has := l[key]
			return has, nil
		}
	}
	return false, fmt.Errorf("operator contains needs a string, list or object on the left, got %T", left)
}

func member(op Operator, left, right interface{}) (bool, error) {
	if right == nil {
		return false, nil
	}
	list, ok := right.([]interface{})
	if !ok {
		return false, fmt.Errorf("operator %s needs a list on the right, got %T", op, right)
	}
	for _, item := range list {
		if equal(left, item) {
			return true, nil
		}
	}
	return false, nil
}

func matches(left, right interface{}) (bool, error) {
	text, ok := left.(string)
	if !ok {
		return false, fmt.Errorf("operator matches needs a string on the left, got %T", left)
	}
	pattern, ok := right.(string)
	if !ok {
		return false, fmt.Errorf("operator matches needs a string pattern, got %T", right)
	}
	re, err := regexFor(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}

var patterns sync.Map // string -> *regexp.Regexp

// regexFor compiles pattern once per process.
func regexFor(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	patterns.Store(pattern, re)
	return re, nil
}
