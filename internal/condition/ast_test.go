package condition

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fields is a nested-map EvalContext.
type fields map[string]interface{}

func (f fields) Resolve(path []string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(f)
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, len(path) > 0
}

func ctx(kv ...interface{}) fields {
	f := fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[kv[i].(string)] = kv[i+1]
	}
	return f
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name    string
		expr    string
		ctx     EvalContext
		want    bool
		wantErr bool
	}{
		{name: "gt true", expr: "amount > 1000", ctx: ctx("amount", float64(1500)), want: true},
		{name: "gt false", expr: "amount > 1000", ctx: ctx("amount", float64(500))},
		{name: "gte equal int", expr: "amount >= 1000", ctx: ctx("amount", 1000), want: true},
		{name: "decimal string amount", expr: "amount >= 50000", ctx: ctx("amount", "50000.00"), want: true},
		{name: "decimal payload", expr: "amount < 0.3", ctx: ctx("amount", decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.1"))), want: true},
		{name: "json number", expr: "qty == 4", ctx: ctx("qty", json.Number("4")), want: true},
		{name: "negative literal", expr: "delta < -5", ctx: ctx("delta", float64(-10)), want: true},
		{name: "eq string", expr: `status == "approved"`, ctx: ctx("status", "approved"), want: true},
		{name: "single quotes", expr: `status == 'approved'`, ctx: ctx("status", "approved"), want: true},
		{name: "strings compare as text", expr: `code == "01"`, ctx: ctx("code", "1")},
		{name: "number vs numeric string", expr: `code == 1`, ctx: ctx("code", "1"), want: true},
		{name: "neq string", expr: `status != "approved"`, ctx: ctx("status", "draft"), want: true},
		{name: "bool", expr: "urgent == true", ctx: ctx("urgent", true), want: true},
		{name: "bool vs string", expr: `urgent == "true"`, ctx: ctx("urgent", true)},
		{
			name: "nested path",
			expr: `newValues.status == "approved"`,
			ctx:  ctx("newValues", map[string]interface{}{"status": "approved"}),
			want: true,
		},
		{
			name: "AND both true",
			expr: `status == "approved" AND amount > 500`,
			ctx:  ctx("status", "approved", "amount", float64(1000)),
			want: true,
		},
		{
			name: "symbolic and",
			expr: `status == "approved" && amount > 500`,
			ctx:  ctx("status", "approved", "amount", float64(10)),
		},
		{
			name: "OR first true",
			expr: `status == "approved" OR amount > 500`,
			ctx:  ctx("status", "approved", "amount", float64(10)),
			want: true,
		},
		{
			name: "AND binds tighter than OR",
			expr: `a == 1 OR b == 1 AND c == 1`,
			ctx:  ctx("a", 1, "b", 0, "c", 0),
			want: true,
		},
		{
			name: "parens regroup",
			expr: `(a == 1 OR b == 1) AND c == 1`,
			ctx:  ctx("a", 1, "b", 0, "c", 0),
		},
		{name: "NOT", expr: "NOT amount > 1000", ctx: ctx("amount", float64(500)), want: true},
		{name: "bang", expr: `!(status == "draft")`, ctx: ctx("status", "issued"), want: true},
		{name: "contains", expr: `warehouse contains "RYD"`, ctx: ctx("warehouse", "WH-RYD-01"), want: true},
		{name: "contains list", expr: `tags contains "urgent"`, ctx: ctx("tags", []interface{}{"urgent"}), want: true},
		{name: "contains key", expr: `newValues contains "status"`, ctx: ctx("newValues", map[string]interface{}{"status": "x"}), want: true},
		{name: "in list", expr: `status in ["approved", "issued"]`, ctx: ctx("status", "issued"), want: true},
		{name: "in list miss", expr: `status in ["approved"]`, ctx: ctx("status", "draft")},
		{name: "not_in", expr: `status not_in ["cancelled"]`, ctx: ctx("status", "draft"), want: true},
		{name: "exists", expr: "exists lines", ctx: ctx("lines", []interface{}{}), want: true},
		{name: "exists missing", expr: "exists lines", ctx: ctx()},
		{name: "exists null", expr: "exists lines", ctx: ctx("lines", nil)},
		{name: "matches", expr: `code matches "^MI-[0-9]+$"`, ctx: ctx("code", "MI-0042"), want: true},
		{name: "missing field orders false", expr: "missing > 10", ctx: ctx("amount", float64(100))},
		{name: "missing field equals null", expr: "missing == null", ctx: ctx(), want: true},
		{name: "missing field not equal", expr: `missing != "x"`, ctx: ctx(), want: true},
		{name: "missing field not in", expr: `missing not_in ["x"]`, ctx: ctx(), want: true},
		{name: "field on right", expr: "requested > available", ctx: ctx("requested", 5, "available", 3), want: true},
		{name: "numeric op on string", expr: "status > 10", ctx: ctx("status", "x"), wantErr: true},
		{name: "matches on number", expr: `qty matches "1"`, ctx: ctx("qty", 1), wantErr: true},
		{name: "in against scalar field", expr: "status in other", ctx: ctx("status", "a", "other", "a"), wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expr, err := Parse(tc.expr)
			require.NoError(t, err, "Parse(%q)", tc.expr)
			got, err := Evaluate(expr, tc.ctx)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, tc.expr)
		})
	}
}

func TestEvaluateErrorNamesComparison(t *testing.T) {
	expr, err := Parse("status > 10")
	require.NoError(t, err)
	_, err = Evaluate(expr, ctx("status", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status > 10")
}

func TestEvaluateShortCircuits(t *testing.T) {
	// The right-hand term would fail if evaluated.
	expr, err := Parse(`status == "draft" OR status > 10`)
	require.NoError(t, err)
	ok, err := Evaluate(expr, ctx("status", "draft"))
	require.NoError(t, err)
	assert.True(t, ok)

	expr, err = Parse(`status == "issued" AND status > 10`)
	require.NoError(t, err)
	ok, err = Evaluate(expr, ctx("status", "draft"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateNil(t *testing.T) {
	ok, err := Evaluate(nil, ctx())
	require.NoError(t, err)
	assert.True(t, ok)
}
