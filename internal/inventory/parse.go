package inventory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseQuantity converts a decoded JSON or YAML value into a decimal.
func ParseQuantity(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(n)
	case nil:
		return decimal.Zero, fmt.Errorf("quantity is missing")
	}
	return decimal.Zero, fmt.Errorf("quantity %v (%T) is not a number", v, v)
}

// LinesFromList decodes [{itemId, warehouseId, quantity}, ...] as found in
// action params and event payloads.
func LinesFromList(raw interface{}) ([]Line, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of lines, got %T", raw)
	}
	lines := make([]Line, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("line %d: expected an object, got %T", i, item)
		}
		itemID, _ := m["itemId"].(string)
		warehouseID, _ := m["warehouseId"].(string)
		qty, err := ParseQuantity(m["quantity"])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		lines = append(lines, Line{ItemID: itemID, WarehouseID: warehouseID, Quantity: qty})
	}
	return lines, nil
}
