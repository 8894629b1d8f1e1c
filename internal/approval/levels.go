package approval

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/docflow/internal/transition"
)

// Level is one row of a threshold table. MaxAmount nil means unbounded.
type Level struct {
	MinAmount    decimal.Decimal
	MaxAmount    *decimal.Decimal
	ApproverRole string
	SLAHours     int
}

// Contains reports whether amount is in [MinAmount, MaxAmount).
func (l Level) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(l.MinAmount) {
		return false
	}
	return l.MaxAmount == nil || amount.LessThan(*l.MaxAmount)
}

// Thresholds maps each document type to its ordered threshold table.
type Thresholds map[transition.DocumentType][]Level

// Select returns the 1-based level number and row of the first range
// containing amount.
func Select(levels []Level, amount decimal.Decimal) (int, Level, bool) {
	for i, l := range levels {
		if l.Contains(amount) {
			return i + 1, l, true
		}
	}
	return 0, Level{}, false
}

// Validate checks that every table is well formed.
func (t Thresholds) Validate() error {
	for dt, levels := range t {
		if !transition.Known(dt) {
			return fmt.Errorf("approval thresholds: unknown document type %q", dt)
		}
		for i, l := range levels {
			switch {
			case l.ApproverRole == "":
				return fmt.Errorf("approval thresholds %s[%d]: approver role is required", dt, i)
			case l.SLAHours <= 0:
				return fmt.Errorf("approval thresholds %s[%d]: sla hours must be positive", dt, i)
			case l.MaxAmount != nil && !l.MaxAmount.GreaterThan(l.MinAmount):
				return fmt.Errorf("approval thresholds %s[%d]: max amount must exceed min amount", dt, i)
			}
		}
	}
	return nil
}
