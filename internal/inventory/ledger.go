// Package inventory is the stock reservation ledger. It keeps
// 0 <= qtyReserved <= qtyOnHand for every (item, warehouse) balance across
// concurrent callers.
//
// Every batch runs in one store transaction. Each balance row is read under
// its row lock and written back with a version check; a version conflict
// retries the whole batch.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/metrics"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
)

const maxAttempts = 3

// Operation names a ledger mutation.
type Operation string

const (
	OpReserve Operation = "reserve"
	OpConsume Operation = "consume"
	OpRelease Operation = "release"
	OpAdd     Operation = "add"
	OpDeduct  Operation = "deduct"
)

// Line is one quantity movement against a balance.
type Line struct {
	ItemID      string           `json:"itemId"`
	WarehouseID string           `json:"warehouseId"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitCost    *decimal.Decimal `json:"unitCost,omitempty"` // Add only
}

// LineResult reports the outcome of one line.
type LineResult struct {
	Line Line `json:"line"`
	OK   bool `json:"ok"`

	// Err is set when the line was refused, e.g. INSUFFICIENT_STOCK.
	Err error `json:"-"`

	// Applied is the quantity actually moved. For Release it may be less
	// than requested.
	Applied decimal.Decimal `json:"applied"`

	// UnitCost and TotalCost are the weighted-average cost at consumption.
	UnitCost  decimal.Decimal `json:"unitCost"`
	TotalCost decimal.Decimal `json:"totalCost"`

	// Balance after the line.
	QtyOnHand   decimal.Decimal `json:"qtyOnHand"`
	QtyReserved decimal.Decimal `json:"qtyReserved"`
}

// BatchResult aggregates a batch. Success is true only when every line
// succeeded.
type BatchResult struct {
	Success bool         `json:"success"`
	Lines   []LineResult `json:"lines"`
}

// Status summarises a batch as none, partial or full.
func (r *BatchResult) Status() string {
	ok := 0
	for _, l := range r.Lines {
		if l.OK {
			ok++
		}
	}
	switch {
	case len(r.Lines) > 0 && ok == len(r.Lines):
		return "full"
	case ok > 0:
		return "partial"
	}
	return "none"
}

// TotalCost sums the line costs.
func (r *BatchResult) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.TotalCost)
	}
	return total
}

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event)
}

// Ledger applies stock movements.
type Ledger struct {
	db     *store.DB
	pub    Publisher
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPublisher publishes stock:* events after each committed batch.
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.pub = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Ledger) { l.logger = lg }
}

// New creates a ledger over db.
func New(db *store.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Reserve holds qty of available stock.
func (l *Ledger) Reserve(ctx context.Context, line Line) (LineResult, error) {
	return l.single(ctx, OpReserve, line)
}

// Consume converts a hold into a physical deduction.
func (l *Ledger) Consume(ctx context.Context, line Line) (LineResult, error) {
	return l.single(ctx, OpConsume, line)
}

// Release cancels up to qty of a hold.
func (l *Ledger) Release(ctx context.Context, line Line) (LineResult, error) {
	return l.single(ctx, OpRelease, line)
}

// Add receives stock.
func (l *Ledger) Add(ctx context.Context, line Line) (LineResult, error) {
	return l.single(ctx, OpAdd, line)
}

// Deduct ships stock that was never reserved.
func (l *Ledger) Deduct(ctx context.Context, line Line) (LineResult, error) {
	return l.single(ctx, OpDeduct, line)
}

// ReserveBatch reserves every line it can. Lines without headroom are
// reported and leave their balance untouched; the rest are committed.
func (l *Ledger) ReserveBatch(ctx context.Context, lines []Line) (*BatchResult, error) {
	return l.batch(ctx, OpReserve, lines)
}

// ConsumeBatch consumes reserved stock for each line.
func (l *Ledger) ConsumeBatch(ctx context.Context, lines []Line) (*BatchResult, error) {
	return l.batch(ctx, OpConsume, lines)
}

// ReleaseBatch releases holds for each line.
func (l *Ledger) ReleaseBatch(ctx context.Context, lines []Line) (*BatchResult, error) {
	return l.batch(ctx, OpRelease, lines)
}

// AddBatch receives stock for each line.
func (l *Ledger) AddBatch(ctx context.Context, lines []Line) (*BatchResult, error) {
	return l.batch(ctx, OpAdd, lines)
}

// DeductBatch ships stock for each line.
func (l *Ledger) DeductBatch(ctx context.Context, lines []Line) (*BatchResult, error) {
	return l.batch(ctx, OpDeduct, lines)
}

// Balance reads the current balance. A missing row is a zero balance.
func (l *Ledger) Balance(ctx context.Context, itemID, warehouseID string) (*store.StockBalance, error) {
	b, err := l.db.GetStockBalance(ctx, itemID, warehouseID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.StockBalance{ItemID: itemID, WarehouseID: warehouseID}, nil
	}
	return b, err
}

func (l *Ledger) single(ctx context.Context, op Operation, line Line) (LineResult, error) {
	res, err := l.batch(ctx, op, []Line{line})
	if err != nil {
		return LineResult{Line: line}, err
	}
	return res.Lines[0], nil
}

func (l *Ledger) batch(ctx context.Context, op Operation, lines []Line) (*BatchResult, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation("lines", "at least one line is required")
	}
	for i, line := range lines {
		if err := validateLine(op, line); err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
	}

	var (
		res *BatchResult
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err = l.apply(ctx, op, lines)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		l.logger.Warn("stock batch conflict, retrying", "op", op, "attempt", attempt)
	}
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.Wrap(apperr.ErrConcurrentModification, err, "stock %s", op)
	}
	if err != nil {
		return nil, err
	}

	for _, lr := range res.Lines {
		outcome := "ok"
		if !lr.OK {
			outcome = "refused"
			l.logger.Warn("stock line refused", "op", op, "item_id", lr.Line.ItemID,
				"warehouse_id", lr.Line.WarehouseID, "qty", lr.Line.Quantity.String(), "err", lr.Err)
		}
		metrics.StockOperations.WithLabelValues(string(op), outcome).Inc()
	}
	l.publish(ctx, op, res)
	return res, nil
}

func (l *Ledger) apply(ctx context.Context, op Operation, lines []Line) (*BatchResult, error) {
	res := &BatchResult{Success: true, Lines: make([]LineResult, 0, len(lines))}
	err := l.db.WithTx(ctx, func(tx *store.Tx) error {
		res.Lines = res.Lines[:0]
		res.Success = true
		now := l.now().UTC()
		for _, line := range lines {
			lr, err := applyLine(ctx, tx, op, line, now)
			if err != nil {
				return err
			}
			if !lr.OK {
				res.Success = false
			}
			res.Lines = append(res.Lines, lr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func applyLine(ctx context.Context, tx *store.Tx, op Operation, line Line, now time.Time) (LineResult, error) {
	lr := LineResult{Line: line, Applied: decimal.Zero, UnitCost: decimal.Zero, TotalCost: decimal.Zero}
	qty := line.Quantity

	b, err := tx.LockStockBalance(ctx, line.ItemID, line.WarehouseID)
	missing := errors.Is(err, store.ErrNotFound)
	if err != nil && !missing {
		return lr, err
	}
	if missing {
		b = &store.StockBalance{ItemID: line.ItemID, WarehouseID: line.WarehouseID}
	}
	lr.QtyOnHand, lr.QtyReserved = b.QtyOnHand, b.QtyReserved

	switch op {
	case OpReserve:
		if b.QtyReserved.Add(qty).GreaterThan(b.QtyOnHand) {
			lr.Err = insufficient(line, "available", b.Available())
			return lr, nil
		}
		b.QtyReserved = b.QtyReserved.Add(qty)
		lr.Applied = qty

	case OpConsume:
		if b.QtyReserved.LessThan(qty) {
			lr.Err = insufficient(line, "reserved", b.QtyReserved)
			return lr, nil
		}
		if b.QtyOnHand.LessThan(qty) {
			lr.Err = insufficient(line, "on hand", b.QtyOnHand)
			return lr, nil
		}
		b.QtyOnHand = b.QtyOnHand.Sub(qty)
		b.QtyReserved = b.QtyReserved.Sub(qty)
		lr.Applied = qty
		lr.UnitCost = b.UnitCost
		lr.TotalCost = b.UnitCost.Mul(qty)

	case OpRelease:
		release := decimal.Min(qty, b.QtyReserved)
		if !release.IsPositive() {
			lr.OK = true
			return lr, nil
		}
		b.QtyReserved = b.QtyReserved.Sub(release)
		lr.Applied = release

	case OpAdd:
		if line.UnitCost != nil {
			b.UnitCost = weightedCost(b.QtyOnHand, b.UnitCost, qty, *line.UnitCost)
		}
		b.QtyOnHand = b.QtyOnHand.Add(qty)
		lr.Applied = qty

	case OpDeduct:
		if b.QtyOnHand.Sub(qty).LessThan(b.QtyReserved) {
			lr.Err = insufficient(line, "unreserved", b.Available())
			return lr, nil
		}
		b.QtyOnHand = b.QtyOnHand.Sub(qty)
		lr.Applied = qty
		lr.UnitCost = b.UnitCost
		lr.TotalCost = b.UnitCost.Mul(qty)

	default:
		return lr, fmt.Errorf("inventory: unknown operation %q", op)
	}

	b.UpdatedAt = now
	if missing {
		if op != OpAdd {
			return lr, fmt.Errorf("inventory: %s on missing balance %s@%s", op, line.ItemID, line.WarehouseID)
		}
		err = tx.InsertStockBalance(ctx, b)
	} else {
		err = tx.UpdateStockBalance(ctx, b)
	}
	if err != nil {
		return lr, err
	}
	lr.OK = true
	lr.QtyOnHand, lr.QtyReserved = b.QtyOnHand, b.QtyReserved
	return lr, nil
}

// weightedCost blends the existing average cost with incoming stock.
func weightedCost(onHand, cost, qty, incoming decimal.Decimal) decimal.Decimal {
	if !onHand.IsPositive() {
		return incoming
	}
	total := onHand.Mul(cost).Add(qty.Mul(incoming))
	return total.DivRound(onHand.Add(qty), 6)
}

func insufficient(line Line, what string, have decimal.Decimal) error {
	return apperr.New(apperr.ErrInsufficientStock, "%s@%s: requested %s, %s %s",
		line.ItemID, line.WarehouseID, line.Quantity.String(), what, have.String())
}

func validateLine(op Operation, line Line) error {
	switch {
	case line.ItemID == "":
		return apperr.Validation("itemId", "is required")
	case line.WarehouseID == "":
		return apperr.Validation("warehouseId", "is required")
	case !line.Quantity.IsPositive():
		return apperr.Validation("quantity", "must be positive")
	case line.UnitCost != nil && op != OpAdd:
		return apperr.Validation("unitCost", "only allowed when adding stock")
	case line.UnitCost != nil && line.UnitCost.IsNegative():
		return apperr.Validation("unitCost", "must not be negative")
	}
	return nil
}

var opEvents = map[Operation]string{
	OpReserve: event.StockReserved,
	OpConsume: event.StockConsumed,
	OpRelease: event.StockReleased,
}

func (l *Ledger) publish(ctx context.Context, op Operation, res *BatchResult) {
	evType, ok := opEvents[op]
	if l.pub == nil || !ok {
		return
	}
	lines := make([]interface{}, 0, len(res.Lines))
	for _, lr := range res.Lines {
		lines = append(lines, map[string]interface{}{
			"itemId":      lr.Line.ItemID,
			"warehouseId": lr.Line.WarehouseID,
			"quantity":    lr.Line.Quantity.InexactFloat64(),
			"applied":     lr.Applied.InexactFloat64(),
			"ok":          lr.OK,
		})
	}
	l.pub.Publish(ctx, event.Event{
		Type:       evType,
		EntityType: "stock",
		Action:     string(op),
		Payload: map[string]interface{}{
			"success": res.Success,
			"status":  res.Status(),
			"lines":   lines,
		},
	})
}
