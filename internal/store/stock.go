package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StockBalance is the on-hand and reserved quantity of one item in one
// warehouse.
type StockBalance struct {
	ItemID      string
	WarehouseID string
	QtyOnHand   decimal.Decimal
	QtyReserved decimal.Decimal
	UnitCost    decimal.Decimal
	Version     int64
	UpdatedAt   time.Time
}

// Available is on-hand stock not held by a reservation.
func (b *StockBalance) Available() decimal.Decimal {
	return b.QtyOnHand.Sub(b.QtyReserved)
}

const stockColumns = `item_id, warehouse_id, qty_on_hand, qty_reserved, unit_cost, version, updated_at`

// GetStockBalance reads a balance without locking.
func (c conn) GetStockBalance(ctx context.Context, itemID, warehouseID string) (*StockBalance, error) {
	return c.getStock(ctx, itemID, warehouseID, "")
}

// LockStockBalance reads a balance and holds its row lock until the
// transaction ends.
func (t *Tx) LockStockBalance(ctx context.Context, itemID, warehouseID string) (*StockBalance, error) {
	return t.getStock(ctx, itemID, warehouseID, t.forUpdate())
}

func (c conn) getStock(ctx context.Context, itemID, warehouseID, suffix string) (*StockBalance, error) {
	row := c.queryRow(ctx, `SELECT `+stockColumns+` FROM stock_balances WHERE item_id = ? AND warehouse_id = ?`+suffix,
		itemID, warehouseID)
	var (
		b       StockBalance
		updated int64
	)
	err := row.Scan(&b.ItemID, &b.WarehouseID, &b.QtyOnHand, &b.QtyReserved, &b.UnitCost, &b.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stock %s@%s: %w", itemID, warehouseID, err)
	}
	b.UpdatedAt = fromMillis(updated)
	return &b, nil
}

// InsertStockBalance creates a balance row. Returns ErrConflict when a
// concurrent writer created the same row first.
func (c conn) InsertStockBalance(ctx context.Context, b *StockBalance) error {
	if b.Version == 0 {
		b.Version = 1
	}
	_, err := c.exec(ctx, `INSERT INTO stock_balances (`+stockColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ItemID, b.WarehouseID, b.QtyOnHand.String(), b.QtyReserved.String(), b.UnitCost.String(), b.Version, toMillis(b.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("insert stock %s@%s: %w", b.ItemID, b.WarehouseID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert stock %s@%s: %w", b.ItemID, b.WarehouseID, err)
	}
	return nil
}

// UpdateStockBalance writes quantities back if the row is still at
// b.Version, then bumps b.Version. Returns ErrConflict otherwise.
func (c conn) UpdateStockBalance(ctx context.Context, b *StockBalance) error {
	res, err := c.exec(ctx, `
		UPDATE stock_balances
		SET qty_on_hand = ?, qty_reserved = ?, unit_cost = ?, version = version + 1, updated_at = ?
		WHERE item_id = ? AND warehouse_id = ? AND version = ?`,
		b.QtyOnHand.String(), b.QtyReserved.String(), b.UnitCost.String(), toMillis(b.UpdatedAt),
		b.ItemID, b.WarehouseID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("update stock %s@%s: %w", b.ItemID, b.WarehouseID, err)
	}
	if err := affectedOne(res); err != nil {
		return err
	}
	b.Version++
	return nil
}
