// Package stock implements the reserve_stock action.
package stock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/docflow/internal/action"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/inventory"
	"github.com/gyaneshwarpardhi/docflow/internal/transition"
)

// Reserver is the ledger operation behind the action.
type Reserver interface {
	ReserveBatch(ctx context.Context, lines []inventory.Line) (*inventory.BatchResult, error)
}

// ReservationRecorder stores the reservation outcome on the document.
type ReservationRecorder interface {
	SetReservationStatus(ctx context.Context, docType transition.DocumentType, id, status string) error
}

// ReserveStockAction handles "reserve_stock". Lines come from params.items,
// or from payload.lines when items is absent. A line without enough stock is
// logged; the action still succeeds so the rest of the rule chain runs.
type ReserveStockAction struct {
	ledger Reserver
	docs   ReservationRecorder
	logger *slog.Logger
}

// New creates the action. docs may be nil.
func New(ledger Reserver, docs ReservationRecorder, logger *slog.Logger) *ReserveStockAction {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReserveStockAction{ledger: ledger, docs: docs, logger: logger}
}

func (a *ReserveStockAction) Type() string { return action.ReserveStock }

func (a *ReserveStockAction) Validate(params map[string]interface{}) error {
	raw, ok := params["items"]
	if !ok {
		return nil
	}
	if _, err := inventory.LinesFromList(raw); err != nil {
		return fmt.Errorf("%s: items: %w", a.Type(), err)
	}
	return nil
}

func (a *ReserveStockAction) Execute(ctx context.Context, params map[string]interface{}, ev event.Event) (*action.Result, error) {
	lines, err := a.lines(params, ev)
	if err != nil {
		return action.Fail(a.Type(), err), err
	}
	if len(lines) == 0 {
		return &action.Result{Type: a.Type(), Success: true, Message: "no lines to reserve"}, nil
	}

	res, err := a.ledger.ReserveBatch(ctx, lines)
	if err != nil {
		return action.Fail(a.Type(), err), err
	}
	for _, lr := range res.Lines {
		if !lr.OK {
			a.logger.Warn("reserve_stock shortfall", "entity_type", ev.EntityType, "entity_id", ev.EntityID,
				"item_id", lr.Line.ItemID, "warehouse_id", lr.Line.WarehouseID, "err", lr.Err)
		}
	}

	status := res.Status()
	if a.docs != nil {
		if dt, err := transition.Parse(ev.EntityType); err == nil && ev.EntityID != "" {
			if err := a.docs.SetReservationStatus(ctx, dt, ev.EntityID, status); err != nil {
				a.logger.Warn("reserve_stock: recording reservation status failed", "entity_id", ev.EntityID, "err", err)
			}
		}
	}

	return &action.Result{
		Type:    a.Type(),
		Success: true,
		Message: fmt.Sprintf("reservation %s (%d line(s))", status, len(res.Lines)),
		Output: map[string]interface{}{
			"reservationStatus": status,
			"allReserved":       res.Success,
		},
	}, nil
}

func (a *ReserveStockAction) lines(params map[string]interface{}, ev event.Event) ([]inventory.Line, error) {
	if raw, ok := params["items"]; ok {
		return inventory.LinesFromList(raw)
	}
	if raw, ok := ev.Lookup("lines"); ok {
		return inventory.LinesFromList(raw)
	}
	return nil, nil
}
