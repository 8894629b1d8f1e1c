package api

import (
	"context"
	"net/http"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
	"github.com/gyaneshwarpardhi/docflow/internal/inventory"
	"github.com/gyaneshwarpardhi/docflow/internal/rules"
)

func (h *Handler) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf rules.Workflow
	if !decode(w, r, &wf) {
		return
	}
	created, err := h.Rules.CreateWorkflow(r.Context(), wf)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.Rules.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if !decode(w, r, &rule) {
		return
	}
	created, err := h.Rules.CreateRule(r.Context(), rule)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Rules.GetRule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if !decode(w, r, &rule) {
		return
	}
	rule.ID = r.PathValue("id")
	if err := h.Rules.UpdateRule(r.Context(), rule); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.Rules.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stockRequest struct {
	Lines []inventory.Line `json:"lines"`
}

// POST /v1/stock/{operation} — apply a batch of ledger lines.
func (h *Handler) stockOperation(w http.ResponseWriter, r *http.Request) {
	var op func(context.Context, []inventory.Line) (*inventory.BatchResult, error)
	switch inventory.Operation(r.PathValue("operation")) {
	case inventory.OpReserve:
		op = h.Ledger.ReserveBatch
	case inventory.OpConsume:
		op = h.Ledger.ConsumeBatch
	case inventory.OpRelease:
		op = h.Ledger.ReleaseBatch
	case inventory.OpAdd:
		op = h.Ledger.AddBatch
	case inventory.OpDeduct:
		op = h.Ledger.DeductBatch
	default:
		writeAppError(w, apperr.Validation("operation", "must be one of reserve, consume, release, add, deduct"))
		return
	}
	var req stockRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := op(r.Context(), req.Lines)
	if err != nil {
		writeAppError(w, err)
		return
	}
	lines := make([]map[string]interface{}, 0, len(res.Lines))
	for _, lr := range res.Lines {
		v := map[string]interface{}{"result": lr}
		if lr.Err != nil {
			v["error"] = lr.Err.Error()
			v["code"] = apperr.CodeOf(lr.Err)
		}
		lines = append(lines, v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           res.Success,
		"reservationStatus": res.Status(),
		"totalCost":         res.TotalCost(),
		"lines":             lines,
	})
}

func (h *Handler) stockBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Ledger.Balance(r.Context(), r.PathValue("item"), r.PathValue("warehouse"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"itemId":      b.ItemID,
		"warehouseId": b.WarehouseID,
		"qtyOnHand":   b.QtyOnHand,
		"qtyReserved": b.QtyReserved,
		"available":   b.Available(),
		"unitCost":    b.UnitCost,
		"version":     b.Version,
	})
}
