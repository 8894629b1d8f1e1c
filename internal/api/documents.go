package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
	"github.com/gyaneshwarpardhi/docflow/internal/approval"
	"github.com/gyaneshwarpardhi/docflow/internal/document"
	"github.com/gyaneshwarpardhi/docflow/internal/transition"
)

type createDocumentRequest struct {
	DocumentType   string          `json:"documentType"`
	ID             string          `json:"id"`
	DocumentNumber string          `json:"documentNumber"`
	Amount         decimal.Decimal `json:"amount"`
	CreatedByID    *string         `json:"createdById"`
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if !decode(w, r, &req) {
		return
	}
	dt, err := transition.Parse(req.DocumentType)
	if err != nil {
		writeAppError(w, err)
		return
	}
	doc, err := h.Documents.Create(r.Context(), document.CreateInput{
		Type:        dt,
		ID:          req.ID,
		Number:      req.DocumentNumber,
		Amount:      req.Amount,
		CreatedByID: req.CreatedByID,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentView(doc))
}

// pathDocument resolves {type} and {id}; it writes the error itself.
func pathDocument(w http.ResponseWriter, r *http.Request) (transition.DocumentType, string, bool) {
	dt, err := transition.Parse(r.PathValue("type"))
	if err != nil {
		writeAppError(w, err)
		return "", "", false
	}
	return dt, r.PathValue("id"), true
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	dt, id, ok := pathDocument(w, r)
	if !ok {
		return
	}
	doc, err := h.Documents.Get(r.Context(), dt, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentView(doc))
}

type transitionRequest struct {
	Status  string  `json:"status"`
	ActorID *string `json:"actorId"`
}

func (h *Handler) transitionDocument(w http.ResponseWriter, r *http.Request) {
	dt, id, ok := pathDocument(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeAppError(w, apperr.Validation("status", "is required"))
		return
	}
	ch, err := h.Documents.Transition(r.Context(), document.TransitionInput{
		DocumentType: dt,
		DocumentID:   id,
		To:           transition.Status(req.Status),
		ActorID:      req.ActorID,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentView(ch.Document))
}

type signOffRequest struct {
	SignedByID string `json:"signedById"`
}

func (h *Handler) signOffQC(w http.ResponseWriter, r *http.Request) {
	dt, id, ok := pathDocument(w, r)
	if !ok {
		return
	}
	var req signOffRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Documents.SignOffQC(r.Context(), dt, id, req.SignedByID); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type gatePassRequest struct {
	GatePassID  string `json:"gatePassId"`
	AutoCreated bool   `json:"autoCreated"`
}

func (h *Handler) linkGatePass(w http.ResponseWriter, r *http.Request) {
	dt, id, ok := pathDocument(w, r)
	if !ok {
		return
	}
	var req gatePassRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Documents.LinkGatePass(r.Context(), dt, id, req.GatePassID, req.AutoCreated); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	SubmittedByID string `json:"submittedById"`
}

// POST /v1/documents/{type}/{id}/submit — the stored document amount
// selects the approval level.
func (h *Handler) submitForApproval(w http.ResponseWriter, r *http.Request) {
	dt, id, ok := pathDocument(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	doc, err := h.Documents.Get(r.Context(), dt, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	ar, err := h.Approvals.SubmitForApproval(r.Context(), approval.SubmitInput{
		DocumentType:  dt,
		DocumentID:    id,
		Amount:        doc.Amount,
		SubmittedByID: req.SubmittedByID,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, approvalView(ar))
}

func (h *Handler) getPendingApproval(w http.ResponseWriter, r *http.Request) {
	dt, id, ok := pathDocument(w, r)
	if !ok {
		return
	}
	ar, err := h.Approvals.GetPending(r.Context(), dt, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approvalView(ar))
}

type processRequest struct {
	Action        string  `json:"action"`
	ProcessedByID string  `json:"processedById"`
	Comments      *string `json:"comments"`
}

func (h *Handler) processApproval(w http.ResponseWriter, r *http.Request) {
	dt, id, ok := pathDocument(w, r)
	if !ok {
		return
	}
	var req processRequest
	if !decode(w, r, &req) {
		return
	}
	ar, err := h.Approvals.ProcessApproval(r.Context(), approval.ProcessInput{
		DocumentType:  dt,
		DocumentID:    id,
		Action:        approval.Decision(req.Action),
		ProcessedByID: req.ProcessedByID,
		Comments:      req.Comments,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approvalView(ar))
}

func (h *Handler) listOverdue(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Approvals.ListOverdue(r.Context(), time.Now())
	if err != nil {
		h.internalError(w, "listing overdue approvals", err)
		return
	}
	out := make([]map[string]interface{}, 0, len(reqs))
	for _, ar := range reqs {
		out = append(out, approvalView(ar))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"approvals": out})
}
