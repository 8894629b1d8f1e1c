package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
)

const maxBodyBytes = 1 << 20

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string      `json:"error"`
	Code  apperr.Code `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeAppError maps domain errors onto their HTTP status and stable code.
func writeAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: apperr.CodeOf(err)})
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("invalid JSON: %s", err),
			Code:  apperr.CodeValidation,
		})
		return false
	}
	return true
}

func documentView(d *store.Document) map[string]interface{} {
	v := map[string]interface{}{
		"id":                d.ID,
		"documentType":      d.Type,
		"documentNumber":    d.Number,
		"status":            d.Status,
		"amount":            d.Amount,
		"version":           d.Version,
		"reservationStatus": d.ReservationStatus,
		"createdAt":         d.CreatedAt,
		"updatedAt":         d.UpdatedAt,
	}
	if d.QCSignedOffByID != nil {
		v["qcSignedOffById"] = *d.QCSignedOffByID
		v["qcSignedOffAt"] = d.QCSignedOffAt
	}
	if d.GatePassID != nil {
		v["gatePassId"] = *d.GatePassID
		v["gatePassAutoCreated"] = d.GatePassAutoCreated
	}
	return v
}

func approvalView(a *store.ApprovalRequest) map[string]interface{} {
	v := map[string]interface{}{
		"id":            a.ID,
		"documentType":  a.DocumentType,
		"documentId":    a.DocumentID,
		"amount":        a.Amount,
		"level":         a.Level,
		"approverRole":  a.ApproverRole,
		"slaHours":      a.SLAHours,
		"dueAt":         a.DueAt,
		"status":        a.Status,
		"submittedById": a.SubmittedByID,
		"createdAt":     a.CreatedAt,
	}
	if a.DecidedByID != nil {
		v["decidedById"] = *a.DecidedByID
		v["decidedAt"] = a.DecidedAt
	}
	if a.Comments != nil {
		v["comments"] = *a.Comments
	}
	return v
}

func executionLogView(l *store.ExecutionLog) map[string]interface{} {
	v := map[string]interface{}{
		"id":         l.ID,
		"ruleId":     l.RuleID,
		"workflowId": l.WorkflowID,
		"eventId":    l.EventID,
		"eventType":  l.EventType,
		"entityType": l.EntityType,
		"entityId":   l.EntityID,
		"success":    l.Success,
		"results":    json.RawMessage(l.Results),
		"executedAt": l.ExecutedAt,
	}
	if l.Error != nil {
		v["error"] = *l.Error
	}
	return v
}
