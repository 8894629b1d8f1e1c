// Package approval routes documents to an approver by amount threshold,
// records decisions and moves the document status accordingly.
//
// Each submission and decision runs in a single store transaction together
// with the document status change. Events are published after commit.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
	"github.com/gyaneshwarpardhi/docflow/internal/document"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/metrics"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
	"github.com/gyaneshwarpardhi/docflow/internal/transition"
)

// Request statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Decision is the approver's verdict.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Engine is the approval state machine.
type Engine struct {
	db     *store.DB
	docs   *document.Service
	levels atomic.Pointer[Thresholds]
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an approval engine. Events go through docs' publisher.
func New(db *store.DB, docs *document.Service, levels Thresholds, opts ...Option) *Engine {
	e := &Engine{db: db, docs: docs, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	e.SetLevels(levels)
	return e
}

// SetLevels swaps the threshold tables.
func (e *Engine) SetLevels(t Thresholds) {
	if t == nil {
		t = Thresholds{}
	}
	e.levels.Store(&t)
}

// Levels returns the threshold table for docType.
func (e *Engine) Levels(docType transition.DocumentType) []Level {
	return (*e.levels.Load())[docType]
}

// SubmitInput routes a document for approval.
type SubmitInput struct {
	DocumentType  transition.DocumentType
	DocumentID    string
	Amount        decimal.Decimal
	SubmittedByID string
}

// SubmitForApproval selects the approval level for the amount, creates the
// pending request and moves the document to pending_approval.
func (e *Engine) SubmitForApproval(ctx context.Context, in SubmitInput) (*store.ApprovalRequest, error) {
	if !transition.Known(in.DocumentType) {
		return nil, apperr.New(apperr.ErrUnknownDocumentType, "%q", in.DocumentType)
	}
	level, row, ok := Select(e.Levels(in.DocumentType), in.Amount)
	if !ok {
		return nil, apperr.New(apperr.ErrNoApprovalLevelConfigured, "%s amount %s", in.DocumentType, in.Amount.String())
	}

	now := e.now().UTC()
	req := &store.ApprovalRequest{
		ID:            uuid.NewString(),
		DocumentType:  string(in.DocumentType),
		DocumentID:    in.DocumentID,
		Amount:        in.Amount,
		Level:         level,
		ApproverRole:  row.ApproverRole,
		SLAHours:      row.SLAHours,
		DueAt:         now.Add(time.Duration(row.SLAHours) * time.Hour),
		Status:        StatusPending,
		SubmittedByID: in.SubmittedByID,
		CreatedAt:     now,
	}

	var ch *document.Change
	err := e.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.FindApprovalRequest(ctx, req.DocumentType, req.DocumentID, StatusPending); err == nil {
			return apperr.New(apperr.ErrApprovalAlreadyPending, "%s %s", in.DocumentType, in.DocumentID)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		var err error
		ch, err = e.docs.TransitionTx(ctx, tx, document.TransitionInput{
			DocumentType: in.DocumentType,
			DocumentID:   in.DocumentID,
			To:           transition.PendingApproval,
			ActorID:      optional(in.SubmittedByID),
			Action:       "submit",
		})
		if err != nil {
			return err
		}
		return tx.InsertApprovalRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	metrics.ApprovalsSubmitted.WithLabelValues(req.DocumentType, strconv.Itoa(level)).Inc()
	e.logger.Info("approval submitted", "document_type", req.DocumentType, "document_id", req.DocumentID,
		"level", level, "approver_role", req.ApproverRole, "due_at", req.DueAt)

	e.docs.Publish(ctx, event.Event{
		Type:          event.ApprovalSubmitted,
		EntityType:    req.DocumentType,
		EntityID:      req.DocumentID,
		Action:        "submit",
		Payload:       requestPayload(req, ch),
		PerformedByID: optional(in.SubmittedByID),
	})
	e.docs.Publish(ctx, document.StatusChangedEvent(ch, "submit", optional(in.SubmittedByID)))
	return req, nil
}

// ProcessInput records an approver's decision.
type ProcessInput struct {
	DocumentType  transition.DocumentType
	DocumentID    string
	Action        Decision
	ProcessedByID string
	Comments      *string
}

// ProcessApproval records the decision on the pending request and moves the
// document to approved or rejected. Downstream effects of an approval, such
// as reserving stock, belong to the caller or to rules on the published
// document:status_changed event.
func (e *Engine) ProcessApproval(ctx context.Context, in ProcessInput) (*store.ApprovalRequest, error) {
	var (
		reqStatus string
		to        transition.Status
	)
	switch in.Action {
	case Approve:
		reqStatus, to = StatusApproved, transition.Approved
	case Reject:
		reqStatus, to = StatusRejected, transition.Rejected
	default:
		return nil, apperr.Validation("action", "must be approve or reject")
	}
	if in.ProcessedByID == "" {
		return nil, apperr.Validation("processedById", "is required")
	}

	var (
		req *store.ApprovalRequest
		ch  *document.Change
	)
	err := e.db.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		req, err = tx.LockPendingApproval(ctx, string(in.DocumentType), in.DocumentID)
		if errors.Is(err, store.ErrNotFound) {
			return e.noPending(ctx, tx, in)
		}
		if err != nil {
			return err
		}

		now := e.now().UTC()
		err = tx.DecideApprovalRequest(ctx, req.ID, reqStatus, in.ProcessedByID, in.Comments, now)
		if errors.Is(err, store.ErrConflict) {
			return apperr.New(apperr.ErrApprovalAlreadyDecided, "%s %s", in.DocumentType, in.DocumentID)
		}
		if err != nil {
			return err
		}
		req.Status = reqStatus
		req.DecidedByID = &in.ProcessedByID
		req.DecidedAt = &now
		req.Comments = in.Comments

		ch, err = e.docs.TransitionTx(ctx, tx, document.TransitionInput{
			DocumentType: in.DocumentType,
			DocumentID:   in.DocumentID,
			To:           to,
			ActorID:      &in.ProcessedByID,
			Action:       string(in.Action),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.ApprovalsDecided.WithLabelValues(req.DocumentType, reqStatus).Inc()
	e.logger.Info("approval decided", "document_type", req.DocumentType, "document_id", req.DocumentID,
		"decision", reqStatus, "decided_by", in.ProcessedByID)

	e.docs.Publish(ctx, event.Event{
		Type:          event.ApprovalDecided,
		EntityType:    req.DocumentType,
		EntityID:      req.DocumentID,
		Action:        string(in.Action),
		Payload:       requestPayload(req, ch),
		PerformedByID: &in.ProcessedByID,
	})
	e.docs.Publish(ctx, document.StatusChangedEvent(ch, string(in.Action), &in.ProcessedByID))
	return req, nil
}

// noPending distinguishes a document that was already decided from one that
// was never submitted.
func (e *Engine) noPending(ctx context.Context, tx *store.Tx, in ProcessInput) error {
	latest, err := tx.LatestApprovalRequest(ctx, string(in.DocumentType), in.DocumentID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.ErrNoPendingApproval, "%s %s", in.DocumentType, in.DocumentID)
	}
	if err != nil {
		return err
	}
	return apperr.New(apperr.ErrApprovalAlreadyDecided, "%s %s already %s", in.DocumentType, in.DocumentID, latest.Status)
}

// GetPending returns the pending request for a document.
func (e *Engine) GetPending(ctx context.Context, docType transition.DocumentType, docID string) (*store.ApprovalRequest, error) {
	req, err := e.db.FindApprovalRequest(ctx, string(docType), docID, StatusPending)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.ErrNoPendingApproval, "%s %s", docType, docID)
	}
	return req, err
}

// ListOverdue returns pending requests past their SLA deadline at now.
func (e *Engine) ListOverdue(ctx context.Context, now time.Time) ([]*store.ApprovalRequest, error) {
	return e.db.ListOverdueApprovals(ctx, now)
}

// IsOverdue reports an SLA breach: still pending after DueAt.
func IsOverdue(r *store.ApprovalRequest, now time.Time) bool {
	return r.Status == StatusPending && now.After(r.DueAt)
}

// requestPayload describes req for approval events. payload.status is left
// to the document: newValues.status carries the document status after the
// change, so change_status rules on approval events check the right value.
func requestPayload(r *store.ApprovalRequest, ch *document.Change) map[string]interface{} {
	p := map[string]interface{}{
		"approvalRequestId": r.ID,
		"amount":            r.Amount.InexactFloat64(),
		"level":             r.Level,
		"approverRole":      r.ApproverRole,
		"slaHours":          r.SLAHours,
		"dueAt":             r.DueAt.Format(time.RFC3339),
		"requestStatus":     r.Status,
	}
	if ch != nil {
		p["oldValues"] = map[string]interface{}{"status": string(ch.From)}
		p["newValues"] = map[string]interface{}{"status": string(ch.To)}
	}
	if r.Comments != nil {
		p["comments"] = *r.Comments
	}
	return p
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
