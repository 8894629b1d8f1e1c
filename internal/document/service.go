// Package document owns the status-bearing document header: creation, status
// transitions through the transition tables, and the typed optional fields
// (QC sign-off, gate pass link, reservation status) that guard them.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/metrics"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
	"github.com/gyaneshwarpardhi/docflow/internal/transition"
)

// Reservation statuses recorded on a document after a stock reservation.
const (
	ReservationNone    = "none"
	ReservationPartial = "partial"
	ReservationFull    = "full"
)

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event)
}

// Service mutates documents. Status changes run inside a transaction that
// holds the document row lock and writes with an optimistic version check.
type Service struct {
	db     *store.DB
	pub    Publisher
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a document service. pub may be nil.
func NewService(db *store.DB, pub Publisher, opts ...Option) *Service {
	s := &Service{db: db, pub: pub, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateInput describes a new draft document.
type CreateInput struct {
	Type        transition.DocumentType
	ID          string // generated when empty
	Number      string
	Amount      decimal.Decimal
	CreatedByID *string
}

// Create inserts a draft document and publishes document:created.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.Document, error) {
	if !transition.Known(in.Type) {
		return nil, apperr.New(apperr.ErrUnknownDocumentType, "%q", in.Type)
	}
	if in.Amount.IsNegative() {
		return nil, apperr.Validation("amount", "must not be negative")
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	now := s.now().UTC()
	doc := &store.Document{
		ID:          in.ID,
		Type:        string(in.Type),
		Number:      in.Number,
		Status:      string(transition.Draft),
		Amount:      in.Amount,
		CreatedByID: in.CreatedByID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	s.publish(ctx, event.Event{
		Type:          event.DocumentCreated,
		EntityType:    doc.Type,
		EntityID:      doc.ID,
		Action:        "create",
		Payload:       documentPayload(doc),
		PerformedByID: in.CreatedByID,
	})
	return doc, nil
}

// Get reads a document.
func (s *Service) Get(ctx context.Context, docType transition.DocumentType, id string) (*store.Document, error) {
	doc, err := s.db.GetDocument(ctx, string(docType), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(string(docType)+" document", id)
	}
	return doc, err
}

// TransitionInput requests a status change.
type TransitionInput struct {
	DocumentType transition.DocumentType
	DocumentID   string
	To           transition.Status
	// ExpectedFrom, when set, must equal the stored status; a mismatch means
	// the caller acted on an outdated view of the document.
	ExpectedFrom transition.Status
	ActorID      *string
	// Action is copied onto the published event; defaults to "transition".
	Action string
}

// Change is an applied status change.
type Change struct {
	Document *store.Document
	From     transition.Status
	To       transition.Status
}

// Transition validates and applies a status change in its own transaction,
// then publishes document:status_changed.
func (s *Service) Transition(ctx context.Context, in TransitionInput) (*Change, error) {
	var ch *Change
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		ch, err = s.TransitionTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, StatusChangedEvent(ch, in.Action, in.ActorID))
	return ch, nil
}

// TransitionTx applies a status change inside tx without publishing. Callers
// publish StatusChangedEvent after commit.
func (s *Service) TransitionTx(ctx context.Context, tx *store.Tx, in TransitionInput) (*Change, error) {
	if !transition.Known(in.DocumentType) {
		return nil, apperr.New(apperr.ErrUnknownDocumentType, "%q", in.DocumentType)
	}
	doc, err := tx.LockDocument(ctx, string(in.DocumentType), in.DocumentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(string(in.DocumentType)+" document", in.DocumentID)
	}
	if err != nil {
		return nil, err
	}

	from := transition.Status(doc.Status)
	if in.ExpectedFrom != "" && in.ExpectedFrom != from {
		return nil, apperr.New(apperr.ErrConcurrentModification,
			"%s %s: expected status %s, found %s", in.DocumentType, in.DocumentID, in.ExpectedFrom, from)
	}
	if err := transition.AssertTransition(in.DocumentType, from, in.To); err != nil {
		return nil, err
	}
	if err := guard(in.DocumentType, doc, in.To); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err = tx.UpdateDocumentStatus(ctx, doc.Type, doc.ID, string(in.To), doc.Version, now)
	if errors.Is(err, store.ErrConflict) {
		return nil, apperr.New(apperr.ErrConcurrentModification, "%s %s changed concurrently", in.DocumentType, in.DocumentID)
	}
	if err != nil {
		return nil, err
	}

	doc.Status = string(in.To)
	doc.Version++
	doc.UpdatedAt = now
	metrics.StatusTransitions.WithLabelValues(doc.Type, doc.Status).Inc()
	return &Change{Document: doc, From: from, To: in.To}, nil
}

// guard enforces business preconditions beyond table reachability.
func guard(docType transition.DocumentType, doc *store.Document, to transition.Status) error {
	switch {
	case to == transition.Issued && (docType == transition.MI || docType == transition.MIRV):
		if doc.QCSignedOffByID == nil {
			return apperr.New(apperr.ErrQCSignOffRequired, "%s %s cannot be issued before QC sign-off", docType, doc.ID)
		}
	}
	return nil
}

// SignOffQC records the QC signature on a document.
func (s *Service) SignOffQC(ctx context.Context, docType transition.DocumentType, id, signedByID string) error {
	if signedByID == "" {
		return apperr.Validation("signedById", "is required")
	}
	err := s.db.UpdateDocumentQC(ctx, string(docType), id, signedByID, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(string(docType)+" document", id)
	}
	return err
}

// SetReservationStatus records the outcome of a stock reservation.
func (s *Service) SetReservationStatus(ctx context.Context, docType transition.DocumentType, id, status string) error {
	switch status {
	case ReservationNone, ReservationPartial, ReservationFull:
	default:
		return apperr.Validation("reservationStatus", fmt.Sprintf("unknown value %q", status))
	}
	err := s.db.UpdateDocumentReservation(ctx, string(docType), id, status, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(string(docType)+" document", id)
	}
	return err
}

// LinkGatePass attaches a gate pass to a document.
func (s *Service) LinkGatePass(ctx context.Context, docType transition.DocumentType, id, gatePassID string, autoCreated bool) error {
	if gatePassID == "" {
		return apperr.Validation("gatePassId", "is required")
	}
	err := s.db.UpdateDocumentGatePass(ctx, string(docType), id, gatePassID, autoCreated, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(string(docType)+" document", id)
	}
	return err
}

// Publish forwards an event if a publisher is configured.
func (s *Service) Publish(ctx context.Context, ev event.Event) {
	s.publish(ctx, ev)
}

func (s *Service) publish(ctx context.Context, ev event.Event) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(ctx, ev)
}

// StatusChangedEvent builds the document:status_changed event for ch.
// Rules read the new status from payload.newValues.status.
func StatusChangedEvent(ch *Change, action string, actorID *string) event.Event {
	if action == "" {
		action = "transition"
	}
	payload := documentPayload(ch.Document)
	payload["oldValues"] = map[string]interface{}{"status": string(ch.From)}
	payload["newValues"] = map[string]interface{}{"status": string(ch.To)}
	return event.Event{
		Type:          event.DocumentStatusChanged,
		EntityType:    ch.Document.Type,
		EntityID:      ch.Document.ID,
		Action:        action,
		Payload:       payload,
		PerformedByID: actorID,
	}
}

func documentPayload(d *store.Document) map[string]interface{} {
	p := map[string]interface{}{
		"documentType":      d.Type,
		"documentNumber":    d.Number,
		"status":            d.Status,
		"amount":            d.Amount.InexactFloat64(),
		"reservationStatus": d.ReservationStatus,
		"qcSignedOff":       d.QCSignedOffByID != nil,
	}
	if d.GatePassID != nil {
		p["gatePassId"] = *d.GatePassID
	}
	return p
}
