// Package status implements the change_status action.
package status

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/docflow/internal/action"
	"github.com/gyaneshwarpardhi/docflow/internal/document"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/transition"
)

// Transitioner applies validated document status changes.
type Transitioner interface {
	Transition(ctx context.Context, in document.TransitionInput) (*document.Change, error)
}

// ChangeStatusAction handles "change_status". The event entity type must be
// a known document type; the current status is taken from
// payload.newValues.status, falling back to payload.status, and must match
// the stored document.
type ChangeStatusAction struct {
	docs Transitioner
}

func New(docs Transitioner) *ChangeStatusAction {
	return &ChangeStatusAction{docs: docs}
}

func (a *ChangeStatusAction) Type() string { return action.ChangeStatus }

func (a *ChangeStatusAction) Validate(params map[string]interface{}) error {
	_, err := action.RequireString(params, a.Type(), "status")
	return err
}

func (a *ChangeStatusAction) Execute(ctx context.Context, params map[string]interface{}, ev event.Event) (*action.Result, error) {
	if err := a.Validate(params); err != nil {
		return action.Fail(a.Type(), err), err
	}
	docType, err := transition.Parse(ev.EntityType)
	if err != nil {
		return action.Fail(a.Type(), err), err
	}
	to, _ := action.String(params, "status")

	ch, err := a.docs.Transition(ctx, document.TransitionInput{
		DocumentType: docType,
		DocumentID:   ev.EntityID,
		To:           transition.Status(to),
		ExpectedFrom: CurrentStatus(ev),
		ActorID:      ev.PerformedByID,
		Action:       a.Type(),
	})
	if err != nil {
		return action.Fail(a.Type(), err), err
	}
	return &action.Result{
		Type:    a.Type(),
		Success: true,
		Message: fmt.Sprintf("%s %s: %s -> %s", docType, ev.EntityID, ch.From, ch.To),
		Output:  map[string]interface{}{"from": string(ch.From), "to": string(ch.To)},
	}, nil
}

// CurrentStatus reads the status the event reports for its entity.
func CurrentStatus(ev event.Event) transition.Status {
	if s, ok := ev.Lookup("newValues", "status"); ok {
		if str, ok := s.(string); ok && str != "" {
			return transition.Status(str)
		}
	}
	if s, ok := ev.Lookup("status"); ok {
		if str, ok := s.(string); ok {
			return transition.Status(str)
		}
	}
	return ""
}
