// Package notification implements the create_notification action.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/docflow/internal/action"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
)

// Store persists notifications atomically and resolves role recipients.
type Store interface {
	InsertNotifications(ctx context.Context, ns []*store.Notification) error
	ActiveEmployeesByRole(ctx context.Context, role string) ([]*store.Employee, error)
}

// CreateNotificationAction handles "create_notification". Recipients come
// from recipientId, or from every active employee holding recipientRole.
// A role fan-out is delivered to all recipients or to none. No recipient is
// not an error.
type CreateNotificationAction struct {
	store Store
	now   func() time.Time
}

func New(s Store) *CreateNotificationAction {
	return &CreateNotificationAction{store: s, now: time.Now}
}

func (a *CreateNotificationAction) Type() string { return action.CreateNotification }

func (a *CreateNotificationAction) Validate(params map[string]interface{}) error {
	_, err := action.RequireString(params, a.Type(), "title")
	return err
}

func (a *CreateNotificationAction) Execute(ctx context.Context, params map[string]interface{}, ev event.Event) (*action.Result, error) {
	if err := a.Validate(params); err != nil {
		return action.Fail(a.Type(), err), err
	}
	recipients, err := a.recipients(ctx, params)
	if err != nil {
		return action.Fail(a.Type(), err), err
	}

	title, _ := action.String(params, "title")
	body, _ := action.String(params, "body")
	now := a.now().UTC()
	batch := make([]*store.Notification, 0, len(recipients))
	for _, id := range recipients {
		batch = append(batch, &store.Notification{
			ID:          uuid.NewString(),
			RecipientID: id,
			Title:       title,
			Body:        body,
			EntityType:  ev.EntityType,
			EntityID:    ev.EntityID,
			CreatedAt:   now,
		})
	}
	if len(batch) > 0 {
		if err := a.store.InsertNotifications(ctx, batch); err != nil {
			return action.Fail(a.Type(), err), err
		}
	}
	return &action.Result{
		Type:    a.Type(),
		Success: true,
		Message: fmt.Sprintf("created %d notification(s)", len(recipients)),
		Output:  map[string]interface{}{"recipients": recipients},
	}, nil
}

func (a *CreateNotificationAction) recipients(ctx context.Context, params map[string]interface{}) ([]string, error) {
	if id, ok := action.String(params, "recipientId"); ok {
		return []string{id}, nil
	}
	role, ok := action.String(params, "recipientRole")
	if !ok {
		return nil, nil
	}
	emps, err := a.store.ActiveEmployeesByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(emps))
	for _, e := range emps {
		ids = append(ids, e.ID)
	}
	return ids, nil
}
