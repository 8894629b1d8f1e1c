// Package task implements the assign_task action.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/docflow/internal/action"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
)

// Store persists tasks and resolves role assignees.
type Store interface {
	InsertTask(ctx context.Context, t *store.Task) error
	ActiveEmployeesByRole(ctx context.Context, role string) ([]*store.Employee, error)
}

var priorities = map[string]bool{"low": true, "medium": true, "high": true, "urgent": true}

// AssignTaskAction handles "assign_task". The assignee is assigneeId, or
// the first active employee with assigneeRole; otherwise the task is left
// unassigned.
type AssignTaskAction struct {
	store Store
	now   func() time.Time
}

func New(s Store) *AssignTaskAction {
	return &AssignTaskAction{store: s, now: time.Now}
}

func (a *AssignTaskAction) Type() string { return action.AssignTask }

func (a *AssignTaskAction) Validate(params map[string]interface{}) error {
	if _, err := action.RequireString(params, a.Type(), "title"); err != nil {
		return err
	}
	if p, ok := action.String(params, "priority"); ok && !priorities[p] {
		return fmt.Errorf("%s: unknown priority %q", a.Type(), p)
	}
	if h, ok := params["dueInHours"]; ok {
		if n, ok := h.(float64); !ok || n <= 0 {
			return fmt.Errorf("%s: dueInHours must be a positive number", a.Type())
		}
	}
	return nil
}

func (a *AssignTaskAction) Execute(ctx context.Context, params map[string]interface{}, ev event.Event) (*action.Result, error) {
	if err := a.Validate(params); err != nil {
		return action.Fail(a.Type(), err), err
	}
	assignee, err := a.assignee(ctx, params)
	if err != nil {
		return action.Fail(a.Type(), err), err
	}

	now := a.now().UTC()
	t := &store.Task{
		ID:         uuid.NewString(),
		AssigneeID: assignee,
		Priority:   "medium",
		Status:     "open",
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		CreatedAt:  now,
	}
	t.Title, _ = action.String(params, "title")
	t.Description, _ = action.String(params, "description")
	if p, ok := action.String(params, "priority"); ok {
		t.Priority = p
	}
	if h, ok := params["dueInHours"].(float64); ok {
		due := now.Add(time.Duration(h * float64(time.Hour)))
		t.DueAt = &due
	}
	if err := a.store.InsertTask(ctx, t); err != nil {
		return action.Fail(a.Type(), err), err
	}

	out := map[string]interface{}{"taskId": t.ID}
	msg := "created unassigned task"
	if assignee != nil {
		out["assigneeId"] = *assignee
		msg = "created task for " + *assignee
	}
	return &action.Result{Type: a.Type(), Success: true, Message: msg, Output: out}, nil
}

func (a *AssignTaskAction) assignee(ctx context.Context, params map[string]interface{}) (*string, error) {
	if id, ok := action.String(params, "assigneeId"); ok {
		return &id, nil
	}
	role, ok := action.String(params, "assigneeRole")
	if !ok {
		return nil, nil
	}
	emps, err := a.store.ActiveEmployeesByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	if len(emps) == 0 {
		return nil, nil
	}
	return &emps[0].ID, nil
}
