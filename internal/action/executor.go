package action

import (
	"context"

	"github.com/gyaneshwarpardhi/docflow/internal/event"
)

// Action types understood by rule configuration.
const (
	SendEmail          = "send_email"
	CreateNotification = "create_notification"
	ChangeStatus       = "change_status"
	ReserveStock       = "reserve_stock"
	AssignTask         = "assign_task"
	Webhook            = "webhook"

	// CreateFollowUp is reserved for a follow-up document action. No
	// executor is registered for it, so rules naming it fail validation.
	CreateFollowUp = "create_follow_up"
)

// Result holds the outcome of executing a single action.
type Result struct {
	Type    string                 `json:"type"`
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Output  map[string]interface{} `json:"output,omitempty"`
}

// Executor is the interface all action implementations must satisfy.
type Executor interface {
	// Type returns the string key this executor is registered under.
	Type() string
	// Execute runs the action for the triggering event.
	Execute(ctx context.Context, params map[string]interface{}, ev event.Event) (*Result, error)
	// Validate checks params when a rule is saved.
	Validate(params map[string]interface{}) error
}
