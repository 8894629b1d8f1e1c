// Package email implements the send_email action. Emails are queued in the
// outbox; delivery belongs to an external sender.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/docflow/internal/action"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
)

// Outbox queues outbound email.
type Outbox interface {
	InsertOutboundEmail(ctx context.Context, e *store.OutboundEmail) error
}

// SendEmailAction handles "send_email". Params:
//   - templateCode: template to render (required)
//   - to: recipient address or list of addresses (required)
//   - variables: extra template variables, overriding payload keys
type SendEmailAction struct {
	outbox Outbox
	now    func() time.Time
}

func New(outbox Outbox) *SendEmailAction {
	return &SendEmailAction{outbox: outbox, now: time.Now}
}

func (a *SendEmailAction) Type() string { return action.SendEmail }

func (a *SendEmailAction) Validate(params map[string]interface{}) error {
	if _, err := action.RequireString(params, a.Type(), "templateCode"); err != nil {
		return err
	}
	if len(action.Strings(params, "to")) == 0 {
		return fmt.Errorf("%s: %q is required", a.Type(), "to")
	}
	return nil
}

func (a *SendEmailAction) Execute(ctx context.Context, params map[string]interface{}, ev event.Event) (*action.Result, error) {
	if err := a.Validate(params); err != nil {
		return action.Fail(a.Type(), err), err
	}
	template, _ := action.String(params, "templateCode")
	to := action.Strings(params, "to")

	vars := Variables(params, ev)
	recipients, err := json.Marshal(to)
	if err != nil {
		return action.Fail(a.Type(), err), err
	}
	encoded, err := json.Marshal(vars)
	if err != nil {
		err = fmt.Errorf("%s: encode variables: %w", a.Type(), err)
		return action.Fail(a.Type(), err), err
	}

	msg := &store.OutboundEmail{
		ID:           uuid.NewString(),
		TemplateCode: template,
		Recipients:   string(recipients),
		Variables:    string(encoded),
		CreatedAt:    a.now().UTC(),
	}
	if err := a.outbox.InsertOutboundEmail(ctx, msg); err != nil {
		return action.Fail(a.Type(), err), err
	}
	return &action.Result{
		Type:    a.Type(),
		Success: true,
		Message: fmt.Sprintf("queued %s to %d recipient(s)", template, len(to)),
		Output:  map[string]interface{}{"emailId": msg.ID},
	}, nil
}

// Variables merges the event payload with params.variables (params win) and
// the event identity fields.
func Variables(params map[string]interface{}, ev event.Event) map[string]interface{} {
	vars := make(map[string]interface{}, len(ev.Payload)+8)
	for k, v := range ev.Payload {
		vars[k] = v
	}
	for k, v := range action.Map(params, "variables") {
		vars[k] = v
	}
	vars["entityType"] = ev.EntityType
	vars["entityId"] = ev.EntityID
	vars["action"] = ev.Action
	vars["timestamp"] = ev.TimestampString()
	return vars
}
