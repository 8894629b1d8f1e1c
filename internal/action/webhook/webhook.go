// Package webhook implements the webhook action.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gyaneshwarpardhi/docflow/internal/action"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
)

// DefaultTimeout is the hard limit on one webhook call.
const DefaultTimeout = 10 * time.Second

// WebhookAction handles "webhook": POST params.body, or the event itself, as
// JSON to params.url. A non-2xx response or a timeout fails the action. No
// retries.
type WebhookAction struct {
	client *http.Client
}

// New creates the action with the given timeout (DefaultTimeout when zero).
func New(timeout time.Duration) *WebhookAction {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WebhookAction{client: &http.Client{Timeout: timeout}}
}

func (a *WebhookAction) Type() string { return action.Webhook }

func (a *WebhookAction) Validate(params map[string]interface{}) error {
	raw, err := action.RequireString(params, a.Type(), "url")
	if err != nil {
		return err
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: invalid url %q", a.Type(), raw)
	}
	return nil
}

func (a *WebhookAction) Execute(ctx context.Context, params map[string]interface{}, ev event.Event) (*action.Result, error) {
	if err := a.Validate(params); err != nil {
		return action.Fail(a.Type(), err), err
	}
	target, _ := action.String(params, "url")

	var body interface{} = ev
	if b, ok := params["body"]; ok && b != nil {
		body = b
	}
	payload, err := json.Marshal(body)
	if err != nil {
		err = fmt.Errorf("%s: encode body: %w", a.Type(), err)
		return action.Fail(a.Type(), err), err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return action.Fail(a.Type(), err), err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range action.Map(params, "headers") {
		if s, ok := v.(string); ok {
			req.Header.Set(k, s)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		err = fmt.Errorf("%s: post %s: %w", a.Type(), target, err)
		return action.Fail(a.Type(), err), err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%s: %s responded %d", a.Type(), target, resp.StatusCode)
		return action.Fail(a.Type(), err), err
	}
	return &action.Result{
		Type:    a.Type(),
		Success: true,
		Message: fmt.Sprintf("POST %s -> %d", target, resp.StatusCode),
		Output:  map[string]interface{}{"statusCode": resp.StatusCode},
	}, nil
}
