package action

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
)

type echoExecutor struct {
	typ  string
	seen map[string]interface{}
}

func (e *echoExecutor) Type() string { return e.typ }

func (e *echoExecutor) Execute(_ context.Context, params map[string]interface{}, ev event.Event) (*Result, error) {
	e.seen = params
	return &Result{Type: e.typ, Success: true, Message: ev.Type}, nil
}

func (e *echoExecutor) Validate(params map[string]interface{}) error {
	if _, ok := params["bad"]; ok {
		return errors.New("bad param")
	}
	return nil
}

func TestDispatcherExecute(t *testing.T) {
	d := NewDispatcher()
	ex := &echoExecutor{typ: "echo"}
	d.Register(ex)

	res, err := d.Execute(context.Background(), "echo", nil, event.Event{Type: "document:created"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "document:created", res.Message)
	assert.NotNil(t, ex.seen)
}

func TestDispatcherUnknownType(t *testing.T) {
	d := NewDispatcher()

	_, err := d.Execute(context.Background(), "nope", nil, event.Event{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnknownAction, apperr.KindOf(err))

	err = d.Validate(CreateFollowUp, map[string]interface{}{})
	assert.True(t, errors.Is(err, apperr.ErrUnknownAction))
}

func TestDispatcherValidate(t *testing.T) {
	d := NewDispatcher()
	d.Register(&echoExecutor{typ: "echo"})

	require.NoError(t, d.Validate("echo", nil))
	err := d.Validate("echo", map[string]interface{}{"bad": true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestDispatcherDuplicatePanics(t *testing.T) {
	d := NewDispatcher()
	d.Register(&echoExecutor{typ: "echo"})
	assert.Panics(t, func() { d.Register(&echoExecutor{typ: "echo"}) })
	d.Register(&echoExecutor{typ: "alpha"})
	assert.Equal(t, []string{"alpha", "echo"}, d.Types())
}

func TestParamHelpers(t *testing.T) {
	params := map[string]interface{}{
		"one":   "a",
		"empty": "",
		"list":  []interface{}{"x", 3, "", "y"},
		"obj":   map[string]interface{}{"k": "v"},
	}

	s, ok := String(params, "one")
	assert.True(t, ok)
	assert.Equal(t, "a", s)
	_, ok = String(params, "empty")
	assert.False(t, ok)

	_, err := RequireString(params, "send_email", "missing")
	assert.EqualError(t, err, `send_email: "missing" is required`)

	assert.Equal(t, []string{"a"}, Strings(params, "one"))
	assert.Equal(t, []string{"x", "y"}, Strings(params, "list"))
	assert.Nil(t, Strings(params, "empty"))
	assert.Equal(t, "v", Map(params, "obj")["k"])
	assert.Nil(t, Map(params, "one"))
}
