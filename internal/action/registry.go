package action

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
)

// Dispatcher maps action type strings to their executors.
// It is safe for concurrent reads; Register should only be called at startup.
type Dispatcher struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{executors: make(map[string]Executor)}
}

// Register adds an executor. Panics on duplicate type to surface misconfiguration early.
func (d *Dispatcher) Register(e Executor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.executors[e.Type()]; exists {
		panic(fmt.Sprintf("action dispatcher: duplicate type %q", e.Type()))
	}
	d.executors[e.Type()] = e
}

// Get returns the executor for the given type.
func (d *Dispatcher) Get(actionType string) (Executor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.executors[actionType]
	if !ok {
		return nil, apperr.New(apperr.ErrUnknownAction, "no executor registered for action type %q", actionType)
	}
	return e, nil
}

// Execute runs actionType against ev. Handler errors are returned as is.
func (d *Dispatcher) Execute(ctx context.Context, actionType string, params map[string]interface{}, ev event.Event) (*Result, error) {
	e, err := d.Get(actionType)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return e.Execute(ctx, params, ev)
}

// Validate checks that actionType is registered and its params are
// acceptable.
func (d *Dispatcher) Validate(actionType string, params map[string]interface{}) error {
	e, err := d.Get(actionType)
	if err != nil {
		return err
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	if err := e.Validate(params); err != nil {
		return apperr.Wrap(apperr.ErrValidation, err, "%s params", actionType)
	}
	return nil
}

// Types returns all registered action type strings, sorted.
func (d *Dispatcher) Types() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.executors))
	for k := range d.executors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
