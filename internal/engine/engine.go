// Package engine runs workflow rules against every event published on the
// bus.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/docflow/internal/action"
	"github.com/gyaneshwarpardhi/docflow/internal/bus"
	"github.com/gyaneshwarpardhi/docflow/internal/config"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/metrics"
	"github.com/gyaneshwarpardhi/docflow/internal/rules"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
)

// ErrQueueFull is returned by HandleEvent when the event was dropped.
var ErrQueueFull = errors.New("engine: event queue full")

// RuleSource supplies the ordered active rules.
type RuleSource interface {
	Get(ctx context.Context) rules.Snapshot
}

// Dispatcher executes a single action by type.
type Dispatcher interface {
	Execute(ctx context.Context, actionType string, params map[string]interface{}, ev event.Event) (*action.Result, error)
}

// ExecLog persists one row per matched rule.
type ExecLog interface {
	InsertExecutionLog(ctx context.Context, l *store.ExecutionLog) error
}

// EventResult is the outcome of processing a single event.
type EventResult struct {
	EventID      string           `json:"eventId"`
	DurationMs   int64            `json:"durationMs"`
	RulesMatched []string         `json:"rulesMatched"`
	Actions      []*action.Result `json:"actions"`
	StaleRules   bool             `json:"staleRules,omitempty"`
}

// Engine evaluates rules for each event and dispatches their actions.
type Engine struct {
	rules   RuleSource
	actions Dispatcher
	logs    ExecLog
	conf    config.EngineConf
	pool    *workerPool[event.Event]
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Engine. With conf.EventWorkers > 0 events are processed by a
// bounded worker pool bound to ctx; otherwise they are processed inline.
func New(ctx context.Context, src RuleSource, actions Dispatcher, logs ExecLog, conf config.EngineConf, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		rules:   src,
		actions: actions,
		logs:    logs,
		conf:    conf,
		logger:  logger,
		now:     time.Now,
	}
	if conf.EventWorkers > 0 {
		e.pool = newWorkerPool[event.Event](ctx, conf.EventWorkers, conf.QueueDepth, func(ctx context.Context, ev event.Event) {
			e.Process(ctx, ev)
			metrics.QueueUtilization.Set(e.QueueUtilization())
		})
	}
	return e
}

// Attach subscribes the engine to every event on b.
func (e *Engine) Attach(b *bus.Bus) {
	b.Subscribe(event.Wildcard, e.HandleEvent)
}

// HandleEvent is the bus handler. In async mode it only enqueues; a full
// queue drops the event unless FailOpen is set. After Shutdown has begun,
// events are processed inline.
func (e *Engine) HandleEvent(ctx context.Context, ev event.Event) error {
	if e.pool == nil {
		e.Process(ctx, ev)
		return nil
	}
	switch err := e.pool.Submit(ev); {
	case err == nil:
		metrics.EventsEnqueued.Inc()
		metrics.QueueUtilization.Set(e.QueueUtilization())
		return nil
	case errors.Is(err, errPoolClosed):
		// Follow-on events published while Shutdown drains the queue.
		e.Process(ctx, ev)
		return nil
	}
	if e.conf.FailOpen {
		e.logger.Warn("event queue full, processing inline", "event_id", ev.ID, "event_type", ev.Type)
		e.Process(ctx, ev)
		return nil
	}
	metrics.EventsDropped.Inc()
	return fmt.Errorf("%w (capacity %d): dropped %s %s", ErrQueueFull, e.pool.QueueCap(), ev.Type, ev.ID)
}

// Process runs every matching rule for ev. Rules are visited in cache order;
// after a matching rule with StopOnMatch no further rules are considered.
// Action failures are logged and do not stop later actions or rules.
func (e *Engine) Process(ctx context.Context, ev event.Event) *EventResult {
	start := e.now()
	if e.conf.EventTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.conf.EventTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	snap := e.rules.Get(ctx)
	result := &EventResult{
		EventID:      ev.ID,
		RulesMatched: []string{},
		Actions:      []*action.Result{},
		StaleRules:   snap.Stale,
	}

	for _, r := range snap.Rules {
		if !r.Triggers(ev) {
			continue
		}
		ok, err := r.Matches(ev)
		if err != nil {
			e.logger.Warn("rule condition failed, treating as no match", "rule_id", r.ID, "event_type", ev.Type, "err", err)
			continue
		}
		if !ok {
			continue
		}

		result.RulesMatched = append(result.RulesMatched, r.ID)
		metrics.RulesMatched.WithLabelValues(r.WorkflowID).Inc()
		results, firstErr := e.runActions(ctx, r, ev)
		result.Actions = append(result.Actions, results...)
		e.writeLog(ctx, r, ev, results, firstErr)

		if r.StopOnMatch {
			break
		}
	}

	elapsed := e.now().Sub(start)
	result.DurationMs = elapsed.Milliseconds()
	metrics.EventsProcessed.Inc()
	metrics.EventProcessingDuration.Observe(float64(elapsed) / float64(time.Millisecond))
	return result
}

func (e *Engine) runActions(ctx context.Context, r *rules.ActiveRule, ev event.Event) ([]*action.Result, error) {
	results := make([]*action.Result, 0, len(r.Actions))
	var firstErr error
	for _, spec := range r.Actions {
		res, err := e.actions.Execute(ctx, spec.ActionType, spec.Params, ev)
		if res == nil {
			res = &action.Result{Type: spec.ActionType, Success: err == nil}
			if err != nil {
				res.Message = err.Error()
			}
		}
		status := "success"
		if err != nil || !res.Success {
			status = "error"
		}
		metrics.ActionsExecuted.WithLabelValues(spec.ActionType, status).Inc()
		if err != nil {
			e.logger.Warn("action failed", "rule_id", r.ID, "action_type", spec.ActionType,
				"event_type", ev.Type, "entity_id", ev.EntityID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		results = append(results, res)
	}
	return results, firstErr
}

func (e *Engine) writeLog(ctx context.Context, r *rules.ActiveRule, ev event.Event, results []*action.Result, actionErr error) {
	if e.logs == nil {
		return
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		encoded = []byte("[]")
	}
	row := &store.ExecutionLog{
		ID:         uuid.NewString(),
		RuleID:     r.ID,
		WorkflowID: r.WorkflowID,
		EventID:    ev.ID,
		EventType:  ev.Type,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Success:    actionErr == nil,
		Results:    string(encoded),
		ExecutedAt: e.now().UTC(),
	}
	if actionErr != nil {
		msg := actionErr.Error()
		row.Error = &msg
	}
	// The event deadline may already be spent by slow actions; the log row
	// is still written.
	if err := e.logs.InsertExecutionLog(context.WithoutCancel(ctx), row); err != nil {
		e.logger.Error("writing rule execution log", "rule_id", r.ID, "err", err)
	}
}

// QueueUtilization returns queue used / capacity (0–1). It is 0 in inline
// mode.
func (e *Engine) QueueUtilization() float64 {
	if e.pool == nil || e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

// Shutdown drains the queue and waits for in-flight events.
func (e *Engine) Shutdown() {
	if e.pool != nil {
		e.pool.Drain()
	}
}
