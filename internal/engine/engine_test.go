package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/docflow/internal/action"
	statusaction "github.com/gyaneshwarpardhi/docflow/internal/action/status"
	"github.com/gyaneshwarpardhi/docflow/internal/action/stock"
	"github.com/gyaneshwarpardhi/docflow/internal/approval"
	"github.com/gyaneshwarpardhi/docflow/internal/bus"
	"github.com/gyaneshwarpardhi/docflow/internal/condition"
	"github.com/gyaneshwarpardhi/docflow/internal/config"
	"github.com/gyaneshwarpardhi/docflow/internal/document"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/inventory"
	"github.com/gyaneshwarpardhi/docflow/internal/rules"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
	"github.com/gyaneshwarpardhi/docflow/internal/transition"
)

type staticSource []rules.Entry

func (s staticSource) FetchActiveRules(context.Context) ([]rules.Entry, error) { return s, nil }

// recordingDispatcher records action types in execution order.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (d *recordingDispatcher) Execute(_ context.Context, actionType string, params map[string]interface{}, _ event.Event) (*action.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tag, _ := params["tag"].(string)
	d.calls = append(d.calls, tag)
	if d.fail[tag] {
		return nil, errors.New("boom")
	}
	return &action.Result{Type: actionType, Success: true}, nil
}

func (d *recordingDispatcher) seen() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type memLog struct {
	mu   sync.Mutex
	rows []*store.ExecutionLog
}

func (m *memLog) InsertExecutionLog(_ context.Context, l *store.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, l)
	return nil
}

func entry(id string, priority, order int, stop bool, cond condition.Predicate, tags ...string) rules.Entry {
	acts := make([]rules.ActionSpec, 0, len(tags))
	for _, tag := range tags {
		acts = append(acts, rules.ActionSpec{ActionType: "noop", Params: map[string]interface{}{"tag": tag}})
	}
	return rules.Entry{
		Workflow: rules.Workflow{ID: "wf-" + id, Name: id, EntityType: "mirv", Priority: priority, IsActive: true},
		Rule: rules.Rule{ID: id, WorkflowID: "wf-" + id, TriggerEvent: event.DocumentStatusChanged,
			Conditions: cond, Actions: acts, StopOnMatch: stop, SortOrder: order, IsActive: true},
	}
}

var approved = condition.Predicate{Field: "newValues.status", Operator: "eq", Value: "approved"}

func statusChanged(status string) event.Event {
	return event.Event{
		ID: "ev-1", Type: event.DocumentStatusChanged, EntityType: "mirv", EntityID: "mirv-1",
		Payload: map[string]interface{}{"newValues": map[string]interface{}{"status": status}},
	}
}

func TestProcessOrderAndStopOnMatch(t *testing.T) {
	src := staticSource{
		entry("low", 1, 1, false, approved, "low-1"),
		entry("stop", 5, 2, true, approved, "stop-1", "stop-2"),
		entry("first", 5, 1, false, condition.Predicate{}, "first-1"),
	}
	disp := &recordingDispatcher{fail: map[string]bool{"stop-1": true}}
	logs := &memLog{}
	e := New(context.Background(), rules.NewCache(src), disp, logs, config.EngineConf{}, nil)

	res := e.Process(context.Background(), statusChanged("approved"))

	assert.Equal(t, []string{"first", "stop"}, res.RulesMatched)
	assert.Equal(t, []string{"first-1", "stop-1", "stop-2"}, disp.seen())
	require.Len(t, logs.rows, 2)
	assert.True(t, logs.rows[0].Success)
	assert.False(t, logs.rows[1].Success)
	require.NotNil(t, logs.rows[1].Error)
	assert.Contains(t, *logs.rows[1].Error, "boom")
}

func TestProcessSkipsNonMatching(t *testing.T) {
	bad := condition.Predicate{Expression: "payload.amount > 10"}
	src := staticSource{
		entry("approved-only", 1, 1, true, approved, "a"),
		entry("compare-string", 1, 2, false, bad, "b"),
	}
	disp := &recordingDispatcher{}
	e := New(context.Background(), rules.NewCache(src), disp, nil, config.EngineConf{}, nil)

	ev := statusChanged("rejected")
	ev.Payload["amount"] = "lots"
	res := e.Process(context.Background(), ev)
	assert.Empty(t, res.RulesMatched)
	assert.Empty(t, disp.seen())

	other := statusChanged("approved")
	other.EntityType = "mi"
	res = e.Process(context.Background(), other)
	assert.Empty(t, res.RulesMatched)
}

func TestAsyncModeProcessesQueuedEvents(t *testing.T) {
	src := staticSource{entry("r", 1, 1, false, condition.Predicate{}, "x")}
	disp := &recordingDispatcher{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := New(ctx, rules.NewCache(src), disp, nil, config.EngineConf{EventWorkers: 2, QueueDepth: 16}, nil)

	b := bus.New()
	e.Attach(b)
	for i := 0; i < 5; i++ {
		b.Publish(context.Background(), statusChanged("approved"))
	}
	e.Shutdown()
	assert.Len(t, disp.seen(), 5)
	assert.Zero(t, e.QueueUtilization())
}

func TestQueueFullDropsUnlessFailOpen(t *testing.T) {
	block := make(chan struct{})
	src := staticSource{entry("r", 1, 1, false, condition.Predicate{}, "x")}
	blocking := &blockingDispatcher{release: block, started: make(chan struct{}, 8)}

	e := New(context.Background(), rules.NewCache(src), blocking, nil, config.EngineConf{EventWorkers: 1, QueueDepth: 1}, nil)
	require.NoError(t, e.HandleEvent(context.Background(), statusChanged("approved")))
	<-blocking.started
	require.NoError(t, e.HandleEvent(context.Background(), statusChanged("approved")))
	err := e.HandleEvent(context.Background(), statusChanged("approved"))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1.0, e.QueueUtilization())
	close(block)
	e.Shutdown()

	open := New(context.Background(), rules.NewCache(src), &recordingDispatcher{}, nil,
		config.EngineConf{EventWorkers: 1, QueueDepth: 1, FailOpen: true}, nil)
	defer open.Shutdown()
	for i := 0; i < 3; i++ {
		assert.NoError(t, open.HandleEvent(context.Background(), statusChanged("approved")))
	}
}

type blockingDispatcher struct {
	release chan struct{}
	started chan struct{}
}

func (d *blockingDispatcher) Execute(ctx context.Context, actionType string, _ map[string]interface{}, _ event.Event) (*action.Result, error) {
	d.started <- struct{}{}
	<-d.release
	return &action.Result{Type: actionType, Success: true}, nil
}

// An approved MIRV reserves its stock through a stopOnMatch rule; the
// lower-priority rule for the same event never runs.
func TestApprovalTriggersReservation(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	docs := document.NewService(db, b)
	ledger := inventory.New(db, inventory.WithPublisher(b))
	cost := decimal.NewFromInt(2)
	_, err = ledger.Add(ctx, inventory.Line{ItemID: "bolt", WarehouseID: "wh1", Quantity: decimal.NewFromInt(10), UnitCost: &cost})
	require.NoError(t, err)

	disp := action.NewDispatcher()
	disp.Register(stock.New(ledger, docs, nil))
	cache := rules.NewCache(rules.NewStoreSource(db, nil))
	admin := rules.NewService(db, cache, disp)

	wf, err := admin.CreateWorkflow(ctx, rules.Workflow{Name: "MIRV approvals", EntityType: "mirv", Priority: 10, IsActive: true})
	require.NoError(t, err)
	reserve := func(qty float64) []rules.ActionSpec {
		return []rules.ActionSpec{{ActionType: action.ReserveStock, Params: map[string]interface{}{
			"items": []interface{}{map[string]interface{}{"itemId": "bolt", "warehouseId": "wh1", "quantity": qty}},
		}}}
	}
	primary, err := admin.CreateRule(ctx, rules.Rule{WorkflowID: wf.ID, Name: "reserve on approval",
		TriggerEvent: event.DocumentStatusChanged, Conditions: approved, Actions: reserve(4),
		StopOnMatch: true, SortOrder: 1, IsActive: true})
	require.NoError(t, err)
	shadowed, err := admin.CreateRule(ctx, rules.Rule{WorkflowID: wf.ID, Name: "never reached",
		TriggerEvent: event.DocumentStatusChanged, Conditions: approved, Actions: reserve(1),
		SortOrder: 2, IsActive: true})
	require.NoError(t, err)

	e := New(ctx, cache, disp, db, config.EngineConf{}, nil)
	e.Attach(b)

	levels := approval.Thresholds{transition.MIRV: {{MinAmount: decimal.Zero, ApproverRole: "warehouse_manager", SLAHours: 24}}}
	approvals := approval.New(db, docs, levels)
	doc, err := docs.Create(ctx, document.CreateInput{Type: transition.MIRV, Number: "MIRV-100", Amount: decimal.NewFromInt(800)})
	require.NoError(t, err)
	_, err = approvals.SubmitForApproval(ctx, approval.SubmitInput{DocumentType: transition.MIRV, DocumentID: doc.ID,
		Amount: doc.Amount, SubmittedByID: "emp-1"})
	require.NoError(t, err)
	_, err = approvals.ProcessApproval(ctx, approval.ProcessInput{DocumentType: transition.MIRV, DocumentID: doc.ID,
		Action: approval.Approve, ProcessedByID: "emp-2"})
	require.NoError(t, err)

	bal, err := ledger.Balance(ctx, "bolt", "wh1")
	require.NoError(t, err)
	assert.True(t, bal.QtyReserved.Equal(decimal.NewFromInt(4)), "reserved %s", bal.QtyReserved)

	n, err := db.CountExecutionLogs(ctx, primary.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = db.CountExecutionLogs(ctx, shadowed.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := docs.Get(ctx, transition.MIRV, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, transition.Approved, transition.Status(got.Status))
	assert.Equal(t, document.ReservationFull, got.ReservationStatus)

	latest, err := db.LatestExecutionLog(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, primary.ID, latest.RuleID)
	assert.True(t, latest.Success)
}

// chainDispatcher publishes a follow-on event while handling "a:first".
type chainDispatcher struct {
	bus     *bus.Bus
	started chan struct{}
	release chan struct{}

	mu   sync.Mutex
	seen []string
}

func (d *chainDispatcher) Execute(ctx context.Context, actionType string, _ map[string]interface{}, ev event.Event) (*action.Result, error) {
	d.mu.Lock()
	d.seen = append(d.seen, ev.Type)
	d.mu.Unlock()
	if ev.Type == "a:first" {
		d.started <- struct{}{}
		<-d.release
		d.bus.Publish(ctx, event.Event{Type: "a:second", EntityType: "mirv"})
	}
	return &action.Result{Type: actionType, Success: true}, nil
}

func (d *chainDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.seen...)
}

func TestShutdownKeepsEventsPublishedWhileDraining(t *testing.T) {
	catchAll := entry("catch-all", 1, 1, false, condition.Predicate{}, "x")
	catchAll.Rule.TriggerEvent = event.Wildcard

	b := bus.New()
	disp := &chainDispatcher{bus: b, started: make(chan struct{}, 1), release: make(chan struct{})}
	e := New(context.Background(), rules.NewCache(staticSource{catchAll}), disp, nil, config.EngineConf{EventWorkers: 1, QueueDepth: 4}, nil)
	e.Attach(b)

	b.Publish(context.Background(), event.Event{Type: "a:first", EntityType: "mirv"})
	<-disp.started

	done := make(chan struct{})
	go func() {
		e.Shutdown()
		close(done)
	}()
	require.Eventually(t, func() bool {
		e.pool.mu.RLock()
		defer e.pool.mu.RUnlock()
		return e.pool.closed
	}, 2*time.Second, 5*time.Millisecond)
	close(disp.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	assert.Equal(t, []string{"a:first", "a:second"}, disp.types())
	assert.NoError(t, e.HandleEvent(context.Background(), event.Event{Type: "a:third", EntityType: "mirv"}))
	assert.Equal(t, []string{"a:first", "a:second", "a:third"}, disp.types())
}

// A change_status rule on approval:submitted sees the document's own status,
// not the approval request's.
func TestChangeStatusRuleOnApprovalSubmitted(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	docs := document.NewService(db, b)
	disp := action.NewDispatcher()
	disp.Register(statusaction.New(docs))
	cache := rules.NewCache(rules.NewStoreSource(db, nil))
	admin := rules.NewService(db, cache, disp)

	wf, err := admin.CreateWorkflow(ctx, rules.Workflow{Name: "MIRV auto-cancel", EntityType: "mirv", Priority: 1, IsActive: true})
	require.NoError(t, err)
	rule, err := admin.CreateRule(ctx, rules.Rule{WorkflowID: wf.ID, Name: "cancel on submit",
		TriggerEvent: event.ApprovalSubmitted,
		Actions:      []rules.ActionSpec{{ActionType: action.ChangeStatus, Params: map[string]interface{}{"status": "cancelled"}}},
		SortOrder:    1, IsActive: true})
	require.NoError(t, err)

	e := New(ctx, cache, disp, db, config.EngineConf{}, nil)
	e.Attach(b)

	levels := approval.Thresholds{transition.MIRV: {{MinAmount: decimal.Zero, ApproverRole: "warehouse_manager", SLAHours: 24}}}
	approvals := approval.New(db, docs, levels)
	doc, err := docs.Create(ctx, document.CreateInput{Type: transition.MIRV, Number: "MIRV-200", Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)
	_, err = approvals.SubmitForApproval(ctx, approval.SubmitInput{DocumentType: transition.MIRV, DocumentID: doc.ID,
		Amount: doc.Amount, SubmittedByID: "emp-1"})
	require.NoError(t, err)

	latest, err := db.LatestExecutionLog(ctx, rule.ID)
	require.NoError(t, err)
	assert.Nil(t, latest.Error)
	assert.True(t, latest.Success)

	got, err := docs.Get(ctx, transition.MIRV, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, transition.Cancelled, transition.Status(got.Status))
}
