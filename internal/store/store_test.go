package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRebind(t *testing.T) {
	pg := conn{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	assert.Equal(t, " FOR UPDATE", pg.forUpdate())

	lite := conn{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
	assert.Empty(t, lite.forUpdate())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	require.Error(t, err)
}

func TestDocumentVersionedUpdate(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	doc := &Document{ID: "d1", Type: "mi", Status: "draft", Amount: decimal.RequireFromString("1250.50"), CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, db.InsertDocument(ctx, doc))

	got, err := db.GetDocument(ctx, "mi", "d1")
	require.NoError(t, err)
	assert.Equal(t, "draft", got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "none", got.ReservationStatus)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("1250.5")))
	assert.Nil(t, got.QCSignedOffByID)

	require.NoError(t, db.UpdateDocumentStatus(ctx, "mi", "d1", "pending_approval", 1, t0.Add(time.Minute)))
	err = db.UpdateDocumentStatus(ctx, "mi", "d1", "cancelled", 1, t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrConflict)

	got, err = db.GetDocument(ctx, "mi", "d1")
	require.NoError(t, err)
	assert.Equal(t, "pending_approval", got.Status)
	assert.Equal(t, int64(2), got.Version)

	_, err = db.GetDocument(ctx, "mirv", "d1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentOptionalFields(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	require.NoError(t, db.InsertDocument(ctx, &Document{ID: "d1", Type: "mirv", Status: "approved", CreatedAt: t0, UpdatedAt: t0}))

	require.NoError(t, db.UpdateDocumentQC(ctx, "mirv", "d1", "qc-7", t0))
	require.NoError(t, db.UpdateDocumentGatePass(ctx, "mirv", "d1", "gp-1", true, t0))
	require.NoError(t, db.UpdateDocumentReservation(ctx, "mirv", "d1", "partial", t0))

	got, err := db.GetDocument(ctx, "mirv", "d1")
	require.NoError(t, err)
	require.NotNil(t, got.QCSignedOffByID)
	assert.Equal(t, "qc-7", *got.QCSignedOffByID)
	require.NotNil(t, got.QCSignedOffAt)
	assert.True(t, got.QCSignedOffAt.Equal(t0))
	require.NotNil(t, got.GatePassID)
	assert.True(t, got.GatePassAutoCreated)
	assert.Equal(t, "partial", got.ReservationStatus)
	assert.Equal(t, int64(4), got.Version)

	assert.ErrorIs(t, db.UpdateDocumentQC(ctx, "mirv", "missing", "qc-7", t0), ErrNotFound)
}

func TestApprovalDecisionIsGuarded(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	req := &ApprovalRequest{
		ID: "a1", DocumentType: "mi", DocumentID: "d1", Amount: decimal.NewFromInt(75000),
		Level: 3, ApproverRole: "finance_manager", SLAHours: 48, DueAt: t0.Add(48 * time.Hour),
		Status: "pending", SubmittedByID: "u1", CreatedAt: t0,
	}
	require.NoError(t, db.InsertApprovalRequest(ctx, req))

	dup := *req
	dup.ID = "a2"
	require.Error(t, db.InsertApprovalRequest(ctx, &dup), "second pending request for the same document")

	require.NoError(t, db.DecideApprovalRequest(ctx, "a1", "approved", "u2", nil, t0.Add(time.Hour)))
	note := "late"
	assert.ErrorIs(t, db.DecideApprovalRequest(ctx, "a1", "rejected", "u3", &note, t0.Add(2*time.Hour)), ErrConflict)

	got, err := db.LatestApprovalRequest(ctx, "mi", "d1")
	require.NoError(t, err)
	assert.Equal(t, "approved", got.Status)
	require.NotNil(t, got.DecidedByID)
	assert.Equal(t, "u2", *got.DecidedByID)
	assert.Nil(t, got.Comments)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(75000)))

	_, err = db.FindApprovalRequest(ctx, "mi", "d1", "pending")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOverdueApprovals(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	for i, due := range []time.Duration{time.Hour, 24 * time.Hour} {
		id := []string{"a1", "a2"}[i]
		require.NoError(t, db.InsertApprovalRequest(ctx, &ApprovalRequest{
			ID: id, DocumentType: "mi", DocumentID: "doc-" + id, Amount: decimal.NewFromInt(10),
			Level: 1, ApproverRole: "supervisor", SLAHours: 1, DueAt: t0.Add(due), Status: "pending", CreatedAt: t0,
		}))
	}

	overdue, err := db.ListOverdueApprovals(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "a1", overdue[0].ID)
}

func TestStockBalanceOptimisticVersion(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	b := &StockBalance{ItemID: "i1", WarehouseID: "w1", QtyOnHand: decimal.NewFromInt(12), UpdatedAt: t0}
	require.NoError(t, db.InsertStockBalance(ctx, b))

	stale, err := db.GetStockBalance(ctx, "i1", "w1")
	require.NoError(t, err)

	b.QtyReserved = decimal.NewFromInt(10)
	require.NoError(t, db.UpdateStockBalance(ctx, b))
	assert.Equal(t, int64(2), b.Version)

	stale.QtyReserved = decimal.NewFromInt(5)
	assert.ErrorIs(t, db.UpdateStockBalance(ctx, stale), ErrConflict)

	got, err := db.GetStockBalance(ctx, "i1", "w1")
	require.NoError(t, err)
	assert.True(t, got.QtyReserved.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.Available().Equal(decimal.NewFromInt(2)))
}

func TestInsertStockBalanceDuplicateIsConflict(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	first := &StockBalance{ItemID: "i1", WarehouseID: "w1", QtyOnHand: decimal.NewFromInt(3), UpdatedAt: t0}
	require.NoError(t, db.InsertStockBalance(ctx, first))

	second := &StockBalance{ItemID: "i1", WarehouseID: "w1", QtyOnHand: decimal.NewFromInt(5), UpdatedAt: t0}
	assert.ErrorIs(t, db.InsertStockBalance(ctx, second), ErrConflict)

	got, err := db.GetStockBalance(ctx, "i1", "w1")
	require.NoError(t, err)
	assert.True(t, got.QtyOnHand.Equal(decimal.NewFromInt(3)))
}

func TestInsertNotificationsAllOrNothing(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	err := db.InsertNotifications(ctx, []*Notification{
		{ID: "n1", RecipientID: "e1", Title: "hi", CreatedAt: t0},
		{ID: "n1", RecipientID: "e2", Title: "hi", CreatedAt: t0},
	})
	require.Error(t, err)
	got, err := db.ListNotifications(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, db.InsertNotifications(ctx, []*Notification{
		{ID: "n1", RecipientID: "e1", Title: "hi", CreatedAt: t0},
		{ID: "n2", RecipientID: "e2", Title: "hi", CreatedAt: t0},
	}))
	got, err = db.ListNotifications(ctx, "e2")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestWithTxRollsBack(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertDocument(ctx, &Document{ID: "d1", Type: "mi", Status: "draft", CreatedAt: t0, UpdatedAt: t0}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = db.GetDocument(ctx, "mi", "d1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListActiveRulesOrderingAndFiltering(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	workflows := []*Workflow{
		{ID: "w-low", Name: "low", EntityType: "mirv", Priority: 1, IsActive: true},
		{ID: "w-high", Name: "high", EntityType: "mirv", Priority: 10, IsActive: true},
		{ID: "w-off", Name: "off", EntityType: "mirv", Priority: 99, IsActive: false},
	}
	for _, w := range workflows {
		w.CreatedAt, w.UpdatedAt = t0, t0
		require.NoError(t, db.InsertWorkflow(ctx, w))
	}
	rules := []*RuleRow{
		{ID: "r1", WorkflowID: "w-low", TriggerEvent: "*", SortOrder: 0, IsActive: true},
		{ID: "r2", WorkflowID: "w-high", TriggerEvent: "*", SortOrder: 2, IsActive: true},
		{ID: "r3", WorkflowID: "w-high", TriggerEvent: "*", SortOrder: 1, IsActive: true},
		{ID: "r4", WorkflowID: "w-high", TriggerEvent: "*", SortOrder: 0, IsActive: false},
		{ID: "r5", WorkflowID: "w-off", TriggerEvent: "*", SortOrder: 0, IsActive: true},
	}
	for _, r := range rules {
		r.Conditions, r.Actions = "{}", "[]"
		r.CreatedAt, r.UpdatedAt = t0, t0
		require.NoError(t, db.InsertRule(ctx, r))
	}

	got, err := db.ListActiveRules(ctx)
	require.NoError(t, err)
	var ids []string
	for _, ar := range got {
		ids = append(ids, ar.Rule.ID)
	}
	assert.Equal(t, []string{"r3", "r2", "r1"}, ids)
	assert.Equal(t, 10, got[0].Workflow.Priority)

	require.NoError(t, db.DeleteWorkflow(ctx, "w-high"))
	_, err = db.GetRule(ctx, "r2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListActiveRulesEmpty(t *testing.T) {
	db := openTest(t)
	got, err := db.ListActiveRules(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExecutionLogLatest(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	_, err := db.LatestExecutionLog(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	msg := "webhook: status 502"
	require.NoError(t, db.InsertExecutionLog(ctx, &ExecutionLog{ID: "l1", RuleID: "r1", WorkflowID: "w1", EventType: "x", Success: true, Results: "[]", ExecutedAt: t0}))
	require.NoError(t, db.InsertExecutionLog(ctx, &ExecutionLog{ID: "l2", RuleID: "r2", WorkflowID: "w1", EventType: "x", Results: "[]", Error: &msg, ExecutedAt: t0.Add(time.Second)}))

	latest, err := db.LatestExecutionLog(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "l2", latest.ID)
	assert.False(t, latest.Success)
	require.NotNil(t, latest.Error)
	assert.Equal(t, msg, *latest.Error)

	forRule, err := db.LatestExecutionLog(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "l1", forRule.ID)

	n, err := db.CountExecutionLogs(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEmployeesByRole(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	for i, e := range []*Employee{
		{ID: "e1", Name: "Ana", Role: "storekeeper", IsActive: true},
		{ID: "e2", Name: "Bo", Role: "storekeeper", IsActive: false},
		{ID: "e3", Name: "Cy", Role: "storekeeper", IsActive: true},
		{ID: "e4", Name: "Di", Role: "driver", IsActive: true},
	} {
		e.CreatedAt = t0.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.InsertEmployee(ctx, e))
	}

	got, err := db.ActiveEmployeesByRole(ctx, "storekeeper")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, "e3", got[1].ID)

	none, err := db.ActiveEmployeesByRole(ctx, "auditor")
	require.NoError(t, err)
	assert.Empty(t, none)
}
