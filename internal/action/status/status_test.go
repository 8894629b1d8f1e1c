package status

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
	"github.com/gyaneshwarpardhi/docflow/internal/document"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
	"github.com/gyaneshwarpardhi/docflow/internal/transition"
)

type discard struct{}

func (discard) Publish(context.Context, event.Event) {}

func newDocs(t *testing.T) *document.Service {
	t.Helper()
	db, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return document.NewService(db, discard{})
}

func TestChangeStatus(t *testing.T) {
	ctx := context.Background()
	docs := newDocs(t)
	doc, err := docs.Create(ctx, document.CreateInput{Type: transition.MI, Number: "MI-7", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	tests := []struct {
		name     string
		params   map[string]interface{}
		ev       event.Event
		wantCode apperr.Code
	}{
		{
			name:     "unknown entity type",
			params:   map[string]interface{}{"status": "cancelled"},
			ev:       event.Event{EntityType: "invoice", EntityID: doc.ID},
			wantCode: apperr.CodeUnknownDocumentType,
		},
		{
			name:     "stale status in payload",
			params:   map[string]interface{}{"status": "cancelled"},
			ev:       event.Event{EntityType: "mi", EntityID: doc.ID, Payload: map[string]interface{}{"status": "approved"}},
			wantCode: apperr.CodeConcurrentModification,
		},
		{
			name:     "illegal target",
			params:   map[string]interface{}{"status": "completed"},
			ev:       event.Event{EntityType: "mi", EntityID: doc.ID, Payload: map[string]interface{}{"status": "draft"}},
			wantCode: apperr.CodeIllegalTransition,
		},
		{
			name:   "draft to cancelled",
			params: map[string]interface{}{"status": "cancelled"},
			ev:     event.Event{EntityType: "mi", EntityID: doc.ID, Payload: map[string]interface{}{"status": "draft"}},
		},
	}
	a := New(docs)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Execute(ctx, tt.params, tt.ev)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
				assert.False(t, res.Success)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "cancelled", res.Output["to"])
		})
	}

	got, err := docs.Get(ctx, transition.MI, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", got.Status)
}

func TestCurrentStatusPrefersNewValues(t *testing.T) {
	ev := event.Event{Payload: map[string]interface{}{
		"status":    "pending_approval",
		"newValues": map[string]interface{}{"status": "approved"},
	}}
	assert.Equal(t, transition.Approved, CurrentStatus(ev))
	assert.Equal(t, transition.Status(""), CurrentStatus(event.Event{}))
}
