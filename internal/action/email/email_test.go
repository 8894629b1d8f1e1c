package email

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/docflow/internal/event"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
)

func openStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSendEmailQueuesOutbox(t *testing.T) {
	db := openStore(t)
	a := New(db)
	ev := event.Event{
		Type:       event.DocumentStatusChanged,
		EntityType: "mirv",
		EntityID:   "mirv-1",
		Action:     "approve",
		Payload:    map[string]interface{}{"documentNumber": "MIRV-001", "status": "approved"},
		Timestamp:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	params := map[string]interface{}{
		"templateCode": "mirv_approved",
		"to":           []interface{}{"store@example.com", "ops@example.com"},
		"variables":    map[string]interface{}{"status": "APPROVED"},
	}

	res, err := a.Execute(context.Background(), params, ev)
	require.NoError(t, err)
	assert.True(t, res.Success)

	queued, err := db.ListOutboundEmails(context.Background())
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "mirv_approved", queued[0].TemplateCode)
	assert.Equal(t, "queued", queued[0].Status)

	var to []string
	require.NoError(t, json.Unmarshal([]byte(queued[0].Recipients), &to))
	assert.Equal(t, []string{"store@example.com", "ops@example.com"}, to)

	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(queued[0].Variables), &vars))
	assert.Equal(t, "MIRV-001", vars["documentNumber"])
	assert.Equal(t, "APPROVED", vars["status"])
	assert.Equal(t, "mirv-1", vars["entityId"])
}

func TestSendEmailValidate(t *testing.T) {
	a := New(nil)
	tests := []struct {
		name    string
		params  map[string]interface{}
		wantErr bool
	}{
		{"ok", map[string]interface{}{"templateCode": "t", "to": "a@example.com"}, false},
		{"missing template", map[string]interface{}{"to": "a@example.com"}, true},
		{"missing to", map[string]interface{}{"templateCode": "t"}, true},
		{"empty to list", map[string]interface{}{"templateCode": "t", "to": []interface{}{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Validate(tt.params)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
