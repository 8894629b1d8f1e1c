package transition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
)

func TestAssertTransition(t *testing.T) {
	cases := []struct {
		name    string
		docType DocumentType
		from    Status
		to      Status
		wantErr *apperr.Error
	}{
		{"mi submit", MI, Draft, PendingApproval, nil},
		{"mi approve", MI, PendingApproval, Approved, nil},
		{"mi issued back to draft", MI, Issued, Draft, apperr.ErrIllegalTransition},
		{"mi skip approval", MI, Draft, Issued, apperr.ErrIllegalTransition},
		{"mirv partial issue", MIRV, Approved, PartiallyIssued, nil},
		{"wt ship", WT, Approved, InTransit, nil},
		{"wt receive before ship", WT, Approved, Received, apperr.ErrIllegalTransition},
		{"jo resume", JO, OnHold, InProgress, nil},
		{"status from other table", MI, InTransit, Received, apperr.ErrIllegalTransition},
		{"unknown type", DocumentType("invoice"), Draft, PendingApproval, apperr.ErrUnknownDocumentType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := AssertTransition(tc.docType, tc.from, tc.to)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for _, dt := range Types() {
		for _, from := range Statuses(dt) {
			if !IsTerminal(dt, from) {
				continue
			}
			for _, to := range Statuses(dt) {
				assert.ErrorIs(t, AssertTransition(dt, from, to), apperr.ErrIllegalTransition,
					"%s: %s -> %s", dt, from, to)
			}
		}
	}
	assert.True(t, IsTerminal(MI, Completed))
	assert.True(t, IsTerminal(GRN, Closed))
	assert.False(t, IsTerminal(MI, Draft))
}

func TestParse(t *testing.T) {
	dt, err := Parse("mirv")
	require.NoError(t, err)
	assert.Equal(t, MIRV, dt)

	_, err = Parse("po")
	assert.ErrorIs(t, err, apperr.ErrUnknownDocumentType)
}
