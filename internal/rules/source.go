package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gyaneshwarpardhi/docflow/internal/condition"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
)

// RuleLister is the store query behind StoreSource.
type RuleLister interface {
	ListActiveRules(ctx context.Context) ([]store.ActiveRuleRow, error)
}

// StoreSource reads rules from the database. Rows whose JSON cannot be
// decoded are skipped and logged.
type StoreSource struct {
	db     RuleLister
	logger *slog.Logger
}

// NewStoreSource wraps db.
func NewStoreSource(db RuleLister, logger *slog.Logger) *StoreSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSource{db: db, logger: logger}
}

// FetchActiveRules implements Source.
func (s *StoreSource) FetchActiveRules(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		r, err := RuleFromRow(row.Rule)
		if err != nil {
			s.logger.Warn("skipping undecodable rule", "rule_id", row.Rule.ID, "err", err)
			continue
		}
		out = append(out, Entry{Rule: *r, Workflow: WorkflowFromRow(row.Workflow)})
	}
	return out, nil
}

// RuleFromRow decodes a stored rule.
func RuleFromRow(row store.RuleRow) (*Rule, error) {
	pred, err := condition.ParsePredicate([]byte(row.Conditions))
	if err != nil {
		return nil, err
	}
	var actions []ActionSpec
	if raw := strings.TrimSpace(row.Actions); raw != "" {
		if err := json.Unmarshal([]byte(raw), &actions); err != nil {
			return nil, fmt.Errorf("decode actions: %w", err)
		}
	}
	return &Rule{
		ID:           row.ID,
		WorkflowID:   row.WorkflowID,
		Name:         row.Name,
		TriggerEvent: row.TriggerEvent,
		Conditions:   pred,
		Actions:      actions,
		StopOnMatch:  row.StopOnMatch,
		SortOrder:    row.SortOrder,
		IsActive:     row.IsActive,
	}, nil
}

// WorkflowFromRow converts a stored workflow.
func WorkflowFromRow(w store.Workflow) Workflow {
	return Workflow{ID: w.ID, Name: w.Name, EntityType: w.EntityType, Priority: w.Priority, IsActive: w.IsActive}
}
