package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Workflow groups rules for one entity type.
type Workflow struct {
	ID         string
	Name       string
	EntityType string
	Priority   int
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RuleRow is a workflow rule as stored. Conditions and Actions are raw JSON.
type RuleRow struct {
	ID           string
	WorkflowID   string
	Name         string
	TriggerEvent string
	Conditions   string
	Actions      string
	StopOnMatch  bool
	SortOrder    int
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ActiveRuleRow joins an active rule with its active workflow.
type ActiveRuleRow struct {
	Rule     RuleRow
	Workflow Workflow
}

// InsertWorkflow creates a workflow.
func (c conn) InsertWorkflow(ctx context.Context, w *Workflow) error {
	_, err := c.exec(ctx, `
		INSERT INTO workflows (id, name, entity_type, priority, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.EntityType, w.Priority, boolInt(w.IsActive), toMillis(w.CreatedAt), toMillis(w.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert workflow %s: %w", w.ID, err)
	}
	return nil
}

// UpdateWorkflow overwrites a workflow's mutable fields.
func (c conn) UpdateWorkflow(ctx context.Context, w *Workflow) error {
	res, err := c.exec(ctx, `
		UPDATE workflows SET name = ?, entity_type = ?, priority = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		w.Name, w.EntityType, w.Priority, boolInt(w.IsActive), toMillis(w.UpdatedAt), w.ID)
	if err != nil {
		return fmt.Errorf("update workflow %s: %w", w.ID, err)
	}
	if affectedOne(res) != nil {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkflow removes a workflow and its rules.
func (c conn) DeleteWorkflow(ctx context.Context, id string) error {
	if _, err := c.exec(ctx, `DELETE FROM workflow_rules WHERE workflow_id = ?`, id); err != nil {
		return fmt.Errorf("delete workflow rules %s: %w", id, err)
	}
	res, err := c.exec(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workflow %s: %w", id, err)
	}
	if affectedOne(res) != nil {
		return ErrNotFound
	}
	return nil
}

// GetWorkflow reads one workflow.
func (c conn) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var (
		w                  Workflow
		active             int
		created, updatedAt int64
	)
	err := c.queryRow(ctx, `
		SELECT id, name, entity_type, priority, is_active, created_at, updated_at
		FROM workflows WHERE id = ?`, id).
		Scan(&w.ID, &w.Name, &w.EntityType, &w.Priority, &active, &created, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	w.IsActive = active != 0
	w.CreatedAt = fromMillis(created)
	w.UpdatedAt = fromMillis(updatedAt)
	return &w, nil
}

// InsertRule creates a rule.
func (c conn) InsertRule(ctx context.Context, r *RuleRow) error {
	_, err := c.exec(ctx, `
		INSERT INTO workflow_rules (id, workflow_id, name, trigger_event, conditions, actions,
		                            stop_on_match, sort_order, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.WorkflowID, r.Name, r.TriggerEvent, r.Conditions, r.Actions,
		boolInt(r.StopOnMatch), r.SortOrder, boolInt(r.IsActive), toMillis(r.CreatedAt), toMillis(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", r.ID, err)
	}
	return nil
}

// UpdateRule overwrites a rule's mutable fields.
func (c conn) UpdateRule(ctx context.Context, r *RuleRow) error {
	res, err := c.exec(ctx, `
		UPDATE workflow_rules
		SET name = ?, trigger_event = ?, conditions = ?, actions = ?, stop_on_match = ?,
		    sort_order = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, r.TriggerEvent, r.Conditions, r.Actions, boolInt(r.StopOnMatch),
		r.SortOrder, boolInt(r.IsActive), toMillis(r.UpdatedAt), r.ID)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", r.ID, err)
	}
	if affectedOne(res) != nil {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes a rule.
func (c conn) DeleteRule(ctx context.Context, id string) error {
	res, err := c.exec(ctx, `DELETE FROM workflow_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if affectedOne(res) != nil {
		return ErrNotFound
	}
	return nil
}

// GetRule reads one rule.
func (c conn) GetRule(ctx context.Context, id string) (*RuleRow, error) {
	row := c.queryRow(ctx, `
		SELECT id, workflow_id, name, trigger_event, conditions, actions, stop_on_match,
		       sort_order, is_active, created_at, updated_at
		FROM workflow_rules WHERE id = ?`, id)
	var (
		r                  RuleRow
		stop, active       int
		created, updatedAt int64
	)
	err := row.Scan(&r.ID, &r.WorkflowID, &r.Name, &r.TriggerEvent, &r.Conditions, &r.Actions, &stop,
		&r.SortOrder, &active, &created, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	r.StopOnMatch = stop != 0
	r.IsActive = active != 0
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}

// ListActiveRules returns rules where both the rule and its workflow are
// active, ordered by workflow priority DESC, then rule sort order ASC.
func (c conn) ListActiveRules(ctx context.Context) ([]ActiveRuleRow, error) {
	rows, err := c.query(ctx, `
		SELECT r.id, r.workflow_id, r.name, r.trigger_event, r.conditions, r.actions,
		       r.stop_on_match, r.sort_order, r.is_active,
		       w.id, w.name, w.entity_type, w.priority, w.is_active
		FROM workflow_rules r
		JOIN workflows w ON w.id = r.workflow_id
		WHERE r.is_active = 1 AND w.is_active = 1
		ORDER BY w.priority DESC, r.sort_order ASC, r.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	out := []ActiveRuleRow{}
	for rows.Next() {
		var (
			ar                         ActiveRuleRow
			stop, ruleActive, wfActive int
		)
		if err := rows.Scan(&ar.Rule.ID, &ar.Rule.WorkflowID, &ar.Rule.Name, &ar.Rule.TriggerEvent,
			&ar.Rule.Conditions, &ar.Rule.Actions, &stop, &ar.Rule.SortOrder, &ruleActive,
			&ar.Workflow.ID, &ar.Workflow.Name, &ar.Workflow.EntityType, &ar.Workflow.Priority, &wfActive); err != nil {
			return nil, fmt.Errorf("scan active rule: %w", err)
		}
		ar.Rule.StopOnMatch = stop != 0
		ar.Rule.IsActive = ruleActive != 0
		ar.Workflow.IsActive = wfActive != 0
		out = append(out, ar)
	}
	return out, rows.Err()
}
