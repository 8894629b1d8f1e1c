package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ExecutionLog records one rule firing and the outcome of its actions.
type ExecutionLog struct {
	ID         string
	RuleID     string
	WorkflowID string
	EventID    string
	EventType  string
	EntityType string
	EntityID   string
	Success    bool
	Results    string // JSON array of action results
	Error      *string
	ExecutedAt time.Time
}

// InsertExecutionLog appends a log row.
func (c conn) InsertExecutionLog(ctx context.Context, l *ExecutionLog) error {
	_, err := c.exec(ctx, `
		INSERT INTO rule_execution_logs (id, rule_id, workflow_id, event_id, event_type, entity_type,
		                                 entity_id, success, results, error_message, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.RuleID, l.WorkflowID, l.EventID, l.EventType, l.EntityType,
		l.EntityID, boolInt(l.Success), l.Results, nullString(l.Error), toMillis(l.ExecutedAt))
	if err != nil {
		return fmt.Errorf("insert execution log %s: %w", l.ID, err)
	}
	return nil
}

// LatestExecutionLog returns the most recent log row, optionally limited to
// one rule. ErrNotFound when there is none.
func (c conn) LatestExecutionLog(ctx context.Context, ruleID string) (*ExecutionLog, error) {
	query := `
		SELECT id, rule_id, workflow_id, event_id, event_type, entity_type, entity_id,
		       success, results, error_message, executed_at
		FROM rule_execution_logs`
	var args []any
	if ruleID != "" {
		query += ` WHERE rule_id = ?`
		args = append(args, ruleID)
	}
	query += ` ORDER BY executed_at DESC, id DESC LIMIT 1`

	var (
		l        ExecutionLog
		success  int
		errMsg   sql.NullString
		executed int64
	)
	err := c.queryRow(ctx, query, args...).Scan(&l.ID, &l.RuleID, &l.WorkflowID, &l.EventID, &l.EventType,
		&l.EntityType, &l.EntityID, &success, &l.Results, &errMsg, &executed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest execution log: %w", err)
	}
	l.Success = success != 0
	l.Error = stringPtr(errMsg)
	l.ExecutedAt = fromMillis(executed)
	return &l, nil
}

// CountExecutionLogs counts log rows for a rule.
func (c conn) CountExecutionLogs(ctx context.Context, ruleID string) (int, error) {
	var n int
	if err := c.queryRow(ctx, `SELECT COUNT(*) FROM rule_execution_logs WHERE rule_id = ?`, ruleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count execution logs: %w", err)
	}
	return n, nil
}
