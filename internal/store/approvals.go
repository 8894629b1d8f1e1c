package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalRequest is one approval routing record.
type ApprovalRequest struct {
	ID            string
	DocumentType  string
	DocumentID    string
	Amount        decimal.Decimal
	Level         int
	ApproverRole  string
	SLAHours      int
	DueAt         time.Time
	Status        string
	SubmittedByID string
	DecidedByID   *string
	DecidedAt     *time.Time
	Comments      *string
	CreatedAt     time.Time
}

const approvalColumns = `id, document_type, document_id, amount, level, approver_role, sla_hours,
       due_at, status, submitted_by, decided_by, decided_at, comments, created_at`

// InsertApprovalRequest creates a request row.
func (c conn) InsertApprovalRequest(ctx context.Context, r *ApprovalRequest) error {
	_, err := c.exec(ctx, `
		INSERT INTO approval_requests (`+approvalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DocumentType, r.DocumentID, r.Amount.String(), r.Level, r.ApproverRole, r.SLAHours,
		toMillis(r.DueAt), r.Status, r.SubmittedByID, nullString(r.DecidedByID), nullMillis(r.DecidedAt),
		nullString(r.Comments), toMillis(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert approval request %s: %w", r.ID, err)
	}
	return nil
}

// FindApprovalRequest returns the request for a document in the given
// status, newest first. ErrNotFound when there is none.
func (c conn) FindApprovalRequest(ctx context.Context, docType, docID, status string) (*ApprovalRequest, error) {
	return c.findApproval(ctx, docType, docID, status, "")
}

// LockPendingApproval reads the pending request and holds its row lock.
func (t *Tx) LockPendingApproval(ctx context.Context, docType, docID string) (*ApprovalRequest, error) {
	return t.findApproval(ctx, docType, docID, "pending", t.forUpdate())
}

func (c conn) findApproval(ctx context.Context, docType, docID, status, suffix string) (*ApprovalRequest, error) {
	row := c.queryRow(ctx, `
		SELECT `+approvalColumns+` FROM approval_requests
		WHERE document_type = ? AND document_id = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1`+suffix,
		docType, docID, status,
	)
	r, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find approval request %s/%s: %w", docType, docID, err)
	}
	return r, nil
}

// LatestApprovalRequest returns the most recent request for a document in
// any status.
func (c conn) LatestApprovalRequest(ctx context.Context, docType, docID string) (*ApprovalRequest, error) {
	row := c.queryRow(ctx, `
		SELECT `+approvalColumns+` FROM approval_requests
		WHERE document_type = ? AND document_id = ?
		ORDER BY created_at DESC
		LIMIT 1`,
		docType, docID,
	)
	r, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest approval request %s/%s: %w", docType, docID, err)
	}
	return r, nil
}

// DecideApprovalRequest records a decision only while the request is still
// pending. Returns ErrConflict when it was already decided.
func (c conn) DecideApprovalRequest(ctx context.Context, id, status, decidedBy string, comments *string, at time.Time) error {
	res, err := c.exec(ctx, `
		UPDATE approval_requests
		SET status = ?, decided_by = ?, decided_at = ?, comments = ?
		WHERE id = ? AND status = 'pending'`,
		status, decidedBy, toMillis(at), nullString(comments), id,
	)
	if err != nil {
		return fmt.Errorf("decide approval request %s: %w", id, err)
	}
	return affectedOne(res)
}

// ListOverdueApprovals returns pending requests whose due time is before now.
func (c conn) ListOverdueApprovals(ctx context.Context, now time.Time) ([]*ApprovalRequest, error) {
	rows, err := c.query(ctx, `
		SELECT `+approvalColumns+` FROM approval_requests
		WHERE status = 'pending' AND due_at < ?
		ORDER BY due_at ASC`,
		toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue approvals: %w", err)
	}
	defer rows.Close()

	var out []*ApprovalRequest
	for rows.Next() {
		r, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanApproval(row rowScanner) (*ApprovalRequest, error) {
	var (
		r                ApprovalRequest
		dueAt, createdAt int64
		decidedBy, note  sql.NullString
		decidedAt        sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.DocumentType, &r.DocumentID, &r.Amount, &r.Level, &r.ApproverRole, &r.SLAHours,
		&dueAt, &r.Status, &r.SubmittedByID, &decidedBy, &decidedAt, &note, &createdAt); err != nil {
		return nil, err
	}
	r.DueAt = fromMillis(dueAt)
	r.DecidedByID = stringPtr(decidedBy)
	r.DecidedAt = timePtr(decidedAt)
	r.Comments = stringPtr(note)
	r.CreatedAt = fromMillis(createdAt)
	return &r, nil
}
