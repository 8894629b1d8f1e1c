package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Employee is a directory entry used to resolve action recipients.
type Employee struct {
	ID        string
	Name      string
	Email     string
	Role      string
	IsActive  bool
	CreatedAt time.Time
}

// Notification is an in-app notification row.
type Notification struct {
	ID          string
	RecipientID string
	Title       string
	Body        string
	EntityType  string
	EntityID    string
	CreatedAt   time.Time
}

// Task is a work item produced by the assign_task action.
type Task struct {
	ID          string
	Title       string
	Description string
	AssigneeID  *string
	Priority    string
	Status      string
	EntityType  string
	EntityID    string
	DueAt       *time.Time
	CreatedAt   time.Time
}

// OutboundEmail is a queued email awaiting delivery by an external sender.
type OutboundEmail struct {
	ID           string
	TemplateCode string
	Recipients   string // JSON array
	Variables    string // JSON object
	Status       string
	CreatedAt    time.Time
}

// InsertEmployee creates an employee.
func (c conn) InsertEmployee(ctx context.Context, e *Employee) error {
	_, err := c.exec(ctx, `
		INSERT INTO employees (id, name, email, role, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Email, e.Role, boolInt(e.IsActive), toMillis(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert employee %s: %w", e.ID, err)
	}
	return nil
}

// ActiveEmployeesByRole lists active employees holding role, oldest first.
func (c conn) ActiveEmployeesByRole(ctx context.Context, role string) ([]*Employee, error) {
	rows, err := c.query(ctx, `
		SELECT id, name, email, role, is_active, created_at FROM employees
		WHERE role = ? AND is_active = 1
		ORDER BY created_at ASC, id ASC`, role)
	if err != nil {
		return nil, fmt.Errorf("list employees by role %s: %w", role, err)
	}
	defer rows.Close()

	var out []*Employee
	for rows.Next() {
		var (
			e       Employee
			active  int
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.Role, &active, &created); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		e.IsActive = active != 0
		e.CreatedAt = fromMillis(created)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// InsertNotification creates a notification.
func (c conn) InsertNotification(ctx context.Context, n *Notification) error {
	_, err := c.exec(ctx, `
		INSERT INTO notifications (id, recipient_id, title, body, entity_type, entity_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.Title, n.Body, n.EntityType, n.EntityID, toMillis(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notification %s: %w", n.ID, err)
	}
	return nil
}

// InsertNotifications creates every notification in ns or none of them.
func (db *DB) InsertNotifications(ctx context.Context, ns []*Notification) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		for _, n := range ns {
			if err := tx.InsertNotification(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListNotifications returns a recipient's notifications, newest first.
func (c conn) ListNotifications(ctx context.Context, recipientID string) ([]*Notification, error) {
	rows, err := c.query(ctx, `
		SELECT id, recipient_id, title, body, entity_type, entity_id, created_at FROM notifications
		WHERE recipient_id = ? ORDER BY created_at DESC, id DESC`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list notifications %s: %w", recipientID, err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var (
			n       Notification
			created int64
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Body, &n.EntityType, &n.EntityID, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.CreatedAt = fromMillis(created)
		out = append(out, &n)
	}
	return out, rows.Err()
}

// InsertTask creates a task.
func (c conn) InsertTask(ctx context.Context, t *Task) error {
	_, err := c.exec(ctx, `
		INSERT INTO tasks (id, title, description, assignee_id, priority, status, entity_type, entity_id, due_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, nullString(t.AssigneeID), t.Priority, t.Status,
		t.EntityType, t.EntityID, nullMillis(t.DueAt), toMillis(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask reads one task.
func (c conn) GetTask(ctx context.Context, id string) (*Task, error) {
	var (
		t        Task
		assignee sql.NullString
		due      sql.NullInt64
		created  int64
	)
	err := c.queryRow(ctx, `
		SELECT id, title, description, assignee_id, priority, status, entity_type, entity_id, due_at, created_at
		FROM tasks WHERE id = ?`, id).
		Scan(&t.ID, &t.Title, &t.Description, &assignee, &t.Priority, &t.Status, &t.EntityType, &t.EntityID, &due, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	t.AssigneeID = stringPtr(assignee)
	t.DueAt = timePtr(due)
	t.CreatedAt = fromMillis(created)
	return &t, nil
}

// InsertOutboundEmail queues an email.
func (c conn) InsertOutboundEmail(ctx context.Context, e *OutboundEmail) error {
	if e.Status == "" {
		e.Status = "queued"
	}
	_, err := c.exec(ctx, `
		INSERT INTO email_outbox (id, template_code, recipients, variables, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.TemplateCode, e.Recipients, e.Variables, e.Status, toMillis(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert outbound email %s: %w", e.ID, err)
	}
	return nil
}

// ListOutboundEmails returns queued emails, oldest first.
func (c conn) ListOutboundEmails(ctx context.Context) ([]*OutboundEmail, error) {
	rows, err := c.query(ctx, `
		SELECT id, template_code, recipients, variables, status, created_at FROM email_outbox
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list outbound emails: %w", err)
	}
	defer rows.Close()

	var out []*OutboundEmail
	for rows.Next() {
		var (
			e       OutboundEmail
			created int64
		)
		if err := rows.Scan(&e.ID, &e.TemplateCode, &e.Recipients, &e.Variables, &e.Status, &created); err != nil {
			return nil, fmt.Errorf("scan outbound email: %w", err)
		}
		e.CreatedAt = fromMillis(created)
		out = append(out, &e)
	}
	return out, rows.Err()
}
