package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Document is the status-bearing header shared by every document type.
type Document struct {
	ID                  string
	Type                string
	Number              string
	Status              string
	Amount              decimal.Decimal
	Version             int64
	QCSignedOffByID     *string
	QCSignedOffAt       *time.Time
	GatePassID          *string
	GatePassAutoCreated bool
	ReservationStatus   string
	CreatedByID         *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

const documentColumns = `id, doc_type, doc_number, status, amount, version,
       qc_signed_off_by, qc_signed_off_at, gate_pass_id, gate_pass_auto_created,
       reservation_status, created_by, created_at, updated_at`

// InsertDocument creates a document row.
func (c conn) InsertDocument(ctx context.Context, d *Document) error {
	if d.ReservationStatus == "" {
		d.ReservationStatus = "none"
	}
	if d.Version == 0 {
		d.Version = 1
	}
	_, err := c.exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Type, d.Number, d.Status, d.Amount.String(), d.Version,
		nullString(d.QCSignedOffByID), nullMillis(d.QCSignedOffAt), nullString(d.GatePassID), boolInt(d.GatePassAutoCreated),
		d.ReservationStatus, nullString(d.CreatedByID), toMillis(d.CreatedAt), toMillis(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", d.ID, err)
	}
	return nil
}

// GetDocument reads a document without locking.
func (c conn) GetDocument(ctx context.Context, docType, id string) (*Document, error) {
	return c.getDocument(ctx, docType, id, "")
}

// LockDocument reads a document and holds its row lock until the
// transaction ends.
func (t *Tx) LockDocument(ctx context.Context, docType, id string) (*Document, error) {
	return t.getDocument(ctx, docType, id, t.forUpdate())
}

func (c conn) getDocument(ctx context.Context, docType, id, suffix string) (*Document, error) {
	row := c.queryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_type = ? AND id = ?`+suffix, docType, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", docType, id, err)
	}
	return d, nil
}

// UpdateDocumentStatus writes a new status if the row is still at
// expectedVersion. Returns ErrConflict otherwise.
func (c conn) UpdateDocumentStatus(ctx context.Context, docType, id, status string, expectedVersion int64, at time.Time) error {
	res, err := c.exec(ctx, `
		UPDATE documents SET status = ?, version = version + 1, updated_at = ?
		WHERE doc_type = ? AND id = ? AND version = ?`,
		status, toMillis(at), docType, id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update document status %s/%s: %w", docType, id, err)
	}
	return affectedOne(res)
}

// UpdateDocumentQC records the QC sign-off.
func (c conn) UpdateDocumentQC(ctx context.Context, docType, id, signedBy string, at time.Time) error {
	res, err := c.exec(ctx, `
		UPDATE documents SET qc_signed_off_by = ?, qc_signed_off_at = ?, version = version + 1, updated_at = ?
		WHERE doc_type = ? AND id = ?`,
		signedBy, toMillis(at), toMillis(at), docType, id,
	)
	if err != nil {
		return fmt.Errorf("update document qc %s/%s: %w", docType, id, err)
	}
	if err := affectedOne(res); err != nil {
		return ErrNotFound
	}
	return nil
}

// UpdateDocumentGatePass links a gate pass to the document.
func (c conn) UpdateDocumentGatePass(ctx context.Context, docType, id, gatePassID string, auto bool, at time.Time) error {
	res, err := c.exec(ctx, `
		UPDATE documents SET gate_pass_id = ?, gate_pass_auto_created = ?, version = version + 1, updated_at = ?
		WHERE doc_type = ? AND id = ?`,
		gatePassID, boolInt(auto), toMillis(at), docType, id,
	)
	if err != nil {
		return fmt.Errorf("update document gate pass %s/%s: %w", docType, id, err)
	}
	if err := affectedOne(res); err != nil {
		return ErrNotFound
	}
	return nil
}

// UpdateDocumentReservation records the reservation outcome.
func (c conn) UpdateDocumentReservation(ctx context.Context, docType, id, reservationStatus string, at time.Time) error {
	res, err := c.exec(ctx, `
		UPDATE documents SET reservation_status = ?, version = version + 1, updated_at = ?
		WHERE doc_type = ? AND id = ?`,
		reservationStatus, toMillis(at), docType, id,
	)
	if err != nil {
		return fmt.Errorf("update document reservation %s/%s: %w", docType, id, err)
	}
	if err := affectedOne(res); err != nil {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		d                  Document
		qcBy, gatePass, by sql.NullString
		qcAt               sql.NullInt64
		autoGate           int
		createdAt, updated int64
	)
	if err := row.Scan(&d.ID, &d.Type, &d.Number, &d.Status, &d.Amount, &d.Version,
		&qcBy, &qcAt, &gatePass, &autoGate,
		&d.ReservationStatus, &by, &createdAt, &updated); err != nil {
		return nil, err
	}
	d.QCSignedOffByID = stringPtr(qcBy)
	d.QCSignedOffAt = timePtr(qcAt)
	d.GatePassID = stringPtr(gatePass)
	d.GatePassAutoCreated = autoGate != 0
	d.CreatedByID = stringPtr(by)
	d.CreatedAt = fromMillis(createdAt)
	d.UpdatedAt = fromMillis(updated)
	return &d, nil
}
