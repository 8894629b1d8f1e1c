// Package transition validates document status changes against the
// per-document-type transition tables.
//
// The tables are static Go literals. Every document type is listed in
// documentTypes; looking up anything else is an UNKNOWN_DOCUMENT_TYPE error.
package transition

import (
	"fmt"
	"sort"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
)

// DocumentType identifies a status-bearing document kind.
type DocumentType string

const (
	MIRV DocumentType = "mirv" // material issue request voucher
	MI   DocumentType = "mi"   // material issue
	MRRV DocumentType = "mrrv" // material receiving report voucher
	GRN  DocumentType = "grn"  // goods received note
	WT   DocumentType = "wt"   // warehouse transfer
	JO   DocumentType = "jo"   // job order
)

// Status is a document status name. Statuses are only meaningful within
// their document type's table.
type Status string

const (
	Draft           Status = "draft"
	PendingApproval Status = "pending_approval"
	Approved        Status = "approved"
	Rejected        Status = "rejected"
	PartiallyIssued Status = "partially_issued"
	Issued          Status = "issued"
	Received        Status = "received"
	InTransit       Status = "in_transit"
	InProgress      Status = "in_progress"
	OnHold          Status = "on_hold"
	Completed       Status = "completed"
	Closed          Status = "closed"
	Cancelled       Status = "cancelled"
)

type table map[Status][]Status

var documentTypes = map[DocumentType]table{
	MIRV: {
		Draft:           {PendingApproval, Cancelled},
		PendingApproval: {Approved, Rejected, Cancelled},
		Approved:        {PartiallyIssued, Issued, Cancelled},
		PartiallyIssued: {Issued},
		Issued:          {Completed},
		Rejected:        {Draft, PendingApproval},
		Completed:       nil,
		Cancelled:       nil,
	},
	MI: {
		Draft:           {PendingApproval, Cancelled},
		PendingApproval: {Approved, Rejected},
		Approved:        {Issued, Cancelled},
		Issued:          {Completed},
		Rejected:        {Draft, PendingApproval},
		Completed:       nil,
		Cancelled:       nil,
	},
	MRRV: {
		Draft:           {PendingApproval, Cancelled},
		PendingApproval: {Approved, Rejected},
		Approved:        {Received, Cancelled},
		Received:        {Completed},
		Rejected:        {Draft, PendingApproval},
		Completed:       nil,
		Cancelled:       nil,
	},
	GRN: {
		Draft:           {PendingApproval, Cancelled},
		PendingApproval: {Approved, Rejected},
		Approved:        {Received, Cancelled},
		Received:        {Closed},
		Rejected:        {Draft, PendingApproval},
		Closed:          nil,
		Cancelled:       nil,
	},
	WT: {
		Draft:           {PendingApproval, Cancelled},
		PendingApproval: {Approved, Rejected},
		Approved:        {InTransit, Cancelled},
		InTransit:       {Received},
		Received:        {Completed},
		Rejected:        {Draft, PendingApproval},
		Completed:       nil,
		Cancelled:       nil,
	},
	JO: {
		Draft:           {PendingApproval, Cancelled},
		PendingApproval: {Approved, Rejected},
		Approved:        {InProgress, Cancelled},
		InProgress:      {OnHold, Completed},
		OnHold:          {InProgress, Cancelled},
		Rejected:        {Draft, PendingApproval},
		Completed:       nil,
		Cancelled:       nil,
	},
}

func init() {
	for dt, t := range documentTypes {
		for from, tos := range t {
			for _, to := range tos {
				if _, ok := t[to]; !ok {
					panic(fmt.Sprintf("transition: %s table: %s -> %s targets undeclared status", dt, from, to))
				}
			}
		}
	}
}

// AssertTransition fails with ILLEGAL_TRANSITION when to is not reachable
// from from in docType's table.
func AssertTransition(docType DocumentType, from, to Status) error {
	t, ok := documentTypes[docType]
	if !ok {
		return apperr.New(apperr.ErrUnknownDocumentType, "%q", docType)
	}
	if _, ok := t[from]; !ok {
		return apperr.New(apperr.ErrIllegalTransition, "%s: unknown status %q", docType, from)
	}
	for _, next := range t[from] {
		if next == to {
			return nil
		}
	}
	return apperr.New(apperr.ErrIllegalTransition, "%s: %s -> %s", docType, from, to)
}

// Known reports whether docType has a transition table.
func Known(docType DocumentType) bool {
	_, ok := documentTypes[docType]
	return ok
}

// Parse converts a raw entity type into a DocumentType.
func Parse(raw string) (DocumentType, error) {
	dt := DocumentType(raw)
	if !Known(dt) {
		return "", apperr.New(apperr.ErrUnknownDocumentType, "%q", raw)
	}
	return dt, nil
}

// Types returns all document types, sorted.
func Types() []DocumentType {
	out := make([]DocumentType, 0, len(documentTypes))
	for dt := range documentTypes {
		out = append(out, dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Statuses returns the declared statuses of docType, sorted.
func Statuses(docType DocumentType) []Status {
	t := documentTypes[docType]
	out := make([]Status, 0, len(t))
	for s := range t {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsTerminal reports whether status has no outgoing edges.
func IsTerminal(docType DocumentType, status Status) bool {
	t, ok := documentTypes[docType]
	if !ok {
		return false
	}
	next, declared := t[status]
	return declared && len(next) == 0
}
