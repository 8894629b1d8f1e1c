// Package apperr defines the domain error taxonomy shared by the workflow core.
//
// Every error carries a Kind (the class used for propagation and HTTP mapping)
// and a stable Code that callers and clients can match on.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindBusinessRuleViolation Kind = "business_rule_violation"
	KindUnknownAction         Kind = "unknown_action"
	KindValidation            Kind = "validation"
)

// Code is a machine-readable, stable error code.
type Code string

const (
	CodeNotFound                  Code = "NOT_FOUND"
	CodeIllegalTransition         Code = "ILLEGAL_TRANSITION"
	CodeUnknownDocumentType       Code = "UNKNOWN_DOCUMENT_TYPE"
	CodeNoApprovalLevelConfigured Code = "NO_APPROVAL_LEVEL_CONFIGURED"
	CodeNoPendingApproval         Code = "NO_PENDING_APPROVAL"
	CodeApprovalAlreadyDecided    Code = "APPROVAL_ALREADY_DECIDED"
	CodeApprovalAlreadyPending    Code = "APPROVAL_ALREADY_PENDING"
	CodeInsufficientStock         Code = "INSUFFICIENT_STOCK"
	CodeQCSignOffRequired         Code = "QC_SIGNOFF_REQUIRED"
	CodeConcurrentModification    Code = "CONCURRENT_MODIFICATION"
	CodeUnknownAction             Code = "UNKNOWN_ACTION"
	CodeValidation                Code = "VALIDATION_ERROR"
)

// Sentinels for errors.Is matching by code.
var (
	ErrNotFound                  = &Error{Kind: KindNotFound, Code: CodeNotFound}
	ErrIllegalTransition         = &Error{Kind: KindBusinessRuleViolation, Code: CodeIllegalTransition}
	ErrUnknownDocumentType       = &Error{Kind: KindBusinessRuleViolation, Code: CodeUnknownDocumentType}
	ErrNoApprovalLevelConfigured = &Error{Kind: KindBusinessRuleViolation, Code: CodeNoApprovalLevelConfigured}
	ErrNoPendingApproval         = &Error{Kind: KindBusinessRuleViolation, Code: CodeNoPendingApproval}
	ErrApprovalAlreadyDecided    = &Error{Kind: KindBusinessRuleViolation, Code: CodeApprovalAlreadyDecided}
	ErrApprovalAlreadyPending    = &Error{Kind: KindBusinessRuleViolation, Code: CodeApprovalAlreadyPending}
	ErrInsufficientStock         = &Error{Kind: KindBusinessRuleViolation, Code: CodeInsufficientStock}
	ErrQCSignOffRequired         = &Error{Kind: KindBusinessRuleViolation, Code: CodeQCSignOffRequired}
	ErrConcurrentModification    = &Error{Kind: KindBusinessRuleViolation, Code: CodeConcurrentModification}
	ErrUnknownAction             = &Error{Kind: KindUnknownAction, Code: CodeUnknownAction}
	ErrValidation                = &Error{Kind: KindValidation, Code: CodeValidation}
)

// Error is the concrete domain error.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Code)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds an error for the given sentinel with a formatted message.
func New(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error derived from sentinel.
func Wrap(sentinel *Error, err error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFound reports an absent entity.
func NotFound(entity, id string) *Error {
	return New(ErrNotFound, "%s %q not found", entity, id)
}

// Validation reports a malformed input field.
func Validation(field, msg string) *Error {
	return New(ErrValidation, "%s: %s", field, msg)
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps an error to the status code surfaced to clients.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindBusinessRuleViolation:
		return http.StatusConflict
	case KindUnknownAction:
		return http.StatusUnprocessableEntity
	case KindValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
