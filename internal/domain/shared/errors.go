package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a DomainError so callers can react to the class of
// failure without matching individual codes.
type ErrorKind string

const (
	// KindValidation covers malformed or missing client input.
	KindValidation ErrorKind = "VALIDATION"
	// KindConflict is an idempotency key reused with a different payload.
	// It is a specialization of a validation error.
	KindConflict ErrorKind = "CONFLICT"
	// KindInvariant signals a programming defect or storage corruption.
	KindInvariant ErrorKind = "INVARIANT"
	// KindNotFound is returned when a referenced id is absent for the tenant.
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindAudit is returned when a mandatory audit record could not be written.
	KindAudit ErrorKind = "AUDIT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches another DomainError by code, so sentinel values work with errors.Is
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// WithCause returns a copy of the error wrapping cause
func (e *DomainError) WithCause(cause error) *DomainError {
	cp := *e
	cp.cause = cause
	return &cp
}

// NewDomainError creates a new validation-class domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Kind:    KindValidation,
	}
}

// NewValidationError creates a validation error with a formatted message
func NewValidationError(code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...), Kind: KindValidation}
}

// NewConflictError creates an idempotency conflict error
func NewConflictError(code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...), Kind: KindConflict}
}

// NewInvariantViolation creates an invariant violation error
func NewInvariantViolation(code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...), Kind: KindInvariant}
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...), Kind: KindNotFound}
}

// NewAuditError creates an audit write failure error
func NewAuditError(code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...), Kind: KindAudit}
}

// Common domain errors
var (
	ErrNotFound               = NewNotFoundError("not_found", "resource not found")
	ErrIdempotencyKeyRequired = NewDomainError("idempotency_key_required", "idempotency key is required")
	ErrTenantRequired         = NewDomainError("tenant_required", "tenant id is required")
	ErrIdempotencyConflict    = NewConflictError("idempotency_conflict", "idempotency key was already used with a different payload")
	ErrAuditLogWriteFailed    = NewAuditError("audit_log_write_failed", "audit log write failed")
)

// KindOf returns the kind of a DomainError in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// ErrorCode returns the code of a DomainError in err's chain, or "" if none
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsIdempotencyConflict reports whether err is an idempotency conflict
func IsIdempotencyConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsInvariantViolation reports whether err is an invariant violation
func IsInvariantViolation(err error) bool {
	return KindOf(err) == KindInvariant
}

// IsValidation reports whether err is a validation error. Conflicts count as
// validation errors.
func IsValidation(err error) bool {
	k := KindOf(err)
	return k == KindValidation || k == KindConflict
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
