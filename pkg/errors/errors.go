package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so clones compare equal to their template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Retryable reports whether the caller may safely retry the operation.
func (e *Error) Retryable() bool {
	return e != nil && e.Code == ErrTransactionConflict.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	ErrUnknownReason = New("UNKNOWN_REASON", http.StatusBadRequest, "unknown reason id")

	ErrAlreadyAcknowledged = New("ALREADY_ACKNOWLEDGED", http.StatusConflict, "request already acknowledged")
	ErrAlreadyClosed       = New("ALREADY_CLOSED", http.StatusConflict, "request already closed")
	ErrNotClosed           = New("NOT_CLOSED", http.StatusConflict, "request is not closed")
	ErrDueDateNotLater     = New("DUE_DATE_NOT_LATER", http.StatusConflict, "new due date must be later than the current due date")
	ErrInvalidTransition   = New("INVALID_TRANSITION", http.StatusConflict, "invalid status transition")
	ErrAlreadyInState      = New("ALREADY_IN_STATE", http.StatusConflict, "request already in target state")

	ErrTransactionConflict = New("TRANSACTION_CONFLICT", http.StatusServiceUnavailable, "concurrent update, retry the operation")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// IsStateConflict reports whether err is an invariant violation rather than a failure.
func IsStateConflict(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case ErrAlreadyAcknowledged.Code, ErrAlreadyClosed.Code, ErrNotClosed.Code,
		ErrDueDateNotLater.Code, ErrInvalidTransition.Code, ErrAlreadyInState.Code:
		return true
	}
	return false
}
