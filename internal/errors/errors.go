// Package errors provides the coded domain errors surfaced by the catalog and lending engine.
//
// Every failure a service returns is an *Error carrying a Code. A Code names the
// broad kind (NOT_FOUND, CONFLICT, ...) and maps to an HTTP status; an optional
// Reason narrows it down so callers can tell, say, a double checkout apart from
// a duplicate genre while both still match ErrConflict.
//
// Usage:
//
//	// In services
//	if open {
//	    return errors.ErrAlreadyCheckedOut.WithDetails(map[string]string{"book_id": bookID})
//	}
//
//	// In callers
//	if errors.Is(err, errors.ErrConflict) { ... }          // any conflict
//	if errors.Is(err, errors.ErrAlreadyCheckedOut) { ... } // only this one
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeQuotaExceeded       Code = "QUOTA_EXCEEDED"
	CodeNoCopiesAvailable   Code = "NO_COPIES_AVAILABLE"
	CodeUnresolvedReference Code = "UNRESOLVED_REFERENCE"
	CodeForbidden           Code = "FORBIDDEN"
	CodeUnauthenticated     Code = "UNAUTHENTICATED"
	CodeStoreUnavailable    Code = "STORE_UNAVAILABLE"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeInvalidCredentials  Code = "INVALID_CREDENTIALS"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeNoCopiesAvailable:
		return http.StatusConflict
	case CodeQuotaExceeded, CodeUnresolvedReference:
		return http.StatusUnprocessableEntity
	case CodeUnauthenticated, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, an optional reason, a message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// The codes must be equal; if target carries a Reason, the reasons must be equal too.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error carrying details.
func (e *Error) WithDetails(details any) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy of the error wrapping err.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.cause = err
	return &c
}

// WithMessage returns a copy of the error with a different message.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

// Reasons attached to narrower errors.
const (
	ReasonAlreadyCheckedOut = "already_checked_out"
	ReasonDuplicateGenre    = "duplicate_genre"
	ReasonBookHasOpenLoans  = "book_has_open_loans"
	ReasonBookHasLoans      = "book_has_loans"
	ReasonNoOpenLoan        = "no_open_loan"
	ReasonAlreadyExists     = "already_exists"
	ReasonAlreadyConfigured = "already_configured"
)

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict            = &Error{Code: CodeConflict, Message: "conflict"}
	ErrQuotaExceeded       = &Error{Code: CodeQuotaExceeded, Message: "reader has reached their loan quota"}
	ErrNoCopiesAvailable   = &Error{Code: CodeNoCopiesAvailable, Message: "no copies available"}
	ErrUnresolvedReference = &Error{Code: CodeUnresolvedReference, Message: "unresolved reference"}
	ErrForbidden           = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrUnauthenticated     = &Error{Code: CodeUnauthenticated, Message: "authentication required"}
	ErrStoreUnavailable    = &Error{Code: CodeStoreUnavailable, Message: "store unavailable"}
	ErrValidation          = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInvalidCredentials  = &Error{Code: CodeInvalidCredentials, Message: "invalid credentials"}
	ErrInternal            = &Error{Code: CodeInternal, Message: "internal error"}

	ErrAlreadyCheckedOut = &Error{Code: CodeConflict, Reason: ReasonAlreadyCheckedOut, Message: "book is already checked out by this reader"}
	ErrDuplicateGenre    = &Error{Code: CodeConflict, Reason: ReasonDuplicateGenre, Message: "genre already exists"}
	ErrBookHasOpenLoans  = &Error{Code: CodeConflict, Reason: ReasonBookHasOpenLoans, Message: "book has copies on loan"}
	ErrBookHasLoans      = &Error{Code: CodeConflict, Reason: ReasonBookHasLoans, Message: "book has loan history"}
	ErrAlreadyExists     = &Error{Code: CodeConflict, Reason: ReasonAlreadyExists, Message: "already exists"}
	ErrAlreadyConfigured = &Error{Code: CodeConflict, Reason: ReasonAlreadyConfigured, Message: "server is already configured"}
	ErrNoOpenLoan        = &Error{Code: CodeNotFound, Reason: ReasonNoOpenLoan, Message: "no open loan for this reader and book"}
)

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf creates a conflict error with formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExistsf creates a conflict error for a duplicate entity.
func AlreadyExistsf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Reason: ReasonAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// UnresolvedReferencef creates an unresolved reference error.
func UnresolvedReferencef(format string, args ...any) *Error {
	return &Error{Code: CodeUnresolvedReference, Message: fmt.Sprintf(format, args...)}
}

// Forbidden creates a forbidden error.
func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

// Unauthenticated creates an unauthenticated error.
func Unauthenticated(msg string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// StoreUnavailable wraps a failure of the durable store.
func StoreUnavailable(err error) *Error {
	return &Error{Code: CodeStoreUnavailable, Message: "store unavailable", cause: err}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
