package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one variant of the closed error set. Every error the
// services return to the HTTP layer carries exactly one Kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindInsufficientStock
	KindStockConflict
	KindRateExceeded
	KindSignature
	KindConflict
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindDatabase
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindStockConflict:
		return "stock_conflict"
	case KindRateExceeded:
		return "rate_exceeded"
	case KindSignature:
		return "signature"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindDatabase:
		return "database"
	default:
		return "unknown"
	}
}

// Error tagged application error
type Error struct {
	Kind    Kind                   `json:"kind"`
	Message string                 `json:"message"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
	Err     error                  `json:"-"`
}

// Error implement error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implement errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a detail entry and returns the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Detail == nil {
		e.Detail = map[string]interface{}{}
	}
	e.Detail[key] = value
	return e
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an underlying error with a kind and message
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation malformed or missing input
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Validationf formatted validation error
func Validationf(format string, args ...interface{}) *Error {
	return Newf(KindValidation, format, args...)
}

// InsufficientStock a reservation could not be satisfied
func InsufficientStock(productID uint64, requested, available int) *Error {
	return Newf(KindInsufficientStock, "insufficient stock for product %d", productID).
		WithDetail("product_id", productID).
		WithDetail("requested", requested).
		WithDetail("available", available)
}

// StockConflict a multi-line reservation failed partway and was rolled back
func StockConflict(message string) *Error {
	return New(KindStockConflict, message)
}

// RateExceeded the velocity gate rejected the request
func RateExceeded(message string) *Error {
	return New(KindRateExceeded, message)
}

// Signature a webhook signature did not verify
func Signature(message string) *Error {
	return New(KindSignature, message)
}

// Conflict an invalid state transition was attempted
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// NotFound the referenced entity does not exist
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Unauthorized missing or invalid credentials
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// Forbidden the caller may not act on this entity
func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

// Database wraps an underlying store failure
func Database(err error) *Error {
	return Wrap(err, KindDatabase, "database operation failed")
}

// KindOf extracts the kind from an error chain, KindUnknown if none
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Detail returns the detail payload of an error, nil if none
func Detail(err error) map[string]interface{} {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Detail
	}
	return nil
}

// HTTPStatus maps a kind to its HTTP status code
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindInsufficientStock:
		return http.StatusBadRequest
	case KindStockConflict, KindConflict:
		return http.StatusConflict
	case KindRateExceeded:
		return http.StatusTooManyRequests
	case KindSignature:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
