package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error is an API failure: a stable code, the HTTP status it maps to and a
// message safe to show clients. Details carries structured payloads such as
// the offending student ids.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on code, so copies made by Clone or WrapAs still satisfy
// errors.Is against the registered template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

var registry = map[string]*Error{}

// define registers a template so Lookup can resolve its code.
func define(code string, status int, message string) *Error {
	e := New(code, status, message)
	registry[code] = e
	return e
}

var (
	ErrInvalidCredentials = define("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = define("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrUnauthorized       = define("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden          = define("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound           = define("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrCacheMiss          = define("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrValidation         = define("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrConflict           = define("CONFLICT", http.StatusConflict, "conflict")
	ErrFeesAlreadyExist   = define("FEES_ALREADY_EXIST", http.StatusConflict, "fee records already exist")
	ErrPreconditionFailed = define("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrTimeout            = define("TIMEOUT", http.StatusGatewayTimeout, "request timed out")
	ErrInternal           = define("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// New builds an unregistered error.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap builds an error with an explicit code and status around err.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// WrapAs wraps err under the code and status of template.
func WrapAs(template *Error, err error, message string) *Error {
	if message == "" {
		message = template.Message
	}
	return Wrap(err, template.Code, template.Status, message)
}

// Internal wraps an unexpected failure. Expired deadlines surface as TIMEOUT
// rather than INTERNAL_ERROR.
func Internal(err error, message string) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapAs(ErrTimeout, err, "")
	}
	return WrapAs(ErrInternal, err, message)
}

// Lookup returns a copy of the registered template for code.
func Lookup(code string) (*Error, bool) {
	e, ok := registry[code]
	if !ok {
		return nil, false
	}
	return Clone(e, ""), true
}

// FromError returns the first *Error in err's chain, or wraps err via Internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err, ErrInternal.Message)
}

// Clone copies err, optionally replacing its message.
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

// WithDetails is Clone plus a details payload.
func WithDetails(err *Error, message string, details any) *Error {
	clone := Clone(err, message)
	if clone != nil {
		clone.Details = details
	}
	return clone
}
