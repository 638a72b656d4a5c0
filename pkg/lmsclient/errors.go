package lmsclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

// Kind classifies API failures so callers can branch without inspecting messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindConflict
	KindValidation
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindPrecondition:
		return "precondition"
	default:
		return "unknown"
	}
}

var (
	// ErrSameSession is returned before any request when source and target sessions match.
	ErrSameSession = errors.New("lmsclient: source and target session must differ")
	// ErrMissingSession is returned when a session id is empty.
	ErrMissingSession = errors.New("lmsclient: session id required")
)

// Error is a decoded API error envelope.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("lmsclient: %s (%s, status %d)", e.Message, e.Code, e.Status)
}

// MarksRangeError lists entries whose marks fall outside [0, max].
type MarksRangeError struct {
	MaxMarks float64
	Invalid  []dto.InvalidMark
}

func (e *MarksRangeError) Error() string {
	ids := make([]string, len(e.Invalid))
	for i, m := range e.Invalid {
		ids[i] = m.StudentID
	}
	return fmt.Sprintf("lmsclient: marks must be between 0 and %g for students %s", e.MaxMarks, strings.Join(ids, ", "))
}

// KindOf extracts the Kind of err. Local validation failures report KindValidation.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	var marksErr *MarksRangeError
	if errors.As(err, &marksErr) {
		return KindValidation
	}
	if errors.Is(err, ErrSameSession) || errors.Is(err, ErrMissingSession) {
		return KindValidation
	}
	return KindUnknown
}

// IsConflict reports whether err is a conflict response.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsNotFound reports whether err is a not-found response.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// kindFor trusts the status registered for a known code over the transport
// status, which proxies may rewrite.
func kindFor(code string, status int) Kind {
	if known, ok := appErrors.Lookup(code); ok {
		status = known.Status
	}
	switch status {
	case http.StatusConflict:
		return KindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusPreconditionFailed:
		return KindPrecondition
	}
	return KindUnknown
}
