package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrPledgeRequired = errors.New("pledge required")
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
)

type Error struct {
	Err     error
	Message string
	Field   string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PledgeRequired is a flow-control signal: the caller should collect a pledge
// for the week and retry the original request.
func PledgeRequired(weekID string) *Error {
	return &Error{Err: ErrPledgeRequired, Message: "a pledge is required before logging sleep for this week", Field: weekID}
}

func Validation(field, message string) *Error {
	return &Error{Err: ErrValidation, Message: message, Field: field}
}

func NotFound(message string) *Error {
	return &Error{Err: ErrNotFound, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Err: ErrUnauthorized, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Err: ErrConflict, Message: message}
}

// Code returns the wire code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrPledgeRequired):
		return "PLEDGE_REQUIRED"
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrPledgeRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-facing text for err. Errors outside the taxonomy
// never leak their details.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	for _, kind := range []error{ErrPledgeRequired, ErrValidation, ErrNotFound, ErrUnauthorized, ErrConflict} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal server error"
}
