package timesource

import (
	"errors"
	"fmt"
)

// Status is the result code a backend reports for an operation.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusBadAlloc
	StatusInvalidArgument
	StatusNotInitialized
	StatusAlreadyRegistered
	StatusNotFound
	StatusWrongType
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusBadAlloc:
		return "BAD_ALLOC"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusNotInitialized:
		return "NOT_INITIALIZED"
	case StatusAlreadyRegistered:
		return "ALREADY_REGISTERED"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusWrongType:
		return "WRONG_TYPE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Error is a backend failure carrying its status code.
type Error struct {
	Status  Status
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("timesource: %s: %s", e.Status, e.Message)
}

// Is matches any *Error with the same status, so callers can compare
// against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Status == e.Status
}

func newError(status Status, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotInitialized    = &Error{Status: StatusNotInitialized, Message: "source not initialized"}
	ErrInvalidArgument   = &Error{Status: StatusInvalidArgument, Message: "invalid argument"}
	ErrAlreadyRegistered = &Error{Status: StatusAlreadyRegistered, Message: "jump callback already registered"}
	ErrNotFound          = &Error{Status: StatusNotFound, Message: "jump callback not found"}
	ErrWrongType         = &Error{Status: StatusWrongType, Message: "operation not supported by source type"}
)

// StatusOf extracts the status from err. Nil maps to StatusOK and errors
// that did not come from a backend map to StatusError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusError
}
