package clock

import (
	"errors"
	"fmt"

	"github.com/BYTE-6D65/jumpclock/pkg/timesource"
)

// ErrClosed is wrapped by errors returned from a Clock handle after Close.
var ErrClosed = errors.New("clock: handle is closed")

// InitializationError means the backend could not start. No Clock exists.
type InitializationError struct {
	Status  Status
	Message string
	Err     error
}

func (e *InitializationError) Error() string {
	return formatError("initialization", e.Status, e.Message, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// TimeQueryError means one read failed. The Clock remains usable.
type TimeQueryError struct {
	Status  Status
	Message string
	Err     error
}

func (e *TimeQueryError) Error() string {
	return formatError("time query", e.Status, e.Message, e.Err)
}

func (e *TimeQueryError) Unwrap() error { return e.Err }

// RegistrationError means a jump handler could not be armed. The handler
// was discarded and the Clock remains usable.
type RegistrationError struct {
	Status  Status
	Message string
	Err     error
}

func (e *RegistrationError) Error() string {
	return formatError("registration", e.Status, e.Message, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

func formatError(kind string, status Status, message string, err error) string {
	if err == nil {
		return fmt.Sprintf("clock: %s failed (%s): %s", kind, status, message)
	}
	return fmt.Sprintf("clock: %s failed (%s): %s: %v", kind, status, message, err)
}

func newInitializationError(message string, err error) *InitializationError {
	return &InitializationError{Status: timesource.StatusOf(err), Message: message, Err: err}
}

func newTimeQueryError(message string, err error) *TimeQueryError {
	return &TimeQueryError{Status: timesource.StatusOf(err), Message: message, Err: err}
}

func newRegistrationError(message string, err error) *RegistrationError {
	return &RegistrationError{Status: timesource.StatusOf(err), Message: message, Err: err}
}

// StatusOf returns the backend status carried by err.
func StatusOf(err error) Status {
	var ie *InitializationError
	if errors.As(err, &ie) {
		return ie.Status
	}
	var qe *TimeQueryError
	if errors.As(err, &qe) {
		return qe.Status
	}
	var re *RegistrationError
	if errors.As(err, &re) {
		return re.Status
	}
	return timesource.StatusOf(err)
}
