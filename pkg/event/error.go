package event

import (
	"fmt"
	"log/slog"
	"time"
)

// ErrorEvent is a clock diagnostic. Diagnostics travel on the ErrorBus,
// apart from jump events, so a flood of them never delays jump delivery.
type ErrorEvent struct {
	// Severity indicates log level and urgency
	Severity ErrorSeverity

	// Code is a terse, stable identifier (e.g., "DEREGISTER_FAIL")
	Code string

	// Message is human-readable description
	Message string

	// Component identifies the source (e.g., "clock:overridable")
	Component string

	// Timestamp when the diagnostic was raised
	Timestamp time.Time

	// Context provides additional structured data
	Context map[string]any
}

// ErrorSeverity represents the severity level of a diagnostic.
type ErrorSeverity int

const (
	DebugSeverity    ErrorSeverity = iota // Verbose debugging info
	InfoSeverity                          // Informational
	WarningSeverity                       // Degraded but continuing
	FailureSeverity                       // Operation failed, caller unaffected
	CriticalSeverity                      // Clock unusable
)

func (s ErrorSeverity) String() string {
	switch s {
	case DebugSeverity:
		return "DEBUG"
	case InfoSeverity:
		return "INFO"
	case WarningSeverity:
		return "WARNING"
	case FailureSeverity:
		return "ERROR"
	case CriticalSeverity:
		return "CRITICAL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Level maps the severity onto slog levels.
func (s ErrorSeverity) Level() slog.Level {
	switch s {
	case DebugSeverity:
		return slog.LevelDebug
	case InfoSeverity:
		return slog.LevelInfo
	case WarningSeverity:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Diagnostic codes raised by clocks.
const (
	CodeClockInvalid    = "CLOCK_INVALID"     // Backend reported invalid state
	CodeDeregisterFail  = "DEREGISTER_FAIL"   // Disarming a jump handler failed during teardown
	CodeFinalizeFail    = "FINALIZE_FAIL"     // Backend finalize failed
	CodeHandlerLeaked   = "HANDLER_LEAKED"    // Jump handler collected without Release
	CodeClockLeaked     = "CLOCK_LEAKED"      // Clock handle collected without Close
	CodeFeedPublishFail = "FEED_PUBLISH_FAIL" // Jump feed could not publish
)

// NewErrorEvent creates a diagnostic with its timestamp set to now.
func NewErrorEvent(severity ErrorSeverity, code, component, message string) ErrorEvent {
	return ErrorEvent{
		Severity:  severity,
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]any),
	}
}

// WithContext adds a context key-value pair.
func (e ErrorEvent) WithContext(key string, value any) ErrorEvent {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// String returns a formatted string representation of the diagnostic.
func (e ErrorEvent) String() string {
	return fmt.Sprintf("[%s] %s: %s (component=%s)", e.Severity, e.Code, e.Message, e.Component)
}
