package clock

import "github.com/BYTE-6D65/jumpclock/pkg/timesource"

// Re-exported backend vocabulary, so callers of this package rarely need
// to import timesource directly.
type (
	SourceType    = timesource.SourceType
	TimeJump      = timesource.TimeJump
	ClockChange   = timesource.ClockChange
	JumpThreshold = timesource.JumpThreshold
	Status        = timesource.Status
)

const (
	Steady      = timesource.Steady
	System      = timesource.System
	Overridable = timesource.Overridable
)

// PreJumpCallback runs immediately before a jump is applied.
type PreJumpCallback func()

// PostJumpCallback runs after a jump that crossed the handler's threshold.
type PostJumpCallback func(jump TimeJump)
