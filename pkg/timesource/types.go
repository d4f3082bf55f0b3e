package timesource

import (
	"fmt"
	"strings"
	"time"
)

// SourceType identifies where a clock reads its time from.
type SourceType int

const (
	Uninitialized SourceType = iota // Zero value, never valid for Init
	Steady                          // Monotonic counter, never jumps
	System                          // Wall clock, may be stepped by the OS
	Overridable                     // System time unless an override drives it
)

func (s SourceType) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Steady:
		return "steady"
	case System:
		return "system"
	case Overridable:
		return "overridable"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Valid reports whether s names a usable source.
func (s SourceType) Valid() bool {
	return s == Steady || s == System || s == Overridable
}

// MarshalText implements encoding.TextMarshaler.
func (s SourceType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SourceType) UnmarshalText(text []byte) error {
	parsed, err := ParseSourceType(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSourceType parses a source name. "ros" is accepted as an alias for
// overridable.
func ParseSourceType(name string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "steady":
		return Steady, nil
	case "system":
		return System, nil
	case "overridable", "ros":
		return Overridable, nil
	default:
		return Uninitialized, fmt.Errorf("timesource: unknown source type %q", name)
	}
}

// ClockChange describes whether a jump changed the active source.
type ClockChange int

const (
	NoChange            ClockChange = iota // Override time stepped, source unchanged
	OverrideActivated                      // Override took over from system time
	OverrideDeactivated                    // Override released back to system time
	SystemNoChange                         // Wall clock stepped underneath a system source
)

func (c ClockChange) String() string {
	switch c {
	case NoChange:
		return "no_change"
	case OverrideActivated:
		return "override_activated"
	case OverrideDeactivated:
		return "override_deactivated"
	case SystemNoChange:
		return "system_no_change"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// TimeJump describes one discontinuity.
type TimeJump struct {
	Delta  time.Duration
	Change ClockChange
}

// SourceChanged reports whether the active source itself changed.
func (j TimeJump) SourceChanged() bool {
	return j.Change == OverrideActivated || j.Change == OverrideDeactivated
}

// Forward reports whether time moved forward.
func (j TimeJump) Forward() bool { return j.Delta > 0 }

// Backward reports whether time moved backward.
func (j TimeJump) Backward() bool { return j.Delta < 0 }

func (j TimeJump) String() string {
	return fmt.Sprintf("jump(delta=%s, change=%s)", j.Delta, j.Change)
}

// JumpThreshold decides which jumps reach a post-jump callback.
// Both minimums are magnitudes; zero means any jump in that direction.
type JumpThreshold struct {
	MinForward     time.Duration `yaml:"min_forward" json:"min_forward,format:nano"`
	MinBackward    time.Duration `yaml:"min_backward" json:"min_backward,format:nano"`
	OnSourceChange bool          `yaml:"on_source_change" json:"on_source_change"`
}

// Validate rejects negative magnitudes.
func (t JumpThreshold) Validate() error {
	if t.MinForward < 0 {
		return newError(StatusInvalidArgument, "min forward threshold must be non-negative, got %s", t.MinForward)
	}
	if t.MinBackward < 0 {
		return newError(StatusInvalidArgument, "min backward threshold must be non-negative, got %s", t.MinBackward)
	}
	return nil
}

// Qualifies reports whether jump crosses this threshold.
func (t JumpThreshold) Qualifies(jump TimeJump) bool {
	if jump.SourceChanged() && t.OnSourceChange {
		return true
	}
	switch {
	case jump.Delta > 0:
		return jump.Delta >= t.MinForward
	case jump.Delta < 0:
		return -jump.Delta >= t.MinBackward
	default:
		return false
	}
}
