package clock

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
)

var (
	// ErrSourceMismatch is the panic value for arithmetic or ordering
	// between Times read from different source types.
	ErrSourceMismatch = errors.New("clock: times have different source types")

	// ErrTimeOverflow is the panic value for arithmetic leaving int64 range.
	ErrTimeOverflow = errors.New("clock: time arithmetic overflows int64 nanoseconds")
)

// Time is a nanosecond timestamp tagged with the source it was read from.
// Time values are immutable. Sub, Compare, Before, and After require both
// operands to share a source type and panic with ErrSourceMismatch
// otherwise; mixing sources is a programming error, not a runtime
// condition.
type Time struct {
	ns  int64
	src SourceType
}

// NewTime builds a Time from nanoseconds and a source type.
func NewTime(ns int64, src SourceType) Time {
	return Time{ns: ns, src: src}
}

// Nanoseconds returns the raw nanosecond count.
func (t Time) Nanoseconds() int64 { return t.ns }

// SourceType returns the source the time was read from.
func (t Time) SourceType() SourceType { return t.src }

// Seconds returns the time as floating-point seconds.
func (t Time) Seconds() float64 { return float64(t.ns) / 1e9 }

// IsZero reports whether the nanosecond count is zero.
func (t Time) IsZero() bool { return t.ns == 0 }

// Add returns t shifted by d, keeping the source type.
func (t Time) Add(d time.Duration) Time {
	sum := t.ns + int64(d)
	if (d > 0 && sum < t.ns) || (d < 0 && sum > t.ns) {
		panic(ErrTimeOverflow)
	}
	return Time{ns: sum, src: t.src}
}

// Sub returns t-u.
func (t Time) Sub(u Time) time.Duration {
	t.mustMatch(u)
	diff := t.ns - u.ns
	if (u.ns > 0 && diff > t.ns) || (u.ns < 0 && diff < t.ns) {
		panic(ErrTimeOverflow)
	}
	return time.Duration(diff)
}

// Compare returns -1, 0, or +1 as t is before, equal to, or after u.
func (t Time) Compare(u Time) int {
	t.mustMatch(u)
	switch {
	case t.ns < u.ns:
		return -1
	case t.ns > u.ns:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is earlier than u.
func (t Time) Before(u Time) bool { return t.Compare(u) < 0 }

// After reports whether t is later than u.
func (t Time) After(u Time) bool { return t.Compare(u) > 0 }

// Equal reports whether t and u carry the same instant and source type.
// Unlike the ordering methods it does not panic on mismatched sources.
func (t Time) Equal(u Time) bool { return t == u }

func (t Time) mustMatch(u Time) {
	if t.src != u.src {
		panic(fmt.Errorf("%w: %s vs %s", ErrSourceMismatch, t.src, u.src))
	}
}

// String renders the time as seconds with its source, e.g. "1.500000000s(steady)".
func (t Time) String() string {
	sign := ""
	abs := uint64(t.ns)
	if t.ns < 0 {
		sign = "-"
		abs = uint64(-(t.ns + 1)) + 1
	}
	return fmt.Sprintf("%s%d.%09ds(%s)", sign, abs/1e9, abs%1e9, t.src)
}

type timeJSON struct {
	Nanoseconds int64      `json:"nanoseconds"`
	Source      SourceType `json:"source"`
}

// MarshalJSON encodes the time as {"nanoseconds":N,"source":"steady"}.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeJSON{Nanoseconds: t.ns, Source: t.src})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (t *Time) UnmarshalJSON(data []byte) error {
	var v timeJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = Time{ns: v.Nanoseconds, src: v.Source}
	return nil
}
