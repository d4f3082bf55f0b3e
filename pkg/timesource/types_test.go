package timesource

import (
	"testing"
	"time"
)

func TestJumpThreshold_Qualifies(t *testing.T) {
	tests := []struct {
		name      string
		threshold JumpThreshold
		jump      TimeJump
		want      bool
	}{
		{"zero forward threshold takes any forward jump", JumpThreshold{}, TimeJump{Delta: 1}, true},
		{"zero backward threshold takes any backward jump", JumpThreshold{}, TimeJump{Delta: -1}, true},
		{"zero delta never qualifies by magnitude", JumpThreshold{}, TimeJump{}, false},
		{"forward below minimum", JumpThreshold{MinForward: time.Second}, TimeJump{Delta: time.Second - 1}, false},
		{"forward at minimum", JumpThreshold{MinForward: time.Second}, TimeJump{Delta: time.Second}, true},
		{"backward below minimum", JumpThreshold{MinBackward: time.Second}, TimeJump{Delta: -time.Millisecond}, false},
		{"backward at minimum", JumpThreshold{MinBackward: time.Second}, TimeJump{Delta: -time.Second}, true},
		{"source change with flag", JumpThreshold{OnSourceChange: true, MinForward: time.Hour}, TimeJump{Change: OverrideActivated}, true},
		{"source change without flag", JumpThreshold{MinForward: time.Hour}, TimeJump{Change: OverrideDeactivated}, false},
		{"system step is not a source change", JumpThreshold{OnSourceChange: true, MinForward: time.Hour}, TimeJump{Delta: time.Second, Change: SystemNoChange}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.threshold.Qualifies(tt.jump); got != tt.want {
				t.Errorf("Qualifies(%v) = %v, want %v", tt.jump, got, tt.want)
			}
		})
	}
}

func TestParseSourceType(t *testing.T) {
	for name, want := range map[string]SourceType{
		"steady":        Steady,
		"SYSTEM":        System,
		" overridable ": Overridable,
		"ros":           Overridable,
	} {
		got, err := ParseSourceType(name)
		if err != nil || got != want {
			t.Errorf("ParseSourceType(%q) = %v, %v; want %v", name, got, err, want)
		}
	}

	if _, err := ParseSourceType("sundial"); err == nil {
		t.Error("Expected error for unknown source type")
	}
}

func TestStatusOf(t *testing.T) {
	if StatusOf(nil) != StatusOK {
		t.Error("nil should map to OK")
	}
	if StatusOf(ErrNotFound) != StatusNotFound {
		t.Error("ErrNotFound should map to NOT_FOUND")
	}
	wrapped := newError(StatusWrongType, "source %s cannot be overridden", Steady)
	if StatusOf(wrapped) != StatusWrongType {
		t.Error("Expected WRONG_TYPE")
	}
}
