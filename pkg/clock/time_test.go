package clock

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
)

func expectPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected panic")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, target) {
			t.Fatalf("Panic value %v, want %v", r, target)
		}
	}()
	fn()
}

func TestTime_Arithmetic(t *testing.T) {
	a := NewTime(int64(2*time.Second), Steady)
	b := a.Add(500 * time.Millisecond)

	if b.SourceType() != Steady {
		t.Errorf("Add changed source type to %s", b.SourceType())
	}
	if d := b.Sub(a); d != 500*time.Millisecond {
		t.Errorf("Sub = %v, want 500ms", d)
	}
	if d := a.Sub(b); d != -500*time.Millisecond {
		t.Errorf("Sub = %v, want -500ms", d)
	}
	if !a.Before(b) || !b.After(a) {
		t.Error("Ordering is wrong")
	}
	if a.Compare(a) != 0 {
		t.Error("Compare with self should be 0")
	}
	if b.Seconds() != 2.5 {
		t.Errorf("Seconds = %v, want 2.5", b.Seconds())
	}
}

func TestTime_SourceMismatch(t *testing.T) {
	steady := NewTime(1, Steady)
	system := NewTime(1, System)

	expectPanic(t, ErrSourceMismatch, func() { steady.Sub(system) })
	expectPanic(t, ErrSourceMismatch, func() { steady.Before(system) })
	expectPanic(t, ErrSourceMismatch, func() { steady.Compare(system) })

	if steady.Equal(system) {
		t.Error("Times with different sources should not be Equal")
	}
}

func TestTime_Overflow(t *testing.T) {
	maxT := NewTime(math.MaxInt64, System)
	expectPanic(t, ErrTimeOverflow, func() { maxT.Add(1) })

	minT := NewTime(math.MinInt64, System)
	expectPanic(t, ErrTimeOverflow, func() { minT.Add(-1) })
	expectPanic(t, ErrTimeOverflow, func() { maxT.Sub(NewTime(-1, System)) })
}

func TestTime_String(t *testing.T) {
	tests := []struct {
		t    Time
		want string
	}{
		{NewTime(1500*int64(time.Millisecond), Steady), "1.500000000s(steady)"},
		{NewTime(0, System), "0.000000000s(system)"},
		{NewTime(-1, Overridable), "-0.000000001s(overridable)"},
	}

	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTime_JSON(t *testing.T) {
	orig := NewTime(123456789, Overridable)

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"nanoseconds":123456789,"source":"overridable"}` {
		t.Errorf("Marshal = %s", data)
	}

	var back Time
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(orig) {
		t.Errorf("Decoded %s, want %s", back, orig)
	}
}
