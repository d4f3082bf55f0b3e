package timesource

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// recorder is a comparable JumpDispatcher that records every call.
type recorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

type recordedCall struct {
	jump   TimeJump
	before bool
}

func (r *recorder) DispatchJump(jump TimeJump, beforeJump bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{jump: jump, before: beforeJump})
}

func (r *recorder) counts() (pre, post int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.before {
			pre++
		} else {
			post++
		}
	}
	return pre, post
}

func (r *recorder) lastPost() (TimeJump, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if !r.calls[i].before {
			return r.calls[i].jump, true
		}
	}
	return TimeJump{}, false
}

func newOverridable(t *testing.T) *Source {
	t.Helper()
	src := New()
	if err := src.Init(Overridable); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return src
}

func TestSource_InitRejectsInvalidType(t *testing.T) {
	src := New()
	err := src.Init(Uninitialized)
	if StatusOf(err) != StatusInvalidArgument {
		t.Fatalf("Expected INVALID_ARGUMENT, got %v", err)
	}
	if src.Valid() {
		t.Error("Source should not be valid after failed Init")
	}
}

func TestSource_InitTwice(t *testing.T) {
	src := New()
	if err := src.Init(Steady); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := src.Init(System); err == nil {
		t.Error("Second Init should fail")
	}
	if src.Type() != Steady {
		t.Errorf("Expected type to stay steady, got %s", src.Type())
	}
}

func TestSource_SteadyIsMonotonic(t *testing.T) {
	src := New()
	if err := src.Init(Steady); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	prev, err := src.ReadNow()
	if err != nil {
		t.Fatalf("ReadNow failed: %v", err)
	}
	for i := 0; i < 1000; i++ {
		now, err := src.ReadNow()
		if err != nil {
			t.Fatalf("ReadNow failed: %v", err)
		}
		if now < prev {
			t.Fatalf("Non-monotonic at iteration %d: %d -> %d", i, prev, now)
		}
		prev = now
	}
}

func TestSource_OverridableReadsOverrideWhenActive(t *testing.T) {
	wall := int64(1_000_000_000)
	src := New(WithWallClock(func() int64 { return wall }))
	if err := src.Init(Overridable); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if err := src.SetOverrideTime(42); err != nil {
		t.Fatalf("SetOverrideTime failed: %v", err)
	}
	now, _ := src.ReadNow()
	if now != wall {
		t.Errorf("Inactive override should read wall time %d, got %d", wall, now)
	}

	if err := src.EnableOverride(); err != nil {
		t.Fatalf("EnableOverride failed: %v", err)
	}
	now, _ = src.ReadNow()
	if now != 42 {
		t.Errorf("Active override should read 42, got %d", now)
	}

	enabled, err := src.OverrideEnabled()
	if err != nil || !enabled {
		t.Errorf("Expected override enabled, got %v (err=%v)", enabled, err)
	}
}

func TestSource_OverrideOnWrongType(t *testing.T) {
	src := New()
	if err := src.Init(System); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if err := src.EnableOverride(); !errors.Is(err, ErrWrongType) {
		t.Errorf("Expected ErrWrongType, got %v", err)
	}

	enabled, err := src.OverrideEnabled()
	if err != nil || enabled {
		t.Errorf("System source should report no override, got %v (err=%v)", enabled, err)
	}
}

func TestSource_ArmValidation(t *testing.T) {
	src := newOverridable(t)
	rec := &recorder{}

	if err := src.ArmJumpDispatch(JumpThreshold{}, nil); StatusOf(err) != StatusInvalidArgument {
		t.Errorf("Nil dispatcher: expected INVALID_ARGUMENT, got %v", err)
	}
	if err := src.ArmJumpDispatch(JumpThreshold{MinForward: -1}, rec); StatusOf(err) != StatusInvalidArgument {
		t.Errorf("Negative threshold: expected INVALID_ARGUMENT, got %v", err)
	}
	if err := src.ArmJumpDispatch(JumpThreshold{}, rec); err != nil {
		t.Fatalf("Arm failed: %v", err)
	}
	if err := src.ArmJumpDispatch(JumpThreshold{}, rec); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("Duplicate arm: expected ErrAlreadyRegistered, got %v", err)
	}
	if src.ArmedCount() != 1 {
		t.Errorf("Expected 1 armed dispatcher, got %d", src.ArmedCount())
	}
}

func TestSource_DisarmUnknown(t *testing.T) {
	src := newOverridable(t)
	if err := src.DisarmJumpDispatch(&recorder{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSource_ForwardThreshold(t *testing.T) {
	src := newOverridable(t)
	rec := &recorder{}

	if err := src.ArmJumpDispatch(JumpThreshold{MinForward: time.Second}, rec); err != nil {
		t.Fatalf("Arm failed: %v", err)
	}
	if err := src.EnableOverride(); err != nil {
		t.Fatalf("EnableOverride failed: %v", err)
	}

	// Below threshold: pre only
	if err := src.StepOverride(500 * time.Millisecond); err != nil {
		t.Fatalf("StepOverride failed: %v", err)
	}
	pre, post := rec.counts()
	if post != 0 {
		t.Errorf("Expected no post calls below threshold, got %d", post)
	}
	if pre != 2 {
		t.Errorf("Expected pre on toggle and on step (2), got %d", pre)
	}

	// At threshold
	if err := src.StepOverride(5 * time.Second); err != nil {
		t.Fatalf("StepOverride failed: %v", err)
	}
	_, post = rec.counts()
	if post != 1 {
		t.Fatalf("Expected exactly 1 post call, got %d", post)
	}
	jump, _ := rec.lastPost()
	if jump.Delta != 5*time.Second || jump.Change != NoChange {
		t.Errorf("Unexpected jump %v", jump)
	}
}

func TestSource_BackwardThreshold(t *testing.T) {
	src := newOverridable(t)
	rec := &recorder{}

	if err := src.SetOverrideTime(int64(10 * time.Second)); err != nil {
		t.Fatalf("SetOverrideTime failed: %v", err)
	}
	if err := src.ArmJumpDispatch(JumpThreshold{MinForward: time.Hour, MinBackward: 2 * time.Second}, rec); err != nil {
		t.Fatalf("Arm failed: %v", err)
	}
	if err := src.EnableOverride(); err != nil {
		t.Fatalf("EnableOverride failed: %v", err)
	}

	_ = src.StepOverride(-time.Second)
	_ = src.StepOverride(3 * time.Second)
	_ = src.StepOverride(-3 * time.Second)

	_, post := rec.counts()
	if post != 1 {
		t.Fatalf("Expected 1 qualifying backward jump, got %d", post)
	}
	jump, _ := rec.lastPost()
	if jump.Delta != -3*time.Second {
		t.Errorf("Expected delta -3s, got %s", jump.Delta)
	}
}

func TestSource_SourceChangeNotification(t *testing.T) {
	src := newOverridable(t)
	onChange := &recorder{}
	ignoreChange := &recorder{}

	_ = src.ArmJumpDispatch(JumpThreshold{OnSourceChange: true, MinForward: time.Hour, MinBackward: time.Hour}, onChange)
	_ = src.ArmJumpDispatch(JumpThreshold{}, ignoreChange)

	if err := src.EnableOverride(); err != nil {
		t.Fatalf("EnableOverride failed: %v", err)
	}
	// Second enable is a no-op
	if err := src.EnableOverride(); err != nil {
		t.Fatalf("EnableOverride failed: %v", err)
	}
	if err := src.DisableOverride(); err != nil {
		t.Fatalf("DisableOverride failed: %v", err)
	}

	_, post := onChange.counts()
	if post != 2 {
		t.Errorf("Expected post on activate and deactivate (2), got %d", post)
	}
	_, post = ignoreChange.counts()
	if post != 0 {
		t.Errorf("Zero-delta toggles must not reach handlers without OnSourceChange, got %d", post)
	}
}

func TestSource_InactiveOverrideDoesNotDispatch(t *testing.T) {
	src := newOverridable(t)
	rec := &recorder{}
	_ = src.ArmJumpDispatch(JumpThreshold{}, rec)

	if err := src.SetOverrideTime(int64(time.Hour)); err != nil {
		t.Fatalf("SetOverrideTime failed: %v", err)
	}
	pre, post := rec.counts()
	if pre != 0 || post != 0 {
		t.Errorf("Expected no dispatch while override inactive, got pre=%d post=%d", pre, post)
	}
}

func TestSource_PreAlwaysPrecedesPost(t *testing.T) {
	src := newOverridable(t)
	rec := &recorder{}
	_ = src.ArmJumpDispatch(JumpThreshold{OnSourceChange: true}, rec)

	_ = src.EnableOverride()
	_ = src.StepOverride(time.Second)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) != 4 {
		t.Fatalf("Expected 4 calls, got %d", len(rec.calls))
	}
	for i := 0; i < len(rec.calls); i += 2 {
		if !rec.calls[i].before || rec.calls[i+1].before {
			t.Errorf("Calls %d/%d out of order: %+v", i, i+1, rec.calls[i:i+2])
		}
	}
}

func TestSource_DisarmStopsDispatch(t *testing.T) {
	src := newOverridable(t)
	rec := &recorder{}
	_ = src.ArmJumpDispatch(JumpThreshold{}, rec)
	_ = src.EnableOverride()

	if err := src.DisarmJumpDispatch(rec); err != nil {
		t.Fatalf("Disarm failed: %v", err)
	}
	_ = src.StepOverride(time.Second)

	pre, post := rec.counts()
	if pre != 1 || post != 0 {
		t.Errorf("Expected only the toggle pre call, got pre=%d post=%d", pre, post)
	}
}

// disarmer disarms another dispatcher from inside its own pre callback.
type disarmer struct {
	src    *Source
	target JumpDispatcher
}

func (d *disarmer) DispatchJump(jump TimeJump, beforeJump bool) {
	if beforeJump {
		_ = d.src.DisarmJumpDispatch(d.target)
	}
}

func TestSource_DisarmDuringDispatch(t *testing.T) {
	src := newOverridable(t)
	victim := &recorder{}
	d := &disarmer{src: src, target: victim}

	_ = src.ArmJumpDispatch(JumpThreshold{}, d)
	_ = src.ArmJumpDispatch(JumpThreshold{}, victim)
	_ = src.EnableOverride()
	_ = src.StepOverride(time.Second)

	_, post := victim.counts()
	if post != 0 {
		t.Errorf("Disarmed dispatcher received %d post calls", post)
	}
}

func TestSource_FinalizeIsIdempotent(t *testing.T) {
	src := newOverridable(t)
	rec := &recorder{}
	_ = src.ArmJumpDispatch(JumpThreshold{}, rec)

	if err := src.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if err := src.Finalize(); err != nil {
		t.Fatalf("Second Finalize failed: %v", err)
	}
	if src.Valid() {
		t.Error("Source should be invalid after Finalize")
	}
	if src.ArmedCount() != 0 {
		t.Errorf("Finalize should clear the table, got %d", src.ArmedCount())
	}
	if _, err := src.ReadNow(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized after Finalize, got %v", err)
	}
	if err := src.DisarmJumpDispatch(rec); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized on disarm after Finalize, got %v", err)
	}
}

func TestSource_ConcurrentReads(t *testing.T) {
	src := newOverridable(t)
	_ = src.EnableOverride()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, err := src.ReadNow(); err != nil {
					t.Errorf("ReadNow failed: %v", err)
					return
				}
				_, _ = src.OverrideEnabled()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		_ = src.StepOverride(time.Millisecond)
	}
	wg.Wait()
}
