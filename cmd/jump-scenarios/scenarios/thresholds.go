package scenarios

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/BYTE-6D65/jumpclock/cmd/jump-scenarios/framework"
	"github.com/BYTE-6D65/jumpclock/pkg/clock"
	"github.com/BYTE-6D65/jumpclock/pkg/timesource"
)

const categoryThresholds = "Jump Threshold Tests"

// OverrideForwardJump validates a +5s override jump against a 1s threshold.
//
// Pass Criteria:
//   - Post callback invoked exactly once
//   - Delta is exactly +5s and forward
type OverrideForwardJump struct {
	*framework.BaseTestCase
	rec framework.JumpRecorder
}

// NewOverrideForwardJump creates a new scenario instance.
func NewOverrideForwardJump() framework.TestCase {
	return &OverrideForwardJump{
		BaseTestCase: framework.NewBaseTestCase(
			"2.1: Override Forward Jump",
			categoryThresholds,
			"A +5s override jump fires a 1s-threshold handler once with delta 5s",
			clock.Overridable,
		),
	}
}

func (s *OverrideForwardJump) Run(ctx context.Context) error {
	if err := s.Source().EnableOverride(); err != nil {
		return err
	}

	tok, err := s.Clock().CreateJumpCallback(s.rec.Pre, s.rec.Post, clock.JumpThreshold{MinForward: time.Second})
	if err != nil {
		return err
	}
	defer tok.Release()

	if err := s.Source().StepOverride(5 * time.Second); err != nil {
		return err
	}

	_, post := s.rec.Counts()
	framework.AssertCountEquals(s.BaseTestCase, "Post invoked once", 1, post)

	if jump, ok := s.rec.LastPost(); ok {
		framework.AssertDurationEquals(s.BaseTestCase, "Delta is +5s", 5*time.Second, jump.Delta)
		framework.AssertTrue(s.BaseTestCase, "Jump is forward", jump.Forward(), jump.String())
	}
	return nil
}

// ForwardThresholdBoundary validates jumps just below and at the threshold.
//
// Pass Criteria:
//   - 999ms jump: no post callback
//   - 1s jump: exactly one post callback with delta 1s
//   - Pre fires for both
type ForwardThresholdBoundary struct {
	*framework.BaseTestCase
	rec framework.JumpRecorder
}

// NewForwardThresholdBoundary creates a new scenario instance.
func NewForwardThresholdBoundary() framework.TestCase {
	return &ForwardThresholdBoundary{
		BaseTestCase: framework.NewBaseTestCase(
			"2.2: Forward Threshold Boundary",
			categoryThresholds,
			"Jumps below MinForward skip post; jumps at MinForward fire it once",
			clock.Overridable,
		),
	}
}

func (s *ForwardThresholdBoundary) Run(ctx context.Context) error {
	if err := s.Source().EnableOverride(); err != nil {
		return err
	}

	tok, err := s.Clock().CreateJumpCallback(s.rec.Pre, s.rec.Post, clock.JumpThreshold{
		MinForward:  time.Second,
		MinBackward: time.Hour,
	})
	if err != nil {
		return err
	}
	defer tok.Release()

	if err := s.Source().StepOverride(999 * time.Millisecond); err != nil {
		return err
	}
	_, post := s.rec.Counts()
	framework.AssertCountEquals(s.BaseTestCase, "Sub-threshold jump skips post", 0, post)

	if err := s.Source().StepOverride(time.Second); err != nil {
		return err
	}
	pre, post := s.rec.Counts()
	framework.AssertCountEquals(s.BaseTestCase, "Threshold jump fires post once", 1, post)
	framework.AssertCountEquals(s.BaseTestCase, "Pre fires for every jump", 2, pre)

	if jump, ok := s.rec.LastPost(); ok {
		framework.AssertDurationEquals(s.BaseTestCase, "Delta is 1s", time.Second, jump.Delta)
	}
	return nil
}

// SourceChangeToggle validates a zero-magnitude toggle reaches a
// source-change handler.
//
// Pass Criteria:
//   - Post invoked once on activation
//   - Change is override_activated with delta 0
type SourceChangeToggle struct {
	*framework.BaseTestCase
	rec framework.JumpRecorder
}

// NewSourceChangeToggle creates a new scenario instance.
func NewSourceChangeToggle() framework.TestCase {
	return &SourceChangeToggle{
		BaseTestCase: framework.NewBaseTestCase(
			"2.3: Source Change Toggle",
			categoryThresholds,
			"Toggling the override on fires an OnSourceChange handler even at zero magnitude",
			clock.Overridable,
		),
	}
}

func (s *SourceChangeToggle) Run(ctx context.Context) error {
	tok, err := s.Clock().CreateJumpCallback(s.rec.Pre, s.rec.Post, clock.JumpThreshold{
		MinForward:     time.Hour,
		MinBackward:    time.Hour,
		OnSourceChange: true,
	})
	if err != nil {
		return err
	}
	defer tok.Release()

	if err := s.Source().EnableOverride(); err != nil {
		return err
	}

	_, post := s.rec.Counts()
	framework.AssertCountEquals(s.BaseTestCase, "Post invoked once", 1, post)

	if jump, ok := s.rec.LastPost(); ok {
		framework.AssertEquals(s.BaseTestCase, "Change is override_activated",
			timesource.OverrideActivated.String(), jump.Change.String())
		framework.AssertDurationEquals(s.BaseTestCase, "Delta is zero", 0, jump.Delta)
	}
	return nil
}

// SystemStepMonitor validates the wall clock monitor reports a step.
//
// Pass Criteria:
//   - A 2s wall clock step is delivered as a system_no_change jump
//   - Delta is within the monitor tolerance of 2s
type SystemStepMonitor struct {
	*framework.BaseTestCase
	rec    framework.JumpRecorder
	offset atomic.Int64
}

// NewSystemStepMonitor creates a new scenario instance.
func NewSystemStepMonitor() framework.TestCase {
	return &SystemStepMonitor{
		BaseTestCase: framework.NewBaseTestCase(
			"2.4: System Clock Step Monitor",
			categoryThresholds,
			"A wall clock step under a system clock is detected and dispatched",
			clock.System,
		),
	}
}

func (s *SystemStepMonitor) Setup(ctx context.Context) error {
	src := timesource.New(timesource.WithWallClock(func() int64 {
		return time.Now().UnixNano() + s.offset.Load()
	}))

	cfg := clock.DefaultConfig()
	cfg.Source = clock.System
	cfg.MonitorInterval = 5 * time.Millisecond
	cfg.MonitorTolerance = 100 * time.Millisecond

	return s.SetupClockFromConfig(ctx, cfg, src)
}

func (s *SystemStepMonitor) Run(ctx context.Context) error {
	tok, err := s.Clock().CreateJumpCallback(s.rec.Pre, s.rec.Post, clock.JumpThreshold{MinForward: time.Second})
	if err != nil {
		return err
	}
	defer tok.Release()

	s.offset.Add(int64(2 * time.Second))

	delivered := s.rec.WaitForPosts(1, 2*time.Second)
	framework.AssertTrue(s.BaseTestCase, "Step delivered", delivered, "no post callback within 2s")

	if jump, ok := s.rec.LastPost(); ok {
		framework.AssertEquals(s.BaseTestCase, "Change is system_no_change",
			timesource.SystemNoChange.String(), jump.Change.String())
		framework.AssertDurationInRange(s.BaseTestCase, "Delta about 2s",
			1900*time.Millisecond, 2100*time.Millisecond, jump.Delta)
	}
	return nil
}
