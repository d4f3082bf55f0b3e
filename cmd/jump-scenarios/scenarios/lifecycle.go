package scenarios

import (
	"context"
	"runtime"
	"time"

	"github.com/BYTE-6D65/jumpclock/cmd/jump-scenarios/framework"
	"github.com/BYTE-6D65/jumpclock/pkg/clock"
	"github.com/BYTE-6D65/jumpclock/pkg/timesource"
)

const categoryLifecycle = "Handler Lifecycle Tests"

// ReleaseStopsCallbacks validates a released token receives nothing.
//
// Pass Criteria:
//   - Handler armed: one jump gives one pre and one post
//   - After the last Release: further jumps invoke neither callback
//   - The backend holds no armed entry
type ReleaseStopsCallbacks struct {
	*framework.BaseTestCase
	rec framework.JumpRecorder
}

// NewReleaseStopsCallbacks creates a new scenario instance.
func NewReleaseStopsCallbacks() framework.TestCase {
	return &ReleaseStopsCallbacks{
		BaseTestCase: framework.NewBaseTestCase(
			"3.1: Release Stops Callbacks",
			categoryLifecycle,
			"Once a token's last reference is released, later jumps invoke none of its callbacks",
			clock.Overridable,
		),
	}
}

func (s *ReleaseStopsCallbacks) Run(ctx context.Context) error {
	if err := s.Source().EnableOverride(); err != nil {
		return err
	}

	tok, err := s.Clock().CreateJumpCallback(s.rec.Pre, s.rec.Post, clock.JumpThreshold{})
	if err != nil {
		return err
	}
	extra := tok.Retain()

	if err := s.Source().StepOverride(time.Second); err != nil {
		return err
	}
	pre, post := s.rec.Counts()
	framework.AssertCountEquals(s.BaseTestCase, "Armed: pre once", 1, pre)
	framework.AssertCountEquals(s.BaseTestCase, "Armed: post once", 1, post)

	tok.Release()
	framework.AssertTrue(s.BaseTestCase, "Still armed with one reference", extra.Armed(), "")

	extra.Release()
	framework.AssertFalse(s.BaseTestCase, "Disarmed after last release", extra.Armed(), "")
	framework.AssertCountEquals(s.BaseTestCase, "No armed entries", 0, s.Source().ArmedCount())

	if err := s.Source().StepOverride(time.Second); err != nil {
		return err
	}
	if err := s.Source().DisableOverride(); err != nil {
		return err
	}
	pre, post = s.rec.Counts()
	framework.AssertCountEquals(s.BaseTestCase, "Released: no new pre", 1, pre)
	framework.AssertCountEquals(s.BaseTestCase, "Released: no new post", 1, post)
	return nil
}

// CloseBeforeRelease validates closing the clock while tokens are held.
//
// Pass Criteria:
//   - Closing the clock finalizes the backend
//   - Tokens report disarmed
//   - Releasing the tokens afterwards is a safe no-op
type CloseBeforeRelease struct {
	*framework.BaseTestCase
}

// NewCloseBeforeRelease creates a new scenario instance.
func NewCloseBeforeRelease() framework.TestCase {
	return &CloseBeforeRelease{
		BaseTestCase: framework.NewBaseTestCase(
			"3.2: Close Clock Before Releasing Tokens",
			categoryLifecycle,
			"Destroying a clock with outstanding tokens is safe; later releases are no-ops",
			clock.Overridable,
		),
	}
}

func (s *CloseBeforeRelease) Run(ctx context.Context) error {
	tokens := make([]*clock.JumpHandler, 0, 8)
	for i := 0; i < cap(tokens); i++ {
		tok, err := s.Clock().CreateJumpCallback(nil, func(clock.TimeJump) {}, clock.JumpThreshold{})
		if err != nil {
			return err
		}
		tokens = append(tokens, tok)
	}
	framework.AssertCountEquals(s.BaseTestCase, "All handlers armed", len(tokens), s.Source().ArmedCount())

	if err := s.Clock().Close(); err != nil {
		return err
	}
	framework.AssertFalse(s.BaseTestCase, "Backend finalized", s.Source().Valid(), "")

	armed := 0
	for _, tok := range tokens {
		if tok.Armed() {
			armed++
		}
	}
	framework.AssertCountEquals(s.BaseTestCase, "Tokens report disarmed", 0, armed)

	panicked := false
	func() {
		defer func() {
			if recover() != nil {
				panicked = true
			}
		}()
		for _, tok := range tokens {
			tok.Release()
		}
	}()
	framework.AssertFalse(s.BaseTestCase, "Late release does not panic", panicked, "")
	return nil
}

// CollectedTokenDisarms validates an unreachable token is disarmed by the
// garbage collector.
//
// Pass Criteria:
//   - A token dropped without Release is disarmed within 2s of GC cycles
type CollectedTokenDisarms struct {
	*framework.BaseTestCase
}

// NewCollectedTokenDisarms creates a new scenario instance.
func NewCollectedTokenDisarms() framework.TestCase {
	return &CollectedTokenDisarms{
		BaseTestCase: framework.NewBaseTestCase(
			"3.3: Collected Token Disarms",
			categoryLifecycle,
			"A token dropped without Release is disarmed when collected",
			clock.Overridable,
		),
	}
}

func (s *CollectedTokenDisarms) Run(ctx context.Context) error {
	if err := s.register(); err != nil {
		return err
	}
	framework.AssertCountEquals(s.BaseTestCase, "Handler armed", 1, s.Source().ArmedCount())

	start := time.Now()
	deadline := start.Add(2 * time.Second)
	for s.Source().ArmedCount() != 0 && time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		runtime.GC()
		time.Sleep(time.Millisecond)
	}

	s.Metric("collect_latency", time.Since(start).String())
	framework.AssertCountEquals(s.BaseTestCase, "Handler disarmed after collection", 0, s.Source().ArmedCount())
	return nil
}

// register arms a handler and drops the token.
func (s *CollectedTokenDisarms) register() error {
	_, err := s.Clock().CreateJumpCallback(nil, func(clock.TimeJump) {}, clock.JumpThreshold{})
	return err
}

// RegistrationFailureClean validates a rejected registration leaves
// nothing armed.
//
// Pass Criteria:
//   - A negative threshold yields a RegistrationError with invalid_argument
//   - No entry is left armed; the clock keeps working
type RegistrationFailureClean struct {
	*framework.BaseTestCase
}

// NewRegistrationFailureClean creates a new scenario instance.
func NewRegistrationFailureClean() framework.TestCase {
	return &RegistrationFailureClean{
		BaseTestCase: framework.NewBaseTestCase(
			"3.4: Failed Registration Leaves Nothing Armed",
			categoryLifecycle,
			"A rejected registration returns RegistrationError and arms nothing",
			clock.Overridable,
		),
	}
}

func (s *RegistrationFailureClean) Run(ctx context.Context) error {
	tok, err := s.Clock().CreateJumpCallback(nil, nil, clock.JumpThreshold{MinForward: -time.Second})

	framework.AssertTrue(s.BaseTestCase, "No token returned", tok == nil, "")
	framework.AssertEquals(s.BaseTestCase, "Status is invalid_argument",
		timesource.StatusInvalidArgument.String(), clock.StatusOf(err).String())
	framework.AssertCountEquals(s.BaseTestCase, "No armed entries", 0, s.Source().ArmedCount())

	_, err = s.Clock().Now()
	framework.AssertNoError(s.BaseTestCase, "Clock still reads", err)
	return nil
}
